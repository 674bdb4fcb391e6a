package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/tringuyenminh209/mimamori/backend/internal/config"
	"github.com/tringuyenminh209/mimamori/backend/internal/devicesim"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const (
	keepAlive      = 30
	connectTimeout = 30 * time.Second
	publishTimeout = 5 * time.Second
	disconnectWait = 5 * time.Second
)

func main() {
	sigCtx, sigCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigCancel()

	cfg, err := config.NewSimulator()
	if err != nil {
		fatalIfErr(slog.Default(), fmt.Errorf("failed to create config: %w", err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.LogLevel,
		ReplaceAttr: utils.SlogReplacer,
	})).With(slog.String("component", "devicesim"))

	device := devicesim.New(uint64(cfg.Seed))

	cm, err := connect(sigCtx, logger, cfg, device)
	fatalIfErr(logger, err)

	connCtx, connCancel := context.WithTimeout(sigCtx, connectTimeout)
	if err := cm.AwaitConnection(connCtx); err != nil {
		logger.Warn("initial connection timed out, will retry in background", utils.ErrAttr(err))
	}
	connCancel()

	run(sigCtx, logger, cfg, cm, device)

	logger.Info("disconnecting...")

	ctx, cancel := context.WithTimeout(context.Background(), disconnectWait)
	defer cancel()

	if err := cm.Disconnect(ctx); err != nil {
		logger.Error("disconnect failed", utils.ErrAttr(err))
	}

	<-cm.Done()
	logger.Info("simulator exited gracefully")
}

func connect(ctx context.Context, l *slog.Logger, cfg *config.SimulatorConfig, device *devicesim.Device) (*autopaho.ConnectionManager, error) {
	brokerURL, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     keepAlive,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			l.Info("connected to broker", slog.String("broker", cfg.Broker))

			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: cfg.ControlTopic, QoS: 0}},
			}); err != nil {
				l.Error("failed to subscribe", slog.String("topic", cfg.ControlTopic), utils.ErrAttr(err))
				return
			}

			l.Info("subscribed", slog.String("topic", cfg.ControlTopic))
		},
		OnConnectError: func(err error) {
			l.Warn("connection error", utils.ErrAttr(err))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: fmt.Sprintf("%s-%s", cfg.ClientID, utils.NewUUID()[:8]),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					if pr.Packet.Topic != cfg.ControlTopic {
						return false, nil
					}

					if !device.Apply(pr.Packet.Payload) {
						l.Warn("ignoring unknown command", slog.String("payload", string(pr.Packet.Payload)))
						return true, nil
					}

					l.Info("fan switched", slog.Bool("on", device.Fan()))

					return true, nil
				},
			},
			OnClientError: func(err error) {
				l.Error("client error", utils.ErrAttr(err))
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return cm, nil
}

// run publishes a reading every interval until ctx is done.
func run(ctx context.Context, l *slog.Logger, cfg *config.SimulatorConfig, cm *autopaho.ConnectionManager, device *devicesim.Device) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	l.Info("publishing readings", slog.String("topic", cfg.DataTopic), slog.Duration("interval", cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			payload, err := device.Next(now)
			if err != nil {
				l.Error("failed to encode reading", utils.ErrAttr(err))
				continue
			}

			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			_, err = cm.Publish(pubCtx, &paho.Publish{Topic: cfg.DataTopic, Payload: payload, QoS: 0})
			cancel()

			if err != nil {
				l.Warn("publish failed", utils.ErrAttr(err))
				continue
			}

			l.Debug("published", slog.String("payload", string(payload)))
		}
	}
}

func fatalIfErr(l *slog.Logger, err error) {
	if err == nil {
		return
	}

	l.Error("error", utils.ErrAttr(err))
	os.Exit(1)
}
