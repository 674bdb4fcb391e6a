// Package broker embeds a mochi-mqtt server for local development and tests.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

// Handler receives messages delivered to an inline subscription.
type Handler func(topic string, payload []byte)

type Broker struct {
	l      *slog.Logger
	server *mqttserver.Server
	addr   string

	closeOnce sync.Once
	closeErr  error
}

// New creates a broker with a single TCP listener on addr that accepts every client.
func New(l *slog.Logger, addr string) (*Broker, error) {
	if addr == "" {
		return nil, errors.New("listen address is required")
	}

	l = l.With(slog.String("component", "mqtt-broker"))

	server := mqttserver.New(&mqttserver.Options{
		InlineClient: true,
		Logger:       l,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("failed to add listener: %w", err)
	}

	return &Broker{l: l, server: server, addr: addr}, nil
}

// Addr returns the listen address.
func (b *Broker) Addr() string {
	return b.addr
}

// URL returns a tcp:// URL clients can dial.
func (b *Broker) URL() string {
	return "tcp://" + b.addr
}

// StartOnBackground serves on a goroutine and calls cancel if serving fails.
func (b *Broker) StartOnBackground(cancel context.CancelFunc) {
	go func() {
		b.l.Info("starting", slog.String("address", b.addr))

		if err := b.server.Serve(); err != nil {
			b.l.Error("failed", utils.ErrAttr(err))
			cancel()
		}
	}()
}

// Serve starts the listeners. mochi serves connections on its own goroutines.
func (b *Broker) Serve() error {
	return b.server.Serve()
}

// Publish injects a QoS 0, non-retained message as the inline client.
func (b *Broker) Publish(topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, 0)
}

// Subscribe attaches an inline subscription. id must be unique per filter.
func (b *Broker) Subscribe(filter string, id int, h Handler) error {
	return b.server.Subscribe(filter, id, func(_ *mqttserver.Client, _ packets.Subscription, pk packets.Packet) {
		h(pk.TopicName, pk.Payload)
	})
}

// Clients returns the number of connected network clients.
func (b *Broker) Clients() int {
	n := 0

	for _, cl := range b.server.Clients.GetAll() {
		if !cl.Net.Inline && !cl.Closed() {
			n++
		}
	}

	return n
}

// Close stops the listener and disconnects every client. Calls after the first
// are no-ops.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.l.Info("shutting down")
		b.closeErr = b.server.Close()
	})

	return b.closeErr
}
