package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/api"
	"github.com/tringuyenminh209/mimamori/backend/internal/config"
	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/history/postgres"
	"github.com/tringuyenminh209/mimamori/backend/internal/history/sqlite"
	"github.com/tringuyenminh209/mimamori/backend/internal/liveness"
	"github.com/tringuyenminh209/mimamori/backend/internal/metrics"
	"github.com/tringuyenminh209/mimamori/backend/internal/reconciler"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/pkg/broker"
	"github.com/tringuyenminh209/mimamori/backend/pkg/dialect"
	"github.com/tringuyenminh209/mimamori/backend/pkg/migrator"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
	"github.com/tringuyenminh209/mimamori/backend/pkg/router"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
	"github.com/tringuyenminh209/mimamori/web"
)

const (
	openTimeout    = 10 * time.Second
	loadTimeout    = 5 * time.Second
	settingsBuffer = 4
)

func main() {
	sigCtx, sigCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigCancel()

	config, err := config.New()
	if err != nil {
		fatalIfErr(slog.Default(), fmt.Errorf("failed to create config: %w", err))
	}

	defer func() {
		if err := config.Close(); err != nil {
			slog.Default().Error("failed to close config", utils.ErrAttr(err))
		}
	}()

	logger := getLogger(config)

	// Embedded broker for local development
	var mqttBroker *broker.Broker

	if config.MQTTBrokerPort > 0 {
		mqttBroker, err = broker.New(logger, fmt.Sprintf(":%d", config.MQTTBrokerPort))
		fatalIfErr(logger, err)
		mqttBroker.StartOnBackground(sigCancel)
	}

	// History store
	if err := runMigrations(logger, config); err != nil {
		fatalIfErr(logger, fmt.Errorf("failed to run migrations: %w", err))
	}

	store, err := openHistory(sigCtx, logger, config)
	fatalIfErr(logger, err)

	defer utils.LogOnError(logger, store.Close, "failed to close history store")

	// Settings and domain components
	m := metrics.New()

	settingsStore, err := settings.OpenFile(logger, config.SettingsFile)
	fatalIfErr(logger, err)

	current := settingsStore.Get()

	session := mqtt.NewSession(logger, config.SessionOptions())
	tracker := liveness.NewTracker(logger, current.StaleTimeout(), nil)
	writer := history.NewWriter(logger, store, m, config.HistoryQueueSize)

	rec, err := reconciler.New(reconciler.Options{
		Logger:   logger,
		Session:  session,
		Tracker:  tracker,
		Queue:    writer,
		Latest:   store,
		Metrics:  m,
		Settings: current,
	})
	fatalIfErr(logger, err)

	loadCtx, loadCancel := context.WithTimeout(sigCtx, loadTimeout)
	if err := rec.LoadLatest(loadCtx); err != nil {
		logger.Warn("failed to load latest reading", utils.ErrAttr(err))
	}
	loadCancel()

	// Background workers; the writer drains its queue once sigCtx is done.
	var wg sync.WaitGroup

	for _, run := range []func(context.Context){writer.Run, tracker.Run, rec.Run} {
		wg.Add(1)

		go func() {
			defer wg.Done()
			run(sigCtx)
		}()
	}

	changes := settingsStore.Changes(settingsBuffer)

	wg.Add(1)

	go func() {
		defer wg.Done()
		rec.Watch(sigCtx, changes)
	}()

	rec.ApplySettings(current)

	// HTTP
	doc := router.NewDocument(router.APIInfo{
		Title:       "Mimamori API",
		Version:     utils.GetVersionShort(),
		Description: "Environmental monitoring dashboard API",
		Servers: []router.ServerInfo{
			{URL: fmt.Sprintf("http://localhost:%d", config.Port), Description: "Local server"},
		},
	})

	rb, err := router.NewRouteBuilder(logger, doc)
	fatalIfErr(logger, err)

	apiHandler, err := api.NewHandler(api.Options{
		Logger:   logger,
		Engine:   rec,
		Liveness: tracker,
		History:  store,
		Settings: settingsStore,
		Metrics:  m,
		Document: doc,
	})
	fatalIfErr(logger, err)

	registerHTTPHandlers(logger, rb, apiHandler)

	httpServer := api.NewHTTPServer(logger, fmt.Sprintf(":%d", config.Port), rb.Router())
	httpServer.StartOnBackground(sigCancel)

	// Wait for signal (either OS or some failure)
	<-sigCtx.Done()
	logger.Info("received signal, shutting down...")

	if err := httpServer.ShutdownWithDefaultTimeout(); err != nil {
		logger.Error("http server shutdown failed", utils.ErrAttr(err))
	}

	logger.Info("disconnecting from MQTT broker...")
	session.Close()

	wg.Wait()

	if mqttBroker != nil {
		logger.Info("mqtt broker shutting down...")

		if err := mqttBroker.Close(); err != nil {
			logger.Error("mqtt broker shutdown failed", utils.ErrAttr(err))
		}
	}

	logger.Info("server exited gracefully")
}

// registerHTTPHandlers registers the API, the dashboard and the root redirect.
func registerHTTPHandlers(l *slog.Logger, rb *router.RouteBuilder, h *api.Handler) {
	l.Info("registering HTTP handlers...")

	h.Register(rb)

	webapp, err := web.DashboardApp()
	fatalIfErr(l, err)
	webapp.Register(rb.Router(), l)

	rb.Router().HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
	})

	l.Info("HTTP handlers registered successfully")
}

//nolint:ireturn // Returns the Gateway of the configured dialect
func openHistory(ctx context.Context, l *slog.Logger, c *config.Config) (history.Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	var (
		gw  history.Gateway
		err error
	)

	switch c.Dialect {
	case dialect.SQLite:
		gw, err = sqlite.Open(l, c.Database)
	case dialect.PostgreSQL:
		gw, err = postgres.Open(ctx, l, c.Database)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", c.Dialect)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	if err := gw.Ping(ctx); err != nil {
		utils.LogOnError(l, gw.Close, "failed to close history store")
		return nil, fmt.Errorf("failed to reach history store: %w", err)
	}

	return gw, nil
}

func getLogger(config *config.Config) *slog.Logger {
	logOptions := slog.HandlerOptions{
		Level:       config.LogLevel,
		ReplaceAttr: utils.SlogReplacer,
	}

	return slog.New(slog.NewJSONHandler(config.LogOutput, &logOptions)).
		With(slog.String("version", utils.GetVersionShort()))
}

func fatalIfErr(l *slog.Logger, err error) {
	if err == nil {
		return
	}

	l.Error("error", utils.ErrAttr(err))
	os.Exit(1)
}

func runMigrations(l *slog.Logger, c *config.Config) error {
	l.Info("running database migrations", slog.String("dialect", c.Dialect.String()))

	mig, err := migrator.New(l, c.Dialect, c.Database)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := mig.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	l.Info("database migrations completed successfully")

	return nil
}
