// Package api serves the dashboard HTTP API and the live websocket stream.
package api

import (
	"errors"
	"log/slog"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/metrics"
	"github.com/tringuyenminh209/mimamori/backend/internal/reconciler"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/feed"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
	"github.com/tringuyenminh209/mimamori/backend/pkg/router"
)

const (
	CoreGroup     = "core"
	DeviceGroup   = "device"
	HistoryGroup  = "history"
	SettingsGroup = "settings"
)

// Engine is the reconciled device state the API reads and drives.
type Engine interface {
	Snapshot() reconciler.Snapshot
	SetFan(on bool) reconciler.FanState
	Readings(buffer int) *feed.Subscription[telemetry.Reading]
	FanStates(buffer int) *feed.Subscription[reconciler.FanState]
	ConnectivityStates(buffer int) *feed.Subscription[mqtt.ConnState]
	Alerts(buffer int) *feed.Subscription[reconciler.Alert]
}

type Liveness interface {
	Reachable() bool
	Reachability(buffer int) *feed.Subscription[bool]
}

type SettingsStore interface {
	Get() settings.Settings
	Update(s settings.Settings) (settings.Settings, error)
	Reset() (settings.Settings, error)
}

type Options struct {
	Logger   *slog.Logger
	Engine   Engine
	Liveness Liveness
	History  history.Gateway
	Settings SettingsStore
	// Metrics and Document are optional.
	Metrics  *metrics.Metrics
	Document *router.Document
}

type Handler struct {
	l        *slog.Logger
	engine   Engine
	liveness Liveness
	history  history.Gateway
	settings SettingsStore
	metrics  *metrics.Metrics
	doc      *router.Document
}

func NewHandler(opts Options) (*Handler, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("api: logger is required")
	case opts.Engine == nil:
		return nil, errors.New("api: engine is required")
	case opts.Liveness == nil:
		return nil, errors.New("api: liveness is required")
	case opts.History == nil:
		return nil, errors.New("api: history gateway is required")
	case opts.Settings == nil:
		return nil, errors.New("api: settings store is required")
	}

	return &Handler{
		l:        opts.Logger.With(slog.String("component", "api")),
		engine:   opts.Engine,
		liveness: opts.Liveness,
		history:  opts.History,
		settings: opts.Settings,
		metrics:  opts.Metrics,
		doc:      opts.Document,
	}, nil
}

// Register mounts the middleware and every route on rb.
func (h *Handler) Register(rb *router.RouteBuilder) {
	rb.Use(h.RequestIDMiddleware, h.LoggerMiddleware, h.RecoveryMiddleware)

	rb.Route("/api", func(rb *router.RouteBuilder) {
		h.RegisterPing("/ping", rb)
		h.RegisterHealth("/health", rb)
		h.RegisterState("/state", rb)
		h.RegisterSetFan("/fan", rb)

		rb.Route("/history", func(rb *router.RouteBuilder) {
			h.RegisterListHistory("/", rb)
			h.RegisterRecentHistory("/recent", rb)
			h.RegisterLatestHistory("/latest", rb)
			h.RegisterDeleteHistory("/", rb)
		})

		rb.Route("/settings", func(rb *router.RouteBuilder) {
			h.RegisterGetSettings("/", rb)
			h.RegisterUpdateSettings("/", rb)
			h.RegisterResetSettings("/", rb)
		})

		rb.Router().Get("/stream", h.Stream)

		if h.doc != nil {
			rb.Router().Get("/openapi.json", h.doc.Handler())
			rb.Router().Get("/openapi.yaml", h.doc.Handler())
		}
	})

	rb.Router().Handle("/metrics", h.metrics.Handler())
}
