package api

import (
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/reconciler"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
)

// ErrorResponse is the unified error response type.
//
//nolint:errname // ErrorResponse is an API response type, not a traditional error
type ErrorResponse struct {
	// HTTP status code (internal only, not sent to client)
	StatusCode int `json:"-"`
	// Request ID for tracking
	RequestID string `json:"requestID"`
	// High-level error message
	Message string `json:"message"`
	// Field-level validation errors
	Errors map[string]string `json:"errors,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

type PingStatus string

const (
	PingStatusOK    PingStatus = "OK"
	PingStatusError PingStatus = "ERROR"
)

type PingResponse struct {
	Message string     `json:"message"`
	Status  PingStatus `json:"status"`
	Version string     `json:"version"`
}

type HealthResponse struct {
	Database        bool           `json:"database"`
	MQTT            bool           `json:"mqtt"`
	Connectivity    mqtt.ConnState `json:"connectivity"`
	DeviceReachable bool           `json:"deviceReachable"`
}

// StateResponse is the full dashboard state.
type StateResponse struct {
	Reading         *telemetry.Reading  `json:"reading"`
	StatusLabel     string              `json:"statusLabel"`
	Fan             reconciler.FanState `json:"fan"`
	Connectivity    mqtt.ConnState      `json:"connectivity"`
	DeviceReachable bool                `json:"deviceReachable"`
	LastAcceptedAt  *time.Time          `json:"lastAcceptedAt"`
}

type FanRequest struct {
	On *bool `json:"on"`
}

type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

type DeleteHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

type SettingsRequest struct {
	Broker          string `json:"broker"`
	DataTopic       string `json:"dataTopic"`
	ControlTopic    string `json:"controlTopic"`
	ChartDataPoints int    `json:"chartDataPoints"`
	UpdateInterval  int    `json:"updateInterval"`
	AlertDanger     bool   `json:"alertDanger"`
	AlertCaution    bool   `json:"alertCaution"`
	AlertCold       bool   `json:"alertCold"`
}

func (r SettingsRequest) settings() settings.Settings {
	return settings.Settings{
		Broker:          r.Broker,
		DataTopic:       r.DataTopic,
		ControlTopic:    r.ControlTopic,
		ChartDataPoints: r.ChartDataPoints,
		UpdateInterval:  r.UpdateInterval,
		AlertDanger:     r.AlertDanger,
		AlertCaution:    r.AlertCaution,
		AlertCold:       r.AlertCold,
	}
}

// StreamEventType names the payload carried by a StreamEvent.
type StreamEventType string

const (
	EventReading      StreamEventType = "reading"
	EventFan          StreamEventType = "fan"
	EventConnectivity StreamEventType = "connectivity"
	EventReachability StreamEventType = "reachability"
	EventAlert        StreamEventType = "alert"
)

// StreamEvent is one websocket frame sent to dashboard clients. Exactly one of the
// payload fields is set, matching Type.
type StreamEvent struct {
	Type         StreamEventType      `json:"type"`
	Reading      *telemetry.Reading   `json:"reading,omitempty"`
	Fan          *reconciler.FanState `json:"fan,omitempty"`
	Connectivity *mqtt.ConnState      `json:"connectivity,omitempty"`
	Reachable    *bool                `json:"reachable,omitempty"`
	Alert        *reconciler.Alert    `json:"alert,omitempty"`
}

// StreamRequest is a websocket frame sent by a client.
type StreamRequest struct {
	Fan *bool `json:"fan"`
}
