// Package settings holds the user-editable device preferences: broker, topics,
// chart depth, reporting interval and alert switches.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/liveness"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
)

// Key names a preference. The names match the keys of the settings file.
type Key string

const (
	KeyBroker          Key = "mqtt_broker"
	KeyDataTopic       Key = "topic_data"
	KeyControlTopic    Key = "topic_control"
	KeyChartDataPoints Key = "chart_data_points"
	KeyUpdateInterval  Key = "update_interval"
	KeyAlertDanger     Key = "alert_kiken"
	KeyAlertCaution    Key = "alert_chui"
	KeyAlertCold       Key = "alert_samui"
	KeyLastUpdate      Key = "last_update"
)

const (
	DefaultBroker          = "wss://broker.emqx.io:8084/mqtt"
	DefaultDataTopic       = "sk2a22/data"
	DefaultControlTopic    = "sk2a22/control"
	DefaultChartDataPoints = 20
	DefaultUpdateInterval  = 2

	MaxChartDataPoints = 500
	MaxUpdateInterval  = 3600
)

// Store is read-only typed access to the current preferences.
type Store interface {
	String(key Key) string
	Int(key Key) int
	Bool(key Key) bool
	Get() Settings
}

type Settings struct {
	Broker          string `yaml:"mqtt_broker" json:"broker"`
	DataTopic       string `yaml:"topic_data" json:"dataTopic"`
	ControlTopic    string `yaml:"topic_control" json:"controlTopic"`
	ChartDataPoints int    `yaml:"chart_data_points" json:"chartDataPoints"`
	// UpdateInterval is the device reporting interval in seconds.
	UpdateInterval int       `yaml:"update_interval" json:"updateInterval"`
	AlertDanger    bool      `yaml:"alert_kiken" json:"alertDanger"`
	AlertCaution   bool      `yaml:"alert_chui" json:"alertCaution"`
	AlertCold      bool      `yaml:"alert_samui" json:"alertCold"`
	LastUpdate     time.Time `yaml:"last_update,omitempty" json:"lastUpdate"`
}

func Defaults() Settings {
	return Settings{
		Broker:          DefaultBroker,
		DataTopic:       DefaultDataTopic,
		ControlTopic:    DefaultControlTopic,
		ChartDataPoints: DefaultChartDataPoints,
		UpdateInterval:  DefaultUpdateInterval,
		AlertDanger:     true,
		AlertCaution:    true,
		AlertCold:       true,
	}
}

// Validate returns a *ValidationError listing every invalid field.
func (s Settings) Validate() error {
	verr := &ValidationError{Fields: map[string]string{}}

	if strings.TrimSpace(s.Broker) == "" {
		verr.Fields["broker"] = "broker address is required"
	} else if err := (mqtt.SessionConfig{Broker: s.Broker, DataTopic: "d", ControlTopic: "c"}).Validate(); err != nil {
		verr.Fields["broker"] = err.Error()
	}

	if err := mqtt.ValidateTopic(s.DataTopic); err != nil {
		verr.Fields["dataTopic"] = err.Error()
	}

	if err := mqtt.ValidateTopic(s.ControlTopic); err != nil {
		verr.Fields["controlTopic"] = err.Error()
	} else if s.ControlTopic == s.DataTopic {
		verr.Fields["controlTopic"] = "must differ from the data topic"
	}

	if s.ChartDataPoints < 1 || s.ChartDataPoints > MaxChartDataPoints {
		verr.Fields["chartDataPoints"] = fmt.Sprintf("must be between 1 and %d", MaxChartDataPoints)
	}

	if s.UpdateInterval < 1 || s.UpdateInterval > MaxUpdateInterval {
		verr.Fields["updateInterval"] = fmt.Sprintf("must be between 1 and %d seconds", MaxUpdateInterval)
	}

	if len(verr.Fields) > 0 {
		return verr
	}

	return nil
}

// Session returns the broker session configuration.
func (s Settings) Session() mqtt.SessionConfig {
	return mqtt.SessionConfig{
		Broker:       strings.TrimSpace(s.Broker),
		DataTopic:    s.DataTopic,
		ControlTopic: s.ControlTopic,
	}
}

// StaleTimeout is the liveness timeout for the configured reporting interval.
func (s Settings) StaleTimeout() time.Duration {
	return liveness.StaleTimeoutFor(time.Duration(s.UpdateInterval) * time.Second)
}

// AlertEnabled reports whether entering status should raise an alert.
func (s Settings) AlertEnabled(status telemetry.Status) bool {
	switch status {
	case telemetry.StatusDanger:
		return s.AlertDanger
	case telemetry.StatusCaution:
		return s.AlertCaution
	case telemetry.StatusCold:
		return s.AlertCold
	default:
		return false
	}
}

// ValidationError maps field names to problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}

	return "invalid settings: " + strings.Join(parts, "; ")
}

// ErrUnknownKey is returned by lookups on keys the store does not know.
var ErrUnknownKey = errors.New("unknown settings key")

func (s Settings) lookup(key Key) (any, error) {
	switch key {
	case KeyBroker:
		return s.Broker, nil
	case KeyDataTopic:
		return s.DataTopic, nil
	case KeyControlTopic:
		return s.ControlTopic, nil
	case KeyChartDataPoints:
		return s.ChartDataPoints, nil
	case KeyUpdateInterval:
		return s.UpdateInterval, nil
	case KeyAlertDanger:
		return s.AlertDanger, nil
	case KeyAlertCaution:
		return s.AlertCaution, nil
	case KeyAlertCold:
		return s.AlertCold, nil
	case KeyLastUpdate:
		if s.LastUpdate.IsZero() {
			return "", nil
		}

		return s.LastUpdate.Format(time.RFC3339), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}
