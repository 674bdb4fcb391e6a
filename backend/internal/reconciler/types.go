package reconciler

import (
	"fmt"
	"strings"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
)

// Source records who last set the fan state.
type Source int

const (
	SourceNone Source = iota
	SourceUser
	SourceDevice
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceUser:
		return "user"
	case SourceDevice:
		return "device"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "none", "":
		*s = SourceNone
	case "user":
		*s = SourceUser
	case "device":
		*s = SourceDevice
	default:
		return fmt.Errorf("unknown fan source %q", b)
	}

	return nil
}

type FanState struct {
	On     bool   `json:"on"`
	Source Source `json:"source"`
}

// Alert is raised when the current status changes into one the user asked to be
// warned about.
type Alert struct {
	Status  telemetry.Status  `json:"status"`
	Label   string            `json:"label"`
	Reading telemetry.Reading `json:"reading"`
	At      time.Time         `json:"at"`
}

// Snapshot is a consistent copy of the reconciled state.
type Snapshot struct {
	Reading        *telemetry.Reading `json:"reading"`
	Fan            FanState           `json:"fan"`
	Connectivity   mqtt.ConnState     `json:"connectivity"`
	LastAcceptedAt time.Time          `json:"lastAcceptedAt"`
}
