package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// QoS represents MQTT quality of service levels.
type QoS byte

const (
	// QoSAtMostOnce means the message is delivered at most once, or it may not be delivered at all.
	QoSAtMostOnce QoS = 0
	// QoSAtLeastOnce means the message is always delivered at least once.
	QoSAtLeastOnce QoS = 1
	// QoSExactlyOnce means the message is always delivered exactly once.
	QoSExactlyOnce QoS = 2
)

// ConnState is the state of the broker link as seen by a Session.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ConnState) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "connected":
		*s = Connected
	default:
		return fmt.Errorf("unknown connection state %q", b)
	}

	return nil
}

// Message is one inbound publish as delivered by the broker.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// SessionConfig identifies the broker and the two topics a Session works with.
type SessionConfig struct {
	// Broker is a URL such as tcp://host:1883 or wss://host:8084/mqtt.
	Broker string
	// DataTopic carries device telemetry.
	DataTopic string
	// ControlTopic carries actuator commands.
	ControlTopic string
}

// Validate reports configuration problems that would prevent a session from working.
func (c SessionConfig) Validate() error {
	if _, err := parseBrokerURL(c.Broker); err != nil {
		return err
	}

	if err := ValidateTopic(c.DataTopic); err != nil {
		return fmt.Errorf("invalid data topic: %w", err)
	}

	if err := ValidateTopic(c.ControlTopic); err != nil {
		return fmt.Errorf("invalid control topic: %w", err)
	}

	if c.DataTopic == c.ControlTopic {
		return errors.New("data and control topics must differ")
	}

	return nil
}
