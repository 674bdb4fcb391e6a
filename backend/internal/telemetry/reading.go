// Package telemetry turns raw broker payloads into typed readings and commands.
package telemetry

import "time"

// Status is the comfort classification computed by the device. Values the device
// may add later are kept verbatim.
type Status string

const (
	StatusSafe    Status = "ANZEN"
	StatusCaution Status = "CHUI"
	StatusDanger  Status = "KIKEN"
	StatusCold    Status = "SAMUI"
	StatusRemote  Status = "REMOTE"
)

// KnownStatuses lists the statuses the dashboard has labels for.
//
//nolint:gochecknoglobals // Fixed vocabulary
var KnownStatuses = []Status{StatusSafe, StatusCaution, StatusDanger, StatusCold, StatusRemote}

func (s Status) Known() bool {
	switch s {
	case StatusSafe, StatusCaution, StatusDanger, StatusCold, StatusRemote:
		return true
	default:
		return false
	}
}

// Label returns an English name for known statuses and the raw value otherwise.
func (s Status) Label() string {
	switch s {
	case StatusSafe:
		return "Safe"
	case StatusCaution:
		return "Caution"
	case StatusDanger:
		return "Danger"
	case StatusCold:
		return "Cold"
	case StatusRemote:
		return "Remote"
	default:
		return string(s)
	}
}

// FanFlag is the actuator state a device may embed in a reading.
type FanFlag struct {
	// Present is set when the payload carried the key at all, even as null.
	Present bool
	On      bool
}

// Reading is one normalized telemetry sample. It is a value type and is never
// modified after Normalize returns it.
type Reading struct {
	Status          Status  `json:"status"`
	Temperature     float64 `json:"temperature"`
	Humidity        float64 `json:"humidity"`
	DiscomfortIndex float64 `json:"discomfortIndex"`
	// Timestamp is Unix milliseconds.
	Timestamp int64   `json:"timestamp"`
	Fan       FanFlag `json:"-"`
}

func (r Reading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

const (
	CommandFanOn  = "LED_ON"
	CommandFanOff = "LED_OFF"
)

// Command is an actuator instruction seen on the control topic.
type Command struct {
	Fan bool
}

// Token returns the wire form of the command.
func (c Command) Token() string {
	if c.Fan {
		return CommandFanOn
	}

	return CommandFanOff
}

// Unrecognized is returned for anything that is neither a reading nor a command.
type Unrecognized struct {
	Topic  string
	Reason string
}

// Message is the result of Normalize: a Reading, a Command or an Unrecognized.
type Message interface {
	message()
}

func (Reading) message()      {}
func (Command) message()      {}
func (Unrecognized) message() {}
