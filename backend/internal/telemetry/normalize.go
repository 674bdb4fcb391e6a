package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Raw timestamps in this range are Unix seconds; 999_999_999_999 is the largest
// value that cannot be a millisecond timestamp after September 2001.
const (
	minSecondsTimestamp = 1
	maxSecondsTimestamp = 999_999_999_999
)

// NormalizeTimestamp converts a raw device timestamp to Unix milliseconds.
func NormalizeTimestamp(raw int64) int64 {
	if raw >= minSecondsTimestamp && raw <= maxSecondsTimestamp {
		return raw * 1000
	}

	return raw
}

// Normalizer dispatches payloads by topic. It holds no state besides its
// configuration and clock.
type Normalizer struct {
	dataTopic    string
	controlTopic string
	now          func() time.Time
}

// NewNormalizer returns a Normalizer for the given topics. now defaults to time.Now.
func NewNormalizer(dataTopic, controlTopic string, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}

	return &Normalizer{dataTopic: dataTopic, controlTopic: controlTopic, now: now}
}

// Normalize never fails: payloads that cannot be read come back as Unrecognized.
//
//nolint:ireturn // Sum type
func (n *Normalizer) Normalize(topic string, payload []byte) Message {
	switch topic {
	case n.dataTopic:
		r, err := DecodeReading(payload, n.now())
		if err != nil {
			return Unrecognized{Topic: topic, Reason: err.Error()}
		}

		return r
	case n.controlTopic:
		c, ok := DecodeCommand(payload)
		if !ok {
			return Unrecognized{Topic: topic, Reason: "unknown command"}
		}

		return c
	default:
		return Unrecognized{Topic: topic, Reason: "unknown topic"}
	}
}

var errNotObject = errors.New("payload is not a JSON object")

// DecodeReading decodes a data payload. Missing fields take their defaults; observed
// is used when the payload carries no usable timestamp.
func DecodeReading(payload []byte, observed time.Time) (Reading, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return Reading{}, errNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Reading{}, errNotObject
	}

	r := Reading{
		Status:          decodeStatus(fields["status"]),
		Temperature:     decodeNumber(fields["temp"]),
		Humidity:        decodeNumber(fields["hum"]),
		DiscomfortIndex: decodeNumber(fields["di"]),
		Timestamp:       observed.UnixMilli(),
	}

	if ts, ok := decodeInt(fields["timestamp"]); ok {
		r.Timestamp = NormalizeTimestamp(ts)
	}

	if raw, ok := fields["led"]; ok {
		r.Fan = FanFlag{Present: true, On: CoerceFlag(raw)}
	}

	return r, nil
}

// DecodeCommand accepts LED_ON and LED_OFF, ignoring case and surrounding space.
func DecodeCommand(payload []byte) (Command, bool) {
	switch s := strings.TrimSpace(string(payload)); {
	case strings.EqualFold(s, CommandFanOn):
		return Command{Fan: true}, true
	case strings.EqualFold(s, CommandFanOff):
		return Command{Fan: false}, true
	default:
		return Command{}, false
	}
}

func decodeStatus(raw json.RawMessage) Status {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return StatusSafe
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return StatusSafe
		}

		return Status(s)
	}

	// Non-string values keep their JSON text.
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Status(raw)
	}

	return Status(buf.String())
}

func numberText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch classifyFlag(raw) {
	case flagNumber:
		return string(raw), true
	case flagString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}

		return strings.TrimSpace(s), true
	default:
		return "", false
	}
}

func decodeNumber(raw json.RawMessage) float64 {
	s, ok := numberText(raw)
	if !ok {
		return 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return f
}

func decodeInt(raw json.RawMessage) (int64, bool) {
	s, ok := numberText(raw)
	if !ok {
		return 0, false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}

	return int64(f), true
}
