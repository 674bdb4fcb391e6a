// Package devicesim emulates the field device: it produces readings in every
// payload shape the real firmware has been seen to send and obeys fan commands.
package devicesim

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

// Discomfort index bands used to classify a reading.
const (
	DangerDI  = 80.0
	CautionDI = 75.0
	ColdDI    = 60.0
)

// fanFlags cycles through the encodings of the fan flag, indexed by on/off.
//
//nolint:gochecknoglobals // Fixed vocabulary
var fanFlags = [][2]json.RawMessage{
	{json.RawMessage(`false`), json.RawMessage(`true`)},
	{json.RawMessage(`0`), json.RawMessage(`1`)},
	{json.RawMessage(`"false"`), json.RawMessage(`"true"`)},
	{json.RawMessage(`"0"`), json.RawMessage(`"1"`)},
}

type payload struct {
	Status    telemetry.Status `json:"status"`
	Temp      float64          `json:"temp"`
	Hum       float64          `json:"hum"`
	DI        float64          `json:"di"`
	Timestamp int64            `json:"timestamp"`
	Led       json.RawMessage  `json:"led"`
}

// Device is a simulated sensor with a fan. It is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	rng  *rand.Rand
	temp float64
	hum  float64
	fan  bool
	seq  int
}

// New returns a device starting at a comfortable 24 °C and 55 %.
func New(seed uint64) *Device {
	return &Device{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		temp: 24,
		hum:  55,
	}
}

// Apply handles a control payload and reports whether it was a fan command.
func (d *Device) Apply(p []byte) bool {
	c, ok := telemetry.DecodeCommand(p)
	if !ok {
		return false
	}

	d.mu.Lock()
	d.fan = c.Fan
	d.mu.Unlock()

	return true
}

func (d *Device) Fan() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fan
}

// Next advances the simulation and returns the encoded reading. Even sequence
// numbers report the timestamp in seconds, odd ones in milliseconds.
func (d *Device) Next(now time.Time) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	drift := d.rng.NormFloat64() * 0.4
	if d.fan {
		drift -= 0.3
	}

	d.temp = clamp(d.temp+drift, 5, 40)
	d.hum = clamp(d.hum+d.rng.NormFloat64(), 20, 95)

	di := round1(DiscomfortIndex(d.temp, d.hum))

	ts := now.Unix()
	if d.seq%2 == 1 {
		ts = now.UnixMilli()
	}

	on := 0
	if d.fan {
		on = 1
	}

	p := payload{
		Status:    Classify(di),
		Temp:      round1(d.temp),
		Hum:       round1(d.hum),
		DI:        di,
		Timestamp: ts,
		Led:       fanFlags[d.seq%len(fanFlags)][on],
	}
	d.seq++

	return utils.ToJSON(p)
}

// DiscomfortIndex is the Thom discomfort index for t in °C and h in percent.
func DiscomfortIndex(t, h float64) float64 {
	return 0.81*t + 0.01*h*(0.99*t-14.3) + 46.3
}

func Classify(di float64) telemetry.Status {
	switch {
	case di >= DangerDI:
		return telemetry.StatusDanger
	case di >= CautionDI:
		return telemetry.StatusCaution
	case di < ColdDI:
		return telemetry.StatusCold
	default:
		return telemetry.StatusSafe
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
