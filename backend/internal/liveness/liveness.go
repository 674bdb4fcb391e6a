// Package liveness derives whether the physical device is reachable from broker
// connectivity and the age of the last accepted reading.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/pkg/feed"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
)

const (
	// DefaultReportInterval is how often the device publishes a reading.
	DefaultReportInterval = 2 * time.Second
	// StaleMultiplier is the number of missed reports after which the device is
	// considered gone.
	StaleMultiplier = 3
	// DefaultStaleTimeout is DefaultReportInterval times StaleMultiplier.
	DefaultStaleTimeout = DefaultReportInterval * StaleMultiplier
	// TickInterval is how often Run re-evaluates reachability.
	TickInterval = time.Second
)

// StaleTimeoutFor returns the stale timeout for a device reporting every interval.
func StaleTimeoutFor(interval time.Duration) time.Duration {
	if interval <= 0 {
		return DefaultStaleTimeout
	}

	return interval * StaleMultiplier
}

// Reachable is the liveness rule: connected to the broker and heard from the
// device within timeout.
func Reachable(state mqtt.ConnState, lastAcceptedAt, now time.Time, timeout time.Duration) bool {
	return state == mqtt.Connected &&
		!lastAcceptedAt.IsZero() &&
		now.Sub(lastAcceptedAt) <= timeout
}

// Status is a point-in-time view of the tracker inputs and its result.
type Status struct {
	Reachable      bool           `json:"reachable"`
	Connectivity   mqtt.ConnState `json:"connectivity"`
	LastAcceptedAt time.Time      `json:"lastAcceptedAt"`
	Timeout        time.Duration  `json:"-"`
}

type Tracker struct {
	l   *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	state   mqtt.ConnState
	last    time.Time
	timeout time.Duration
	emitted bool

	reachability *feed.Feed[bool]
}

// NewTracker returns a tracker using timeout (DefaultStaleTimeout when <= 0). now
// defaults to time.Now.
func NewTracker(l *slog.Logger, timeout time.Duration, now func() time.Time) *Tracker {
	if timeout <= 0 {
		timeout = DefaultStaleTimeout
	}

	if now == nil {
		now = time.Now
	}

	t := &Tracker{
		l:            l.With(slog.String("component", "liveness")),
		now:          now,
		timeout:      timeout,
		reachability: feed.NewLatest[bool](),
	}
	t.reachability.Send(false)

	return t
}

// Reachability subscribes to changes of the derived value. The current value is
// delivered first.
func (t *Tracker) Reachability(buffer int) *feed.Subscription[bool] {
	return t.reachability.Subscribe(buffer)
}

func (t *Tracker) SetConnectivity(s mqtt.ConnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()

	t.evaluate()
}

// MarkAccepted records when the latest reading was accepted.
func (t *Tracker) MarkAccepted(at time.Time) {
	t.mu.Lock()
	t.last = at
	t.mu.Unlock()

	t.evaluate()
}

func (t *Tracker) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultStaleTimeout
	}

	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()

	t.evaluate()
}

// Reachable computes the value from the current inputs and the current time.
func (t *Tracker) Reachable() bool {
	return t.Status().Reachable
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.statusLocked()
}

func (t *Tracker) statusLocked() Status {
	return Status{
		Reachable:      Reachable(t.state, t.last, t.now(), t.timeout),
		Connectivity:   t.state,
		LastAcceptedAt: t.last,
		Timeout:        t.timeout,
	}
}

// Run re-evaluates every TickInterval until ctx is done. Silence from the device
// is only noticed here, since no event marks its absence.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.evaluate()
		}
	}
}

func (t *Tracker) evaluate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.statusLocked()
	if st.Reachable == t.emitted {
		return
	}

	t.emitted = st.Reachable
	t.l.Info("device reachability changed",
		slog.Bool("reachable", st.Reachable),
		slog.String("connectivity", st.Connectivity.String()),
		slog.Time("lastAcceptedAt", st.LastAcceptedAt),
	)
	t.reachability.Send(st.Reachable)
}
