// Package reconciler is the single writer of the dashboard state. It applies
// normalized device messages, connectivity changes and user fan intents, and fans
// the results out to observers.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/liveness"
	"github.com/tringuyenminh209/mimamori/backend/internal/metrics"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/feed"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const (
	messageBuffer      = 256
	connectivityBuffer = 16
)

// Session is the part of *mqtt.Session the reconciler drives.
type Session interface {
	Connect(cfg mqtt.SessionConfig)
	// Publish reports whether the message was handed to the broker link.
	Publish(topic string, payload []byte) bool
	Messages(buffer int) *feed.Subscription[mqtt.Message]
	Connectivity(buffer int) *feed.Subscription[mqtt.ConnState]
}

// Queue accepts readings for asynchronous storage.
type Queue interface {
	Enqueue(r telemetry.Reading) bool
}

// Latest returns the newest stored reading.
type Latest interface {
	QueryLatest(ctx context.Context) (history.Entry, error)
}

type Options struct {
	Logger   *slog.Logger
	Session  Session
	Tracker  *liveness.Tracker
	Queue    Queue
	Latest   Latest
	Metrics  *metrics.Metrics
	Settings settings.Settings
	// Now defaults to time.Now.
	Now func() time.Time
}

type Reconciler struct {
	l       *slog.Logger
	session Session
	tracker *liveness.Tracker
	queue   Queue
	latest  Latest
	m       *metrics.Metrics
	now     func() time.Time

	msgs  *feed.Subscription[mqtt.Message]
	conns *feed.Subscription[mqtt.ConnState]

	mu         sync.RWMutex
	snap       Snapshot
	settings   settings.Settings
	normalizer *telemetry.Normalizer

	readings     *feed.Feed[telemetry.Reading]
	fans         *feed.Feed[FanState]
	connectivity *feed.Feed[mqtt.ConnState]
	alerts       *feed.Feed[Alert]
}

// New wires a reconciler to its collaborators. Session and Tracker are required;
// Queue, Latest and Metrics may be nil.
func New(opts Options) (*Reconciler, error) {
	if opts.Session == nil {
		return nil, errors.New("reconciler: session is required")
	}

	if opts.Tracker == nil {
		return nil, errors.New("reconciler: liveness tracker is required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Reconciler{
		l:            opts.Logger.With(slog.String("component", "reconciler")),
		session:      opts.Session,
		tracker:      opts.Tracker,
		queue:        opts.Queue,
		latest:       opts.Latest,
		m:            opts.Metrics,
		now:          opts.Now,
		settings:     opts.Settings,
		normalizer:   telemetry.NewNormalizer(opts.Settings.DataTopic, opts.Settings.ControlTopic, opts.Now),
		readings:     feed.NewLatest[telemetry.Reading](),
		fans:         feed.NewLatest[FanState](),
		connectivity: feed.NewLatest[mqtt.ConnState](),
		alerts:       feed.New[Alert](),
	}

	r.fans.Send(FanState{})
	r.connectivity.Send(mqtt.Disconnected)

	// Subscribe before anything can connect so that no message is missed.
	r.msgs = opts.Session.Messages(messageBuffer)
	r.conns = opts.Session.Connectivity(connectivityBuffer)

	return r, nil
}

// Readings subscribes to accepted readings. The current one is delivered first.
func (r *Reconciler) Readings(buffer int) *feed.Subscription[telemetry.Reading] {
	return r.readings.Subscribe(buffer)
}

func (r *Reconciler) FanStates(buffer int) *feed.Subscription[FanState] {
	return r.fans.Subscribe(buffer)
}

func (r *Reconciler) ConnectivityStates(buffer int) *feed.Subscription[mqtt.ConnState] {
	return r.connectivity.Subscribe(buffer)
}

func (r *Reconciler) Alerts(buffer int) *feed.Subscription[Alert] {
	return r.alerts.Subscribe(buffer)
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.snap
	if s.Reading != nil {
		reading := *s.Reading
		s.Reading = &reading
	}

	return s
}

func (r *Reconciler) Settings() settings.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.settings
}

// Run consumes session traffic until ctx is done, then closes the observer feeds.
func (r *Reconciler) Run(ctx context.Context) {
	reach := r.tracker.Reachability(1)
	reachC := reach.C()

	defer func() {
		r.msgs.Close()
		r.conns.Close()
		reach.Close()
		r.readings.Close()
		r.fans.Close()
		r.connectivity.Close()
		r.alerts.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-r.msgs.C():
			if !ok {
				return
			}

			r.HandleMessage(m)
		case st, ok := <-r.conns.C():
			if !ok {
				return
			}

			r.SetConnectivity(st)
		case reachable, ok := <-reachC:
			if !ok {
				reachC = nil
				continue
			}

			r.m.SetReachable(reachable)
		}
	}
}

// HandleMessage normalizes a raw broker message and applies the result.
func (r *Reconciler) HandleMessage(m mqtt.Message) {
	r.mu.RLock()
	n, cfg := r.normalizer, r.settings
	r.mu.RUnlock()

	switch m.Topic {
	case cfg.DataTopic:
		r.m.MessageReceived(metrics.ChannelData)
	case cfg.ControlTopic:
		r.m.MessageReceived(metrics.ChannelControl)
	default:
		r.m.MessageReceived(metrics.ChannelOther)
	}

	switch msg := n.Normalize(m.Topic, m.Payload).(type) {
	case telemetry.Reading:
		r.ApplyReading(msg)
	case telemetry.Command:
		r.ApplyCommand(msg)
	case telemetry.Unrecognized:
		r.l.Debug("dropping unrecognized message",
			slog.String("topic", msg.Topic),
			slog.String("reason", msg.Reason),
			slog.Int("bytes", len(m.Payload)),
		)
		r.m.MessageDropped(metrics.DropUnrecognized, 1)
	}
}

// ApplyReading makes rd the current reading. A fan flag carried by the reading
// updates the fan state as device-sourced and never publishes a command.
func (r *Reconciler) ApplyReading(rd telemetry.Reading) {
	now := r.now()

	r.mu.Lock()

	prev := r.snap.Reading
	reading := rd
	r.snap.Reading = &reading
	r.snap.LastAcceptedAt = now

	fanChanged := rd.Fan.Present && rd.Fan.On != r.snap.Fan.On
	if fanChanged {
		r.snap.Fan = FanState{On: rd.Fan.On, Source: SourceDevice}
	}

	var alert *Alert
	if (prev == nil || prev.Status != rd.Status) && r.settings.AlertEnabled(rd.Status) {
		alert = &Alert{Status: rd.Status, Label: rd.Status.Label(), Reading: rd, At: now}
	}

	// Feeds are sent under mu so their order matches the order of snapshot
	// writes. Send never blocks.
	r.readings.Send(rd)

	if fanChanged {
		r.fans.Send(r.snap.Fan)
	}

	if alert != nil {
		r.alerts.Send(*alert)
	}

	r.mu.Unlock()

	r.tracker.MarkAccepted(now)
	r.m.ReadingAccepted(rd.Time())

	if fanChanged {
		r.l.Info("fan state reported by device", slog.Bool("on", rd.Fan.On))
	}

	if alert != nil {
		r.l.Warn("status alert", slog.String("status", string(alert.Status)), slog.Float64("discomfortIndex", rd.DiscomfortIndex))
	}

	if r.queue != nil {
		r.queue.Enqueue(rd)
	}
}

// ApplyCommand handles traffic on the control topic. Those are echoes of our own
// publishes or commands from other clients; the device confirms the result in its
// next reading, so state is left alone.
func (r *Reconciler) ApplyCommand(c telemetry.Command) {
	r.l.Debug("control message observed", slog.String("command", c.Token()))
}

// SetFan applies a user fan intent locally and publishes the command to the device.
func (r *Reconciler) SetFan(on bool) FanState {
	st := FanState{On: on, Source: SourceUser}
	cmd := telemetry.Command{Fan: on}.Token()

	r.mu.Lock()
	r.snap.Fan = st
	r.fans.Send(st)
	topic := r.settings.ControlTopic
	r.mu.Unlock()

	r.l.Info("fan toggled by user", slog.Bool("on", on))

	if r.session.Publish(topic, []byte(cmd)) {
		r.m.CommandPublished(cmd)
	} else {
		r.m.MessageDropped(metrics.DropNotConnected, 1)
	}

	return st
}

// SetConnectivity records the broker link state and forwards it to the tracker.
func (r *Reconciler) SetConnectivity(s mqtt.ConnState) {
	r.mu.Lock()
	changed := r.snap.Connectivity != s
	r.snap.Connectivity = s

	if changed {
		r.connectivity.Send(s)
	}
	r.mu.Unlock()

	r.tracker.SetConnectivity(s)
	r.m.SetConnectivity(int(s))
}

// LoadLatest seeds the current reading from storage when nothing has been received
// yet. It does not count as hearing from the device.
func (r *Reconciler) LoadLatest(ctx context.Context) error {
	if r.latest == nil {
		return nil
	}

	e, err := r.latest.QueryLatest(ctx)
	if errors.Is(err, history.ErrNotFound) {
		r.l.Debug("no stored reading to restore")
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load latest reading: %w", err)
	}

	r.mu.Lock()
	if r.snap.Reading != nil {
		r.mu.Unlock()
		return nil
	}

	reading := e.Reading
	r.snap.Reading = &reading
	r.readings.Send(e.Reading)
	r.mu.Unlock()

	r.l.Info("restored latest reading", slog.Int64("id", e.ID), slog.Int64("timestamp", e.Timestamp))

	return nil
}

// ApplySettings switches topics, stale timeout and alert switches to s and
// (re)connects the session. The session ignores the call when the broker and topics
// are unchanged and it is already connected.
func (r *Reconciler) ApplySettings(s settings.Settings) {
	r.mu.Lock()
	r.settings = s
	r.normalizer = telemetry.NewNormalizer(s.DataTopic, s.ControlTopic, r.now)
	r.mu.Unlock()

	r.tracker.SetTimeout(s.StaleTimeout())
	r.l.Info("applying settings",
		slog.String("broker", s.Broker),
		slog.String("dataTopic", s.DataTopic),
		slog.String("controlTopic", s.ControlTopic),
		slog.Duration("staleTimeout", s.StaleTimeout()),
	)

	r.session.Connect(s.Session())
}

// Watch applies every settings change received on sub until ctx is done.
func (r *Reconciler) Watch(ctx context.Context, sub *feed.Subscription[settings.Settings]) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sub.C():
			if !ok {
				return
			}

			if err := s.Validate(); err != nil {
				r.l.Error("ignoring invalid settings", utils.ErrAttr(err))
				continue
			}

			r.ApplySettings(s)
		}
	}
}
