package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/metrics"
	"github.com/tringuyenminh209/mimamori/backend/internal/reconciler"
	"github.com/tringuyenminh209/mimamori/backend/internal/settings"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/feed"
	"github.com/tringuyenminh209/mimamori/backend/pkg/mqtt"
	"github.com/tringuyenminh209/mimamori/backend/pkg/router"
)

type fakeEngine struct {
	mu   sync.Mutex
	snap reconciler.Snapshot
	fans []bool

	readings     *feed.Feed[telemetry.Reading]
	fanStates    *feed.Feed[reconciler.FanState]
	connectivity *feed.Feed[mqtt.ConnState]
	alerts       *feed.Feed[reconciler.Alert]
}

func newFakeEngine() *fakeEngine {
	e := &fakeEngine{
		readings:     feed.NewLatest[telemetry.Reading](),
		fanStates:    feed.NewLatest[reconciler.FanState](),
		connectivity: feed.NewLatest[mqtt.ConnState](),
		alerts:       feed.New[reconciler.Alert](),
	}
	e.connectivity.Send(mqtt.Disconnected)

	return e
}

func (e *fakeEngine) Snapshot() reconciler.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snap
}

func (e *fakeEngine) SetFan(on bool) reconciler.FanState {
	e.mu.Lock()
	st := reconciler.FanState{On: on, Source: reconciler.SourceUser}
	e.snap.Fan = st
	e.fans = append(e.fans, on)
	e.mu.Unlock()

	e.fanStates.Send(st)

	return st
}

func (e *fakeEngine) FanCalls() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]bool(nil), e.fans...)
}

func (e *fakeEngine) Readings(n int) *feed.Subscription[telemetry.Reading] {
	return e.readings.Subscribe(n)
}

func (e *fakeEngine) FanStates(n int) *feed.Subscription[reconciler.FanState] {
	return e.fanStates.Subscribe(n)
}

func (e *fakeEngine) ConnectivityStates(n int) *feed.Subscription[mqtt.ConnState] {
	return e.connectivity.Subscribe(n)
}

func (e *fakeEngine) Alerts(n int) *feed.Subscription[reconciler.Alert] {
	return e.alerts.Subscribe(n)
}

type fakeLiveness struct {
	reachable atomic.Bool
	feed      *feed.Feed[bool]
}

func (f *fakeLiveness) Reachable() bool { return f.reachable.Load() }

func (f *fakeLiveness) Reachability(n int) *feed.Subscription[bool] {
	return f.feed.Subscribe(n)
}

type memGateway struct {
	mu      sync.Mutex
	entries []history.Entry
	pingErr error
}

func (g *memGateway) InsertOrReplace(_ context.Context, e history.Entry) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e.ID = int64(len(g.entries) + 1)
	g.entries = append(g.entries, e)

	return e.ID, nil
}

func (g *memGateway) sorted() []history.Entry {
	out := append([]history.Entry{}, g.entries...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}

		return out[i].ID > out[j].ID
	})

	return out
}

func (g *memGateway) DeleteAll(context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := int64(len(g.entries))
	g.entries = nil

	return n, nil
}

func (g *memGateway) QueryAll(context.Context) ([]history.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.sorted(), nil
}

func (g *memGateway) QueryByStatus(_ context.Context, s telemetry.Status) ([]history.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := []history.Entry{}
	for _, e := range g.sorted() {
		if e.Status == s {
			out = append(out, e)
		}
	}

	return out, nil
}

func (g *memGateway) QueryRecent(_ context.Context, limit int) ([]history.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.sorted()
	if limit < len(out) {
		out = out[:limit]
	}

	return out, nil
}

func (g *memGateway) QueryLatest(context.Context) (history.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.entries) == 0 {
		return history.Entry{}, history.ErrNotFound
	}

	return g.sorted()[0], nil
}

func (g *memGateway) Ping(context.Context) error { return g.pingErr }
func (g *memGateway) Close() error               { return nil }

type testAPI struct {
	srv      *httptest.Server
	engine   *fakeEngine
	liveness *fakeLiveness
	gw       *memGateway
	settings *settings.FileStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := settings.OpenFile(l, filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}

	ta := &testAPI{
		engine:   newFakeEngine(),
		liveness: &fakeLiveness{feed: feed.NewLatest[bool]()},
		gw:       &memGateway{},
		settings: store,
	}
	ta.liveness.feed.Send(false)

	doc := router.NewDocument(router.APIInfo{Title: "Mimamori", Version: "test"})

	h, err := NewHandler(Options{
		Logger:   l,
		Engine:   ta.engine,
		Liveness: ta.liveness,
		History:  ta.gw,
		Settings: store,
		Metrics:  metrics.New(),
		Document: doc,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rb, err := router.NewRouteBuilder(l, doc)
	if err != nil {
		t.Fatalf("NewRouteBuilder() error = %v", err)
	}

	h.Register(rb)

	ta.srv = httptest.NewServer(rb.Router())
	t.Cleanup(ta.srv.Close)

	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, ta.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}

	return v
}

func TestPing(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/api/ping", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := decode[PingResponse](t, body); got.Status != PingStatusOK {
		t.Errorf("Status = %v, want OK", got.Status)
	}

	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("response has no request ID")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ta.srv.URL+"/api/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if got := resp.Header.Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("%s = %v, want abc-123", RequestIDHeader, got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/api/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("disconnected status = %d, want 503", resp.StatusCode)
	}

	if got := decode[HealthResponse](t, body); got.MQTT || !got.Database {
		t.Errorf("health = %+v, want database only", got)
	}

	ta.engine.mu.Lock()
	ta.engine.snap.Connectivity = mqtt.Connected
	ta.engine.mu.Unlock()
	ta.liveness.reachable.Store(true)

	resp, body = ta.do(t, http.MethodGet, "/api/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("connected status = %d, want 200", resp.StatusCode)
	}

	got := decode[HealthResponse](t, body)
	if !got.MQTT || !got.DeviceReachable || got.Connectivity != mqtt.Connected {
		t.Errorf("health = %+v, want connected and reachable", got)
	}
}

func TestState(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	_, body := ta.do(t, http.MethodGet, "/api/state", "")
	if got := decode[StateResponse](t, body); got.Reading != nil || got.LastAcceptedAt != nil {
		t.Errorf("empty state = %+v, want no reading", got)
	}

	at := time.UnixMilli(1_700_000_000_000).UTC()
	ta.engine.mu.Lock()
	ta.engine.snap = reconciler.Snapshot{
		Reading:        &telemetry.Reading{Status: telemetry.StatusDanger, Temperature: 30.2, Timestamp: 1_700_000_000_000},
		Fan:            reconciler.FanState{On: true, Source: reconciler.SourceDevice},
		Connectivity:   mqtt.Connected,
		LastAcceptedAt: at,
	}
	ta.engine.mu.Unlock()

	_, body = ta.do(t, http.MethodGet, "/api/state", "")

	got := decode[StateResponse](t, body)
	if got.Reading == nil || got.Reading.Status != telemetry.StatusDanger || got.StatusLabel != telemetry.StatusDanger.Label() {
		t.Errorf("state reading = %+v (%s), want KIKEN", got.Reading, got.StatusLabel)
	}

	if got.Fan != (reconciler.FanState{On: true, Source: reconciler.SourceDevice}) {
		t.Errorf("state fan = %+v, want on from device", got.Fan)
	}

	if got.LastAcceptedAt == nil || !got.LastAcceptedAt.Equal(at) {
		t.Errorf("LastAcceptedAt = %v, want %v", got.LastAcceptedAt, at)
	}

	if !strings.Contains(string(body), `"source":"device"`) || !strings.Contains(string(body), `"connectivity":"connected"`) {
		t.Errorf("body = %s, want text enums", body)
	}
}

func TestSetFan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "on", body: `{"on":true}`, status: http.StatusOK},
		{name: "off", body: `{"on":false}`, status: http.StatusOK},
		{name: "missing field", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"on":true,"speed":3}`, status: http.StatusBadRequest},
		{name: "wrong type", body: `{"on":"yes"}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{"on":`, status: http.StatusBadRequest},
		{name: "empty", body: ``, status: http.StatusBadRequest},
		{name: "two objects", body: `{"on":true}{"on":false}`, status: http.StatusBadRequest},
		{name: "too large", body: `{"on":true,"x":"` + strings.Repeat("a", MaxBodySize) + `"}`, status: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ta := newTestAPI(t)

			resp, body := ta.do(t, http.MethodPut, "/api/fan", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}

			calls := ta.engine.FanCalls()

			if tt.status != http.StatusOK {
				if len(calls) != 0 {
					t.Errorf("SetFan calls = %v, want none", calls)
				}

				if got := decode[ErrorResponse](t, body); got.Message == "" || got.RequestID == "" {
					t.Errorf("error body = %+v, want message and request ID", got)
				}

				return
			}

			want := tt.body == `{"on":true}`
			if len(calls) != 1 || calls[0] != want {
				t.Errorf("SetFan calls = %v, want [%v]", calls, want)
			}

			if got := decode[reconciler.FanState](t, body); got.On != want || got.Source != reconciler.SourceUser {
				t.Errorf("fan = %+v, want %v from user", got, want)
			}
		})
	}
}

func seed(t *testing.T, gw *memGateway) {
	t.Helper()

	for i, s := range []telemetry.Status{telemetry.StatusSafe, telemetry.StatusDanger, telemetry.StatusSafe, telemetry.StatusCaution} {
		r := telemetry.Reading{Status: s, Timestamp: int64(1_700_000_000_000 + i*1000)}
		if _, err := gw.InsertOrReplace(context.Background(), history.Entry{Reading: r}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/api/history/latest", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("latest on empty store status = %d, want 404 (%s)", resp.StatusCode, body)
	}

	seed(t, ta.gw)

	_, body = ta.do(t, http.MethodGet, "/api/history", "")
	if got := decode[HistoryResponse](t, body); got.Count != 4 || got.Entries[0].Status != telemetry.StatusCaution {
		t.Errorf("list = %+v, want 4 newest first", got)
	}

	_, body = ta.do(t, http.MethodGet, "/api/history?status=ANZEN", "")
	if got := decode[HistoryResponse](t, body); got.Count != 2 {
		t.Errorf("filtered count = %d, want 2", got.Count)
	}

	_, body = ta.do(t, http.MethodGet, "/api/history/recent?limit=3", "")
	if got := decode[HistoryResponse](t, body); got.Count != 3 {
		t.Errorf("recent count = %d, want 3", got.Count)
	}

	_, body = ta.do(t, http.MethodGet, "/api/history/recent", "")
	if got := decode[HistoryResponse](t, body); got.Count != 4 {
		t.Errorf("recent default count = %d, want 4", got.Count)
	}

	for _, q := range []string{"limit=0", "limit=abc", "limit=501"} {
		if resp, _ := ta.do(t, http.MethodGet, "/api/history/recent?"+q, ""); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("recent?%s status = %d, want 400", q, resp.StatusCode)
		}
	}

	resp, body = ta.do(t, http.MethodGet, "/api/history/latest", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest status = %d, want 200", resp.StatusCode)
	}

	if got := decode[history.Entry](t, body); got.ID != 4 || got.Status != telemetry.StatusCaution {
		t.Errorf("latest = %+v, want ID 4 CHUI", got)
	}

	_, body = ta.do(t, http.MethodDelete, "/api/history", "")
	if got := decode[DeleteHistoryResponse](t, body); got.Deleted != 4 {
		t.Errorf("deleted = %d, want 4", got.Deleted)
	}

	_, body = ta.do(t, http.MethodGet, "/api/history", "")
	if got := decode[HistoryResponse](t, body); got.Count != 0 || got.Entries == nil {
		t.Errorf("list after delete = %+v, want empty array", got)
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)
	changes := ta.settings.Changes(4)

	_, body := ta.do(t, http.MethodGet, "/api/settings", "")
	if got := decode[settings.Settings](t, body); got.DataTopic != settings.DefaultDataTopic {
		t.Errorf("settings = %+v, want defaults", got)
	}

	update := `{"broker":"tcp://127.0.0.1:1883","dataTopic":"home/data","controlTopic":"home/control",` +
		`"chartDataPoints":50,"updateInterval":5,"alertDanger":true,"alertCaution":false,"alertCold":true}`

	resp, body := ta.do(t, http.MethodPut, "/api/settings", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200 (%s)", resp.StatusCode, body)
	}

	got := decode[settings.Settings](t, body)
	if got.DataTopic != "home/data" || got.ChartDataPoints != 50 || got.LastUpdate.IsZero() {
		t.Errorf("updated = %+v, want saved values", got)
	}

	select {
	case s := <-changes.C():
		if s.Broker != "tcp://127.0.0.1:1883" {
			t.Errorf("change broker = %v, want tcp://127.0.0.1:1883", s.Broker)
		}
	default:
		t.Error("update did not publish a settings change")
	}

	invalid := strings.Replace(update, `"controlTopic":"home/control"`, `"controlTopic":"home/data"`, 1)

	resp, body = ta.do(t, http.MethodPut, "/api/settings", invalid)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid update status = %d, want 400", resp.StatusCode)
	}

	if e := decode[ErrorResponse](t, body); e.Errors["controlTopic"] == "" {
		t.Errorf("errors = %v, want controlTopic", e.Errors)
	}

	_, body = ta.do(t, http.MethodDelete, "/api/settings", "")
	if got := decode[settings.Settings](t, body); got != settings.Defaults() {
		t.Errorf("reset = %+v, want defaults", got)
	}
}

func TestOpenAPIAndMetrics(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	resp, body := ta.do(t, http.MethodGet, "/api/openapi.json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi status = %d, want 200", resp.StatusCode)
	}

	doc := decode[map[string]any](t, body)

	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/api/ping", "/api/health", "/api/state", "/api/fan", "/api/history", "/api/history/recent", "/api/history/latest", "/api/settings"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("openapi paths missing %s", p)
		}
	}

	resp, _ = ta.do(t, http.MethodGet, "/api/openapi.yaml", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("openapi.yaml status = %d, want 200", resp.StatusCode)
	}

	resp, body = ta.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics status = %d, want 200 with runtime metrics", resp.StatusCode)
	}
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "http error", err: NewError(http.StatusConflict, "Conflict"), status: http.StatusConflict, message: "Conflict"},
		{name: "internal error", err: errors.New("db exploded"), status: http.StatusInternalServerError, message: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithRequestID(req.Context(), "req-1"))

			ErrorHandler(func(http.ResponseWriter, *http.Request) error { return tt.err })(rec, req)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			got := decode[ErrorResponse](t, rec.Body.Bytes())
			if got.Message != tt.message || got.RequestID != "req-1" {
				t.Errorf("body = %+v, want %q with request ID", got, tt.message)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	h := &Handler{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	h.RecoveryMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	ta := newTestAPI(t)

	url := "ws" + strings.TrimPrefix(ta.srv.URL, "http") + "/api/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	seen := map[StreamEventType]bool{}
	for !seen[EventConnectivity] || !seen[EventReachability] {
		var ev StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}

		seen[ev.Type] = true
	}

	ta.engine.readings.Send(telemetry.Reading{Status: telemetry.StatusCold, Timestamp: 1_700_000_000_000})

	if err := conn.WriteJSON(StreamRequest{Fan: boolPtr(true)}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var gotReading, gotFan bool
	for !gotReading || !gotFan {
		var ev StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}

		switch ev.Type {
		case EventReading:
			gotReading = ev.Reading != nil && ev.Reading.Status == telemetry.StatusCold
		case EventFan:
			gotFan = ev.Fan != nil && ev.Fan.On && ev.Fan.Source == reconciler.SourceUser
		}
	}

	if calls := ta.engine.FanCalls(); len(calls) != 1 || !calls[0] {
		t.Errorf("SetFan calls = %v, want [true]", calls)
	}
}

func boolPtr(b bool) *bool { return &b }
