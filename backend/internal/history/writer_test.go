package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
)

// memGateway records inserts; block, when set, stalls every insert until closed.
type memGateway struct {
	mu      sync.Mutex
	entries []Entry
	fail    bool
	block   chan struct{}
}

func (g *memGateway) InsertOrReplace(ctx context.Context, e Entry) (int64, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fail {
		return 0, errors.New("disk full")
	}

	e.ID = int64(len(g.entries) + 1)
	g.entries = append(g.entries, e)

	return e.ID, nil
}

func (g *memGateway) stored() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]Entry(nil), g.entries...)
}

func (g *memGateway) DeleteAll(context.Context) (int64, error)  { return 0, nil }
func (g *memGateway) QueryAll(context.Context) ([]Entry, error) { return g.stored(), nil }
func (g *memGateway) QueryByStatus(context.Context, telemetry.Status) ([]Entry, error) {
	return nil, nil
}
func (g *memGateway) QueryRecent(context.Context, int) ([]Entry, error) { return nil, nil }
func (g *memGateway) QueryLatest(context.Context) (Entry, error)        { return Entry{}, ErrNotFound }
func (g *memGateway) Ping(context.Context) error                        { return nil }
func (g *memGateway) Close() error                                      { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestWriter_StoresInOrder(t *testing.T) {
	t.Parallel()

	gw := &memGateway{}
	w := NewWriter(testLogger(), gw, nil, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	for ts := int64(1); ts <= 3; ts++ {
		if !w.Enqueue(telemetry.Reading{Status: telemetry.StatusSafe, Timestamp: ts}) {
			t.Fatalf("Enqueue(%d) dropped", ts)
		}
	}

	waitFor(t, func() bool { return len(gw.stored()) == 3 })

	for i, e := range gw.stored() {
		if e.Timestamp != int64(i+1) {
			t.Errorf("stored[%d].Timestamp = %v, want %v", i, e.Timestamp, i+1)
		}
	}
}

func TestWriter_FullQueueDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	gw := &memGateway{block: make(chan struct{})}
	w := NewWriter(testLogger(), gw, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	// First reading is taken by the worker and stalls there.
	w.Enqueue(telemetry.Reading{Timestamp: 1})
	waitFor(t, func() bool { return w.Pending() == 0 })

	accepted := 0
	start := time.Now()

	for ts := int64(2); ts <= 10; ts++ {
		if w.Enqueue(telemetry.Reading{Timestamp: ts}) {
			accepted++
		}
	}

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Enqueue() blocked for %v", elapsed)
	}

	if accepted != 2 {
		t.Errorf("accepted = %v, want 2", accepted)
	}

	close(gw.block)
	waitFor(t, func() bool { return len(gw.stored()) == 3 })
}

func TestWriter_FailureIsLoggedNotFatal(t *testing.T) {
	t.Parallel()

	gw := &memGateway{fail: true}
	w := NewWriter(testLogger(), gw, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	w.Enqueue(telemetry.Reading{Timestamp: 1})
	waitFor(t, func() bool { return w.Pending() == 0 })

	gw.mu.Lock()
	gw.fail = false
	gw.mu.Unlock()

	w.Enqueue(telemetry.Reading{Timestamp: 2})
	waitFor(t, func() bool { return len(gw.stored()) == 1 })
}

func TestWriter_DrainsOnShutdown(t *testing.T) {
	t.Parallel()

	gw := &memGateway{}
	w := NewWriter(testLogger(), gw, nil, 8)

	for ts := int64(1); ts <= 4; ts++ {
		w.Enqueue(telemetry.Reading{Timestamp: ts})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if n := len(gw.stored()); n != 4 {
		t.Errorf("stored %v readings, want 4 after drain", n)
	}
}
