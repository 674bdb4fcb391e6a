package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/tringuyenminh209/mimamori/backend/internal/metrics"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 5 * time.Second
	drainTimeout        = 5 * time.Second
)

// Writer persists readings on a single background worker so that a slow or failing
// store never holds up ingestion. When the queue is full new readings are dropped.
type Writer struct {
	l       *slog.Logger
	gw      Gateway
	m       *metrics.Metrics
	queue   chan telemetry.Reading
	timeout time.Duration
}

// NewWriter returns a writer with a queue of size (DefaultQueueSize when <= 0).
// m may be nil.
func NewWriter(l *slog.Logger, gw Gateway, m *metrics.Metrics, size int) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Writer{
		l:       l.With(slog.String("component", "history-writer")),
		gw:      gw,
		m:       m,
		queue:   make(chan telemetry.Reading, size),
		timeout: DefaultWriteTimeout,
	}
}

// Enqueue schedules r for storage without blocking. It reports false when the
// reading was dropped.
func (w *Writer) Enqueue(r telemetry.Reading) bool {
	select {
	case w.queue <- r:
		return true
	default:
		w.l.Warn("history queue full, dropping reading", slog.Int64("timestamp", r.Timestamp))
		w.m.MessageDropped(metrics.DropQueueFull, 1)

		return false
	}
}

// Pending returns the number of queued readings.
func (w *Writer) Pending() int {
	return len(w.queue)
}

// Run writes queued readings until ctx is done, then flushes what is left with a
// bounded deadline.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case r := <-w.queue:
			w.write(ctx, r)
		case <-ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case r := <-w.queue:
			w.write(ctx, r)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, r telemetry.Reading) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	id, err := w.gw.InsertOrReplace(ctx, Entry{Reading: r})
	if err != nil {
		w.l.Error("failed to store reading", slog.Int64("timestamp", r.Timestamp), utils.ErrAttr(err))
		w.m.HistoryWrite(metrics.WriteFailed)

		return
	}

	w.l.Debug("stored reading", slog.Int64("id", id), slog.Int64("timestamp", r.Timestamp))
	w.m.HistoryWrite(metrics.WriteOK)
}
