package utils

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const slogTimeFormat = "2006-01-02 15:04:05"

// ErrAttr returns an slog attribute for an error under the "error" key.
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// SlogReplacer is used as slog.HandlerOptions.ReplaceAttr. It renders times in a
// compact local format and durations as strings ("5.25s").
func SlogReplacer(groups []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindTime:
		a.Value = slog.StringValue(a.Value.Time().Format(slogTimeFormat))
	case slog.KindDuration:
		a.Value = slog.StringValue(formatDuration(a.Value.Duration()))
	}

	return a
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}

	return fmt.Sprintf("%.2fs", d.Seconds())
}

// LogOnError runs fn and logs its error, if any. Meant for deferred Close calls.
func LogOnError(l *slog.Logger, fn func() error, msg string) {
	if err := fn(); err != nil {
		l.Error(msg, ErrAttr(err))
	}
}

// LogWriter adapts a slog.Logger to io.Writer for libraries that log through a writer.
type LogWriter struct {
	logger *slog.Logger
}

func NewSlogWriter(l *slog.Logger) *LogWriter {
	return &LogWriter{logger: l}
}

func (w *LogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	w.logger.Info(msg)

	return len(p), nil
}
