//go:build cgo

package sqlite

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/tringuyenminh209/mimamori/backend/internal/history/historytest"
	"github.com/tringuyenminh209/mimamori/backend/pkg/dialect"
	"github.com/tringuyenminh209/mimamori/backend/pkg/migrator"
)

func TestStore_Gateway(t *testing.T) {
	t.Parallel()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "history.sqlite")

	m, err := migrator.New(l, dialect.SQLite, path)
	if err != nil {
		t.Fatalf("migrator.New() error = %v", err)
	}

	if err := m.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	s, err := Open(l, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	historytest.Run(t, s)
}
