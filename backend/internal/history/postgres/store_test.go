package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/tringuyenminh209/mimamori/backend/internal/history/historytest"
	"github.com/tringuyenminh209/mimamori/backend/pkg/dialect"
	"github.com/tringuyenminh209/mimamori/backend/pkg/migrator"
)

// Runs against a disposable database named by TEST_POSTGRES_URL.
func TestStore_Gateway(t *testing.T) {
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	l := slog.New(slog.NewTextHandler(io.Discard, nil))

	m, err := migrator.New(l, dialect.PostgreSQL, url)
	if err != nil {
		t.Fatalf("migrator.New() error = %v", err)
	}

	if err := m.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	s, err := Open(context.Background(), l, url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	historytest.Run(t, s)
}
