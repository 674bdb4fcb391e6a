package postgres

import (
	"io/fs"
	"testing"
)

func TestGetMigrationsFS(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(GetMigrationsFS(), "migrations")
	if err != nil {
		t.Fatalf("ReadDir(migrations) error = %v", err)
	}

	if len(entries) == 0 {
		t.Error("migrations directory is empty")
	}
}
