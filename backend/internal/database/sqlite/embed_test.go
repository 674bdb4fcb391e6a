package sqlite

import (
	"io/fs"
	"strings"
	"testing"
)

func TestGetMigrationsFS(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(GetMigrationsFS(), "migrations")
	if err != nil {
		t.Fatalf("ReadDir(migrations) error = %v", err)
	}

	if len(entries) == 0 {
		t.Fatal("migrations directory is empty")
	}

	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".sql") {
			t.Errorf("unexpected migration file %s", e.Name())
		}

		body, err := fs.ReadFile(GetMigrationsFS(), "migrations/"+e.Name())
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", e.Name(), err)
		}

		if !strings.Contains(string(body), "-- migrate:up") || !strings.Contains(string(body), "-- migrate:down") {
			t.Errorf("%s lacks dbmate up/down markers", e.Name())
		}
	}
}
