package migrator

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/tringuyenminh209/mimamori/backend/pkg/dialect"
)

// MigrationsDir is the directory inside the migration FS that holds *.sql files.
const MigrationsDir = "migrations"

// Migrator applies embedded dbmate migrations.
type Migrator interface {
	Migrate() error
}

// New returns a migrator for d using the dialect's embedded migrations.
//
//nolint:ireturn // Returns Migrator interface
func New(l *slog.Logger, d dialect.Dialect, connString string) (Migrator, error) {
	return NewWithFS(l, d, connString, d.MigrationFS())
}

// NewWithFS is New with an explicit migration FS.
//
//nolint:ireturn // Returns Migrator interface
func NewWithFS(l *slog.Logger, d dialect.Dialect, connString string, fsys fs.FS) (Migrator, error) {
	if connString == "" {
		return nil, errors.New("connection string is required")
	}

	if _, err := fs.ReadDir(fsys, MigrationsDir); err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	switch d {
	case dialect.SQLite:
		return newSQLiteMigrator(l, fsys, connString)
	case dialect.PostgreSQL:
		return newPostgresMigrator(l, fsys, connString)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", d)
	}
}
