package migrator

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"

	"github.com/amacneil/dbmate/v2/pkg/dbmate"
	_ "github.com/amacneil/dbmate/v2/pkg/driver/sqlite"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

type sqliteMigrator struct {
	db   *dbmate.DB
	path string
	l    *slog.Logger
}

// newSQLiteMigrator takes a database file path. In-memory databases are rejected since
// the store would open a different, empty database.
func newSQLiteMigrator(l *slog.Logger, fsys fs.FS, path string) (*sqliteMigrator, error) {
	if strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory") {
		return nil, errors.New("in-memory databases are not supported")
	}

	u, err := url.Parse("sqlite:" + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	db := dbmate.New(u)
	db.Strict = true
	db.FS = fsys
	db.MigrationsDir = []string{MigrationsDir}
	db.AutoDumpSchema = false

	l = l.With(slog.String("component", "db-migrator"), slog.String("dialect", "sqlite"))
	db.Log = utils.NewSlogWriter(l)

	return &sqliteMigrator{l: l, db: db, path: path}, nil
}

func (m *sqliteMigrator) Migrate() error {
	m.l.Info("migrating database", slog.String("path", m.path))

	if err := m.db.CreateAndMigrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
