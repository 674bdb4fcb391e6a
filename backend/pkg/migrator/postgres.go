package migrator

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"

	"github.com/amacneil/dbmate/v2/pkg/dbmate"
	_ "github.com/amacneil/dbmate/v2/pkg/driver/postgres"

	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

type postgresMigrator struct {
	db *dbmate.DB
	l  *slog.Logger
}

// newPostgresMigrator takes a postgresql:// URL.
func newPostgresMigrator(l *slog.Logger, fsys fs.FS, connStr string) (*postgresMigrator, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	db := dbmate.New(u)
	db.Strict = true
	db.FS = fsys
	db.MigrationsDir = []string{MigrationsDir}
	db.AutoDumpSchema = false

	l = l.With(slog.String("component", "db-migrator"), slog.String("dialect", "postgres"))
	db.Log = utils.NewSlogWriter(l)

	return &postgresMigrator{l: l, db: db}, nil
}

func (m *postgresMigrator) Migrate() error {
	m.l.Info("migrating database")

	if err := m.db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
