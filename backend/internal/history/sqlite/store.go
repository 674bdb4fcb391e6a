// Package sqlite implements history.Gateway on a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const dsnOptions = "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

const (
	orderNewestFirst = " ORDER BY timestamp DESC, id DESC"

	queryAll      = "SELECT " + history.Columns + " FROM readings" + orderNewestFirst
	queryByStatus = "SELECT " + history.Columns + " FROM readings WHERE status = ?" + orderNewestFirst
	queryRecent   = "SELECT " + history.Columns + " FROM readings" + orderNewestFirst + " LIMIT ?"
	queryLatest   = "SELECT " + history.Columns + " FROM readings" + orderNewestFirst + " LIMIT 1"

	insertReading  = `INSERT INTO readings (status, temperature, humidity, discomfort_index, timestamp) VALUES (?, ?, ?, ?, ?)`
	replaceReading = `INSERT OR REPLACE INTO readings (id, status, temperature, humidity, discomfort_index, timestamp) VALUES (?, ?, ?, ?, ?, ?)`
)

type Store struct {
	l  *slog.Logger
	db *sql.DB
}

// Open opens the database at path. The schema must already be migrated.
func Open(l *slog.Logger, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY between the writer and API deletes.
	db.SetMaxOpenConns(1)

	return &Store{
		l:  l.With(slog.String("component", "history-store"), slog.String("dialect", "sqlite")),
		db: db,
	}, nil
}

func (s *Store) InsertOrReplace(ctx context.Context, e history.Entry) (int64, error) {
	if e.ID == 0 {
		res, err := s.db.ExecContext(ctx, insertReading,
			string(e.Status), e.Temperature, e.Humidity, e.DiscomfortIndex, e.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted id: %w", err)
		}

		return id, nil
	}

	if _, err := s.db.ExecContext(ctx, replaceReading,
		e.ID, string(e.Status), e.Temperature, e.Humidity, e.DiscomfortIndex, e.Timestamp); err != nil {
		return 0, fmt.Errorf("failed to replace reading %d: %w", e.ID, err)
	}

	return e.ID, nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted readings: %w", err)
	}

	s.l.Info("history cleared", slog.Int64("deleted", n))

	return n, nil
}

func (s *Store) QueryAll(ctx context.Context) ([]history.Entry, error) {
	return s.query(ctx, queryAll)
}

func (s *Store) QueryByStatus(ctx context.Context, status telemetry.Status) ([]history.Entry, error) {
	return s.query(ctx, queryByStatus, string(status))
}

func (s *Store) QueryRecent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		return []history.Entry{}, nil
	}

	return s.query(ctx, queryRecent, limit)
}

func (s *Store) QueryLatest(ctx context.Context) (history.Entry, error) {
	entries, err := s.query(ctx, queryLatest)
	if err != nil {
		return history.Entry{}, err
	}

	if len(entries) == 0 {
		return history.Entry{}, history.ErrNotFound
	}

	return entries[0], nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]history.Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer utils.LogOnError(s.l, rows.Close, "failed to close rows")

	return history.CollectEntries(rows)
}
