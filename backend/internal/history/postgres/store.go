// Package postgres implements history.Gateway on PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tringuyenminh209/mimamori/backend/internal/history"
	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
)

const (
	orderNewestFirst = " ORDER BY timestamp DESC, id DESC"

	queryAll      = "SELECT " + history.Columns + " FROM readings" + orderNewestFirst
	queryByStatus = "SELECT " + history.Columns + " FROM readings WHERE status = $1" + orderNewestFirst
	queryRecent   = "SELECT " + history.Columns + " FROM readings" + orderNewestFirst + " LIMIT $1"
	queryLatest   = "SELECT " + history.Columns + " FROM readings" + orderNewestFirst + " LIMIT 1"

	insertReading = `INSERT INTO readings (status, temperature, humidity, discomfort_index, timestamp)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	replaceReading = `INSERT INTO readings (id, status, temperature, humidity, discomfort_index, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			temperature = EXCLUDED.temperature,
			humidity = EXCLUDED.humidity,
			discomfort_index = EXCLUDED.discomfort_index,
			timestamp = EXCLUDED.timestamp
		RETURNING id`
)

type Store struct {
	l    *slog.Logger
	pool *pgxpool.Pool
}

// Open connects a pool to connString. The schema must already be migrated.
func Open(ctx context.Context, l *slog.Logger, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	return &Store{
		l:    l.With(slog.String("component", "history-store"), slog.String("dialect", "postgres")),
		pool: pool,
	}, nil
}

func (s *Store) InsertOrReplace(ctx context.Context, e history.Entry) (int64, error) {
	var id int64

	if e.ID == 0 {
		if err := s.pool.QueryRow(ctx, insertReading,
			string(e.Status), e.Temperature, e.Humidity, e.DiscomfortIndex, e.Timestamp).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert reading: %w", err)
		}

		return id, nil
	}

	if err := s.pool.QueryRow(ctx, replaceReading,
		e.ID, string(e.Status), e.Temperature, e.Humidity, e.DiscomfortIndex, e.Timestamp).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to replace reading %d: %w", e.ID, err)
	}

	return id, nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM readings`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}

	s.l.Info("history cleared", slog.Int64("deleted", tag.RowsAffected()))

	return tag.RowsAffected(), nil
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
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]history.Entry, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return history.CollectEntries(rows)
}
