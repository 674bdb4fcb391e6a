// Package history defines the reading store used for lists, filters and charts,
// and the asynchronous writer that feeds it.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/tringuyenminh209/mimamori/backend/internal/telemetry"
)

// ErrNotFound is returned by QueryLatest when nothing is stored.
var ErrNotFound = errors.New("no readings stored")

// Entry is a stored reading. ID 0 means not stored yet.
type Entry struct {
	ID int64 `json:"id"`
	telemetry.Reading
}

// Gateway is an append-only reading store. Every query returns entries newest first,
// ordered by device timestamp and then by ID.
type Gateway interface {
	// InsertOrReplace stores e and returns its ID. A zero ID inserts a new row, any
	// other ID replaces that row.
	InsertOrReplace(ctx context.Context, e Entry) (int64, error)
	// DeleteAll removes every entry and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)
	QueryAll(ctx context.Context) ([]Entry, error)
	QueryByStatus(ctx context.Context, status telemetry.Status) ([]Entry, error)
	// QueryRecent returns at most limit entries; limit <= 0 returns none.
	QueryRecent(ctx context.Context, limit int) ([]Entry, error)
	QueryLatest(ctx context.Context) (Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Rows is the subset of *sql.Rows and pgx.Rows that CollectEntries needs.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Columns is the select list matching CollectEntries.
const Columns = "id, status, temperature, humidity, discomfort_index, timestamp"

// CollectEntries scans rows selected with Columns.
func CollectEntries(rows Rows) ([]Entry, error) {
	entries := []Entry{}

	for rows.Next() {
		var (
			e      Entry
			status string
		)

		if err := rows.Scan(&e.ID, &status, &e.Temperature, &e.Humidity, &e.DiscomfortIndex, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		e.Status = telemetry.Status(status)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return entries, nil
}
