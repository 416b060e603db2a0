package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500

	// Fixed width, so stored timestamps sort lexically.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// SQLiteRepository keeps history in the event_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository returns a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts an entry.
func (r *SQLiteRepository) Record(ctx context.Context, entry Entry) error {
	if entry.Kind != KindConnection && entry.Kind != KindSensor {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, entry.Kind)
	}
	if entry.Value == "" {
		return fmt.Errorf("%w: value is required", ErrInvalidEntry)
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO event_history (kind, value, occurred_at) VALUES (?, ?, ?)",
		string(entry.Kind),
		entry.Value,
		formatTimestamp(entry.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("inserting event history: %w", err)
	}
	return nil
}

// Recent returns the newest entries (default 50, max 500).
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, value, occurred_at
		 FROM event_history
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying event history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			kind       string
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Value, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning event history: %w", err)
		}
		e.Kind = Kind(kind)
		if e.OccurredAt, err = time.Parse(timestampLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTimestamp(r.now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, "DELETE FROM event_history WHERE occurred_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting event history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
