package history

import (
	"context"
	"errors"
	"time"
)

// Kind separates broker connection changes from sensor events.
type Kind string

const (
	KindConnection Kind = "connection"
	KindSensor     Kind = "sensor"
)

// ErrInvalidEntry is returned by Record for entries missing a kind or value.
var ErrInvalidEntry = errors.New("history: invalid entry")

// Entry is one recorded observation.
type Entry struct {
	ID         int64     `json:"id"`
	Kind       Kind      `json:"kind"`
	Value      string    `json:"value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository stores and retrieves event history.
//
// Implementations must be safe for concurrent use and store UTC timestamps.
type Repository interface {
	// Record persists one entry. A zero OccurredAt means now.
	Record(ctx context.Context, entry Entry) error

	// Recent returns up to limit entries, newest first. The limit is
	// clamped to the implementation's bounds.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Prune deletes entries older than now-olderThan and returns how
	// many were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
