package jobs

import (
	"context"
	"time"
)

// Store is a keyed store of job records with atomic per-key update
// semantics. Many jobs mutate concurrently across turns, but each job has
// exactly one writer (its runner) over its lifetime; reads are allowed at
// any time from any goroutine.
type Store interface {
	// Create inserts a new record. It must not block the calling turn
	// beyond the insert itself.
	Create(ctx context.Context, job *Job) error

	// Update merges patch into the record under per-key serialization,
	// rejecting transitions that would move the lifecycle backward.
	// It returns the updated snapshot.
	Update(ctx context.Context, id string, patch Patch) (*Job, error)

	// Get returns the current snapshot, or NotFoundError when the id is
	// unknown. Repeated gets of a terminal job return identical snapshots.
	Get(ctx context.Context, id string) (*Job, error)

	// DeleteExpired removes terminal records last updated before olderThan
	// and reports how many were removed. In-flight records are never
	// touched. Used by the optional TTL sweeper.
	DeleteExpired(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
