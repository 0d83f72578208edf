// Package inmemory implements the job store with a mutex-guarded map.
package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lumonlabs/aria/pkg/jobs"
)

// Store implements jobs.Store using an in-memory map.
type Store struct {
	// mu serializes all record mutations; per-key atomicity follows from
	// holding the write lock across the read-validate-write of Update.
	mu sync.RWMutex

	records map[string]*jobs.Job
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*jobs.Job),
	}
}

// Create inserts a new record.
func (s *Store) Create(_ context.Context, job *jobs.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[job.ID]; exists {
		return errors.New("job already exists: " + job.ID)
	}

	clone := *job
	s.records[job.ID] = &clone
	return nil
}

// Update merges patch into the record under the store lock, so no two
// writers can observe-then-overwrite the same record.
func (s *Store) Update(_ context.Context, id string, patch jobs.Patch) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, jobs.NotFoundError{ID: id}
	}

	updated := *record
	if err := jobs.ApplyPatch(&updated, patch); err != nil {
		return nil, err
	}

	s.records[id] = &updated
	snapshot := updated
	return &snapshot, nil
}

// Get returns a copy of the current record.
func (s *Store) Get(_ context.Context, id string) (*jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, jobs.NotFoundError{ID: id}
	}

	snapshot := *record
	return &snapshot, nil
}

// DeleteExpired removes terminal records last updated before olderThan.
func (s *Store) DeleteExpired(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if record.Status.Terminal() && record.UpdatedAt.Before(olderThan) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
