// Package postgres implements the job store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumonlabs/aria/pkg/jobs"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	progress   INTEGER NOT NULL DEFAULT 0,
	prompt     TEXT NOT NULL DEFAULT '',
	result     TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Store implements jobs.Store backed by a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and ensures the jobs table.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, job *jobs.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, progress, prompt, result, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, string(job.Status), job.Progress, job.Prompt, job.Result, job.Error,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Update merges patch inside a transaction holding a row lock, so no two
// writers can observe-then-overwrite the same record.
func (s *Store) Update(ctx context.Context, id string, patch jobs.Patch) (*jobs.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT id, status, progress, prompt, result, error, created_at, updated_at
		 FROM jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("reading job: %w", err)
	}

	if err := jobs.ApplyPatch(job, patch); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $1, progress = $2, result = $3, error = $4, updated_at = $5
		 WHERE id = $6`,
		string(job.Status), job.Progress, job.Result, job.Error, job.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return job, nil
}

// Get returns the current snapshot.
func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT id, status, progress, prompt, result, error, created_at, updated_at
		 FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobs.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("reading job: %w", err)
	}
	return job, nil
}

// DeleteExpired removes terminal records last updated before olderThan.
func (s *Store) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ($1, $2) AND updated_at < $3`,
		string(jobs.StatusCompleted), string(jobs.StatusFailed), olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var status string
	var createdAt, updatedAt time.Time

	err := row.Scan(&job.ID, &status, &job.Progress, &job.Prompt, &job.Result, &job.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.Status(status)
	job.CreatedAt = createdAt.UTC()
	job.UpdatedAt = updatedAt.UTC()
	return &job, nil
}
