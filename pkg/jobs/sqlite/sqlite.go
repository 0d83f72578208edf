// Package sqlite implements the job store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// SQLite driver registration
	_ "github.com/mattn/go-sqlite3"

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
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store implements jobs.Store backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent job updates.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}

	return &Store{db: db}, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, job *jobs.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, progress, prompt, result, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.Progress, job.Prompt, job.Result, job.Error,
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Update merges patch inside a transaction: read, validate through the
// shared lifecycle rules, write. The transaction provides the per-key
// serialization the store contract requires.
func (s *Store) Update(ctx context.Context, id string, patch jobs.Patch) (*jobs.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT id, status, progress, prompt, result, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("reading job: %w", err)
	}

	if err := jobs.ApplyPatch(job, patch); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, result = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(job.Status), job.Progress, job.Result, job.Error, job.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return job, nil
}

// Get returns the current snapshot.
func (s *Store) Get(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, status, progress, prompt, result, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("reading job: %w", err)
	}
	return job, nil
}

// DeleteExpired removes terminal records last updated before olderThan.
func (s *Store) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		string(jobs.StatusCompleted), string(jobs.StatusFailed), olderThan.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired jobs: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted jobs: %w", err)
	}
	return int(removed), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var status string
	var createdAt, updatedAt int64

	err := row.Scan(&job.ID, &status, &job.Progress, &job.Prompt, &job.Result, &job.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = jobs.Status(status)
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &job, nil
}
