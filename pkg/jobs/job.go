// Package jobs provides the keyed store and supervised runner for
// long-running generation work spawned during a turn. A job outlives its
// turn: the client polls it independently until it reaches a terminal state.
package jobs

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a job. Transitions are strictly forward:
// queued → generating → {completed | failed}.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// statusRank orders statuses for forward-only transition checks.
var statusRank = map[Status]int{
	StatusQueued:     0,
	StatusGenerating: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Job is a long-running, decoupled unit of work (e.g., an image render).
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Prompt    string    `json:"prompt,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch is a partial update merged into an existing job record.
type Patch struct {
	Status   *Status
	Progress *int
	Result   *string
	Error    *string
}

// NotFoundError is returned when a job id is unknown to the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "job not found"
	}
	return "job not found: " + e.ID
}

// TransitionError is returned when a patch would move a job's lifecycle
// backward: a status regression, a terminal-state rewrite, or a progress
// decrease.
type TransitionError struct {
	ID     string
	Reason string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %s: %s", e.ID, e.Reason)
}

// ApplyPatch validates and merges patch into job. Shared by every store
// driver so all backends enforce the same lifecycle rules. Terminal records
// are frozen outright: any patch against one is rejected, so a late writer
// (a straggling progress tick, a duplicate finalize) can never alter the
// snapshot a poller sees.
func ApplyPatch(job *Job, patch Patch) error {
	if job.Status.Terminal() {
		return TransitionError{ID: job.ID, Reason: fmt.Sprintf("%s is terminal", job.Status)}
	}

	if patch.Status != nil {
		next := *patch.Status
		if !next.Valid() {
			return TransitionError{ID: job.ID, Reason: fmt.Sprintf("unknown status %q", next)}
		}
		if statusRank[next] < statusRank[job.Status] {
			return TransitionError{ID: job.ID, Reason: fmt.Sprintf("%s → %s moves backward", job.Status, next)}
		}
		job.Status = next
	}

	if patch.Progress != nil {
		next := *patch.Progress
		if next < 0 || next > 100 {
			return TransitionError{ID: job.ID, Reason: fmt.Sprintf("progress %d out of range", next)}
		}
		if next < job.Progress {
			return TransitionError{ID: job.ID, Reason: fmt.Sprintf("progress %d → %d decreases", job.Progress, next)}
		}
		job.Progress = next
	}

	if patch.Result != nil {
		job.Result = *patch.Result
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}

	job.UpdatedAt = time.Now().UTC()
	return nil
}
