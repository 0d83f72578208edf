// Package eventstream defines transport-neutral lifecycle events for turns
// and generation jobs, publisher backends for shipping them, and a
// session-scoped broker for proactive in-process messaging.
package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a turn's stream terminates.
	EventTypeTurnCompleted = "aria.turn.completed"

	// EventTypeJobFinished is emitted when a generation job reaches a
	// terminal state.
	EventTypeJobFinished = "aria.job.finished"
)

// TurnCompletedEvent is the payload emitted when a turn finishes, in any of
// its terminal shapes: answered, blocked, or errored.
type TurnCompletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	TurnID      string `json:"turn_id"`
	SessionID   string `json:"session_id,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`

	// FinalState is the terminal orchestrator state ("done", "blocked",
	// "error").
	FinalState string `json:"final_state"`

	// Blocked details, present when the moderation gate stopped the turn.
	BlockedCategory string `json:"blocked_category,omitempty"`

	ToolRounds int   `json:"tool_rounds"`
	DurationMs int64 `json:"duration_ms"`
}

// JobFinishedEvent is the payload emitted when a generation job terminates.
type JobFinishedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}
