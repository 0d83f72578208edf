package eventstream

import "context"

// Publisher publishes lifecycle events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnCompletedEvent) error
	PublishJob(ctx context.Context, event *JobFinishedEvent) error
	Close() error
}
