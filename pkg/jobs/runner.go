package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
	"github.com/lumonlabs/aria/pkg/imagegen"
	"github.com/lumonlabs/aria/pkg/tools"
)

var (
	defaultCeiling      = 120 * time.Second
	defaultProgressTick = 800 * time.Millisecond
)

// RunnerConfig configures the background job runner.
type RunnerConfig struct {
	// Store persists job records. Required.
	Store Store

	// Generator is the slow external provider jobs drive. Required.
	Generator imagegen.Generator

	// Ceiling is the global timeout every provider call races against.
	// A job must never remain in generating forever (defaults to 120s).
	Ceiling time.Duration

	// ProgressTick is the interval of the best-effort progress ticker
	// (defaults to 800ms).
	ProgressTick time.Duration

	// Events optionally receives a JobFinishedEvent per terminal job.
	Events eventstream.Publisher

	// Notices optionally receives a proactive message for the spawning
	// session when one of its jobs reaches a terminal state.
	Notices *eventstream.Broker

	// Logger is the provided zap logger. Required.
	Logger *zap.Logger
}

// Runner owns the full write side of every job it spawns: it creates the
// record, runs the provider call under the global ceiling, and finalizes
// the record exactly once. Nothing else writes to a job.
type Runner struct {
	config RunnerConfig
	wg     sync.WaitGroup
	logger *zap.Logger

	// mu guards sessions, mapping in-flight job ids to the session that
	// spawned them for terminal notices.
	mu       sync.Mutex
	sessions map[string]string
}

// NewRunner creates a Runner.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}

	if config.Ceiling <= 0 {
		config.Ceiling = defaultCeiling
	}
	if config.ProgressTick <= 0 {
		config.ProgressTick = defaultProgressTick
	}

	return &Runner{
		config:   config,
		logger:   config.Logger,
		sessions: make(map[string]string),
	}, nil
}

// Spawn creates a queued record synchronously and starts the background
// task, returning the job id without waiting for any work. The background
// task runs on a detached context: the job outlives the spawning turn.
func (r *Runner) Spawn(ctx context.Context, prompt string) (string, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Progress:  0,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := r.config.Store.Create(ctx, job); err != nil {
		return "", err
	}

	if session := tools.SessionFrom(ctx); session != "" && r.config.Notices != nil {
		r.mu.Lock()
		r.sessions[job.ID] = session
		r.mu.Unlock()
	}

	r.logger.Info("job spawned",
		zap.String("job_id", job.ID),
	)

	r.wg.Add(1)
	go r.run(job.ID, prompt)

	return job.ID, nil
}

// Wait blocks until all in-flight jobs have finalized. Call during graceful
// shutdown after the HTTP server has stopped accepting turns.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run executes one job to a terminal state. It is the job's only writer.
func (r *Runner) run(id, prompt string) {
	defer r.wg.Done()
	defer r.forgetSession(id)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Ceiling)
	defer cancel()

	generating := StatusGenerating
	if _, err := r.config.Store.Update(ctx, id, Patch{Status: &generating}); err != nil {
		r.logger.Error("failed to mark job generating",
			zap.String("job_id", id),
			zap.Error(err),
		)
		return
	}

	stopTicker := r.tickProgress(id)
	result, err := r.config.Generator.Generate(ctx, prompt)
	stopTicker()

	switch {
	case err == nil:
		r.finalize(id, Patch{
			Status:   statusPtr(StatusCompleted),
			Progress: intPtr(100),
			Result:   &result,
		})
		r.logger.Info("job completed",
			zap.String("job_id", id),
			zap.Duration("elapsed", time.Since(start)),
		)
		r.publishFinished(id, StatusCompleted, "", start)
		r.notifySession(id, "Your image is ready.")

	case errors.Is(err, context.DeadlineExceeded):
		msg := "generation timed out"
		r.finalize(id, Patch{Status: statusPtr(StatusFailed), Error: &msg})
		r.logger.Warn("job timed out",
			zap.String("job_id", id),
			zap.Duration("ceiling", r.config.Ceiling),
		)
		r.publishFinished(id, StatusFailed, msg, start)
		r.notifySession(id, "Image generation timed out.")

	default:
		// Raw provider detail stays in logs; the record carries a generic
		// failure reason.
		msg := "generation failed"
		r.finalize(id, Patch{Status: statusPtr(StatusFailed), Error: &msg})
		r.logger.Error("job failed",
			zap.String("job_id", id),
			zap.Error(err),
		)
		r.publishFinished(id, StatusFailed, msg, start)
		r.notifySession(id, "Image generation failed.")
	}
}

// notifySession pushes a proactive message to the session that spawned the
// job, if any subscriber channel exists for it.
func (r *Runner) notifySession(id, content string) {
	if r.config.Notices == nil {
		return
	}

	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	r.config.Notices.Publish(session, eventstream.ProactiveMessage{
		JobID:   id,
		Content: fmt.Sprintf("%s (job %s)", content, id),
	})
}

func (r *Runner) forgetSession(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// tickProgress bumps the record's progress on a fixed interval, capped
// below completion. Best effort only; the returned stop function halts the
// ticker and waits for it to exit, so no tick write can land after the
// finalizer runs.
func (r *Runner) tickProgress(id string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(r.config.ProgressTick)
		defer ticker.Stop()

		progress := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if progress >= 80 {
					continue
				}
				progress += 10
				p := progress
				if _, err := r.config.Store.Update(context.Background(), id, Patch{Progress: &p}); err != nil {
					r.logger.Debug("progress tick skipped",
						zap.String("job_id", id),
						zap.Error(err),
					)
					return
				}
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
		<-stopped
	}
}

// finalize writes the terminal patch on a fresh context so a job whose
// ceiling already expired still records its failure.
func (r *Runner) finalize(id string, patch Patch) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.config.Store.Update(ctx, id, patch); err != nil {
		r.logger.Error("failed to finalize job",
			zap.String("job_id", id),
			zap.Error(err),
		)
	}
}

func (r *Runner) publishFinished(id string, status Status, errMsg string, start time.Time) {
	if r.config.Events == nil {
		return
	}

	event := &eventstream.JobFinishedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeJobFinished,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		JobID:         id,
		Status:        string(status),
		Error:         errMsg,
		DurationMs:    time.Since(start).Milliseconds(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.config.Events.PublishJob(ctx, event); err != nil {
		r.logger.Warn("failed to publish job event",
			zap.String("job_id", id),
			zap.Error(err),
		)
	}
}

func statusPtr(s Status) *Status { return &s }
func intPtr(i int) *int          { return &i }
