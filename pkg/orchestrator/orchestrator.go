// Package orchestrator runs one conversational turn end to end: the
// moderation gate, the model call, a bounded tool loop, and the final
// answer streamed to the client. The client stream is advisory; side
// effects started during a turn (background jobs, events) survive a
// disconnect.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
	"github.com/lumonlabs/aria/pkg/llm"
	"github.com/lumonlabs/aria/pkg/llm/provider"
	"github.com/lumonlabs/aria/pkg/moderation"
	"github.com/lumonlabs/aria/pkg/policy"
	"github.com/lumonlabs/aria/pkg/stream"
	"github.com/lumonlabs/aria/pkg/tools"
)

const (
	defaultMaxToolRounds = 1
	defaultModelTimeout  = 30 * time.Second
	defaultToolTimeout   = 30 * time.Second

	upstreamErrorText = "the assistant is temporarily unavailable"
	toolBoundText     = "the assistant could not complete the requested actions"
)

// Turn is one inbound conversational request. Messages is the full
// transcript, oldest first; the last message must be from the user.
type Turn struct {
	ID           string
	SessionID    string
	RequesterID  string
	Messages     []llm.Message
	ToolsEnabled bool
}

// Config tunes a single Orchestrator. Zero values fall back to defaults.
type Config struct {
	// Model is the model name forwarded to the provider.
	Model string

	// MaxToolRounds bounds how many model→tool→model cycles a turn may
	// take before it is forced to answer (defaults to 1).
	MaxToolRounds int

	// ModelTimeout bounds each individual model call (defaults to 30s).
	ModelTimeout time.Duration

	// ToolTimeout bounds each individual tool execution (defaults to 30s).
	ToolTimeout time.Duration

	// FailClosed blocks the turn when the moderation gate itself errors.
	// The default is to let the turn proceed and rely on the provider's
	// own safety layer.
	FailClosed bool
}

func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = defaultMaxToolRounds
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = defaultModelTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	return c
}

// Orchestrator drives turns. It is safe for concurrent use; all per-turn
// state lives on the stack of Run.
type Orchestrator struct {
	gate     moderation.Gate
	client   provider.Client
	registry *tools.Registry
	policy   *policy.Table
	events   eventstream.Publisher
	config   Config
	logger   *zap.Logger
}

// New creates an Orchestrator. Gate, client, registry, policy, and logger
// are required; events may be nil to skip lifecycle publishing.
func New(
	gate moderation.Gate,
	client provider.Client,
	registry *tools.Registry,
	table *policy.Table,
	events eventstream.Publisher,
	config Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if gate == nil {
		return nil, errors.New("moderation gate is required")
	}
	if client == nil {
		return nil, errors.New("provider client is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if table == nil {
		return nil, errors.New("policy table is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &Orchestrator{
		gate:     gate,
		client:   client,
		registry: registry,
		policy:   table,
		events:   events,
		config:   config.withDefaults(),
		logger:   logger,
	}, nil
}

// Run executes one turn, writing frames to the emitter as the turn
// progresses and always closing it. The returned state is terminal.
//
// Emitter write failures (the client went away) stop further writes but
// never abort in-flight work: tools already dispatched run to completion
// and the lifecycle event is still published.
func (o *Orchestrator) Run(ctx context.Context, turn Turn, emitter *stream.Emitter) State {
	start := time.Now()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}

	logger := o.logger.With(
		zap.String("turn_id", turn.ID),
		zap.String("session_id", turn.SessionID),
	)

	state, category, rounds := o.execute(ctx, turn, emitter, logger)

	if err := emitter.Close(); err != nil && !errors.Is(err, stream.ErrClosed) {
		logger.Debug("stream close failed", zap.Error(err))
	}

	logger.Info("turn finished",
		zap.Stringer("state", state),
		zap.Int("tool_rounds", rounds),
		zap.Duration("elapsed", time.Since(start)),
	)

	o.publishTurn(turn, state, category, rounds, start)
	return state
}

func (o *Orchestrator) execute(ctx context.Context, turn Turn, emitter *stream.Emitter, logger *zap.Logger) (State, string, int) {
	last := lastUserText(turn.Messages)
	if last == "" {
		o.emit(emitter, stream.ErrorFrame("no user message provided"), logger)
		return StateError, "", 0
	}

	// Moderation gate. Privileged requesters skip it entirely.
	if !o.policy.Allows(turn.RequesterID, policy.CapModerationBypass) {
		verdict, err := o.gate.Classify(ctx, last)
		if err != nil {
			if o.config.FailClosed {
				logger.Warn("moderation gate failed, blocking turn", zap.Error(err))
				o.emit(emitter, stream.ContentFrame(moderation.Refusal("")), logger)
				return StateBlocked, "", 0
			}
			logger.Warn("moderation gate failed, proceeding", zap.Error(err))
		} else if verdict.Flagged {
			logger.Info("turn blocked",
				zap.String("category", verdict.Category),
				zap.Stringer("level", verdict.Level),
			)
			o.emit(emitter, stream.ContentFrame(moderation.Refusal(verdict.Category)), logger)
			return StateBlocked, verdict.Category, 0
		}
	}

	// The tool loop. Each iteration is one model call; a tool_use answer
	// dispatches the tool and feeds its result back for a follow-up call.
	messages := turn.Messages
	var definitions []llm.ToolDefinition
	if turn.ToolsEnabled && o.policy.Allows(turn.RequesterID, policy.CapAgentTools) {
		definitions = o.registry.Definitions()
	}

	rounds := 0
	for {
		response, err := o.callModel(ctx, messages, definitions)
		if err != nil {
			// Provider outages and local bugs land in the same generic frame;
			// the distinction only matters for the log line.
			if errors.Is(err, provider.ErrModelUnavailable) {
				logger.Warn("model unavailable", zap.Error(err))
			} else {
				logger.Error("model call failed", zap.Error(err))
			}
			o.emit(emitter, stream.ErrorFrame(upstreamErrorText), logger)
			return StateError, "", rounds
		}

		use := response.Message.ToolUse()
		if use == nil {
			o.emit(emitter, stream.ContentFrame(response.Message.GetText()), logger)
			return StateDone, "", rounds
		}

		if rounds >= o.config.MaxToolRounds {
			logger.Warn("tool round limit reached",
				zap.String("tool", use.ToolName),
				zap.Int("max_rounds", o.config.MaxToolRounds),
			)
			o.emit(emitter, stream.ErrorFrame(toolBoundText), logger)
			return StateError, "", rounds
		}
		rounds++

		result := o.dispatch(ctx, turn, tools.Call{
			ID:        use.ToolUseID,
			Name:      use.ToolName,
			Arguments: use.ToolInput,
		})

		// Tool output the user should see right away, ahead of the
		// model's follow-up answer.
		if result.UserFacingNote != "" {
			o.emit(emitter, stream.ContentFrame(result.UserFacingNote), logger)
		}

		messages = append(messages,
			llm.NewToolUseMessage(use.ToolUseID, use.ToolName, use.ToolInput),
			llm.NewToolResultMessage(use.ToolUseID, result.Payload, !result.Success),
		)
	}
}

func (o *Orchestrator) callModel(ctx context.Context, messages []llm.Message, definitions []llm.ToolDefinition) (*llm.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.ModelTimeout)
	defer cancel()

	return o.client.Chat(ctx, &llm.ChatRequest{
		Model:    o.config.Model,
		Messages: messages,
		Tools:    definitions,
	})
}

// dispatch runs one tool call under its own timeout. A failed tool never
// fails the turn; its failure payload goes back to the model instead.
func (o *Orchestrator) dispatch(ctx context.Context, turn Turn, call tools.Call) tools.Result {
	ctx, cancel := context.WithTimeout(ctx, o.config.ToolTimeout)
	defer cancel()

	ctx = tools.WithRequester(ctx, turn.RequesterID)
	ctx = tools.WithSession(ctx, turn.SessionID)
	return o.registry.Dispatch(ctx, call)
}

// emit writes a frame, treating a dead client as a non-event.
func (o *Orchestrator) emit(emitter *stream.Emitter, frame stream.Frame, logger *zap.Logger) {
	if err := emitter.Emit(frame); err != nil && !errors.Is(err, stream.ErrClosed) {
		logger.Debug("client stream write failed", zap.Error(err))
	}
}

func (o *Orchestrator) publishTurn(turn Turn, state State, category string, rounds int, start time.Time) {
	if o.events == nil {
		return
	}

	event := &eventstream.TurnCompletedEvent{
		SchemaVersion:   eventstream.SchemaVersionV1,
		EventType:       eventstream.EventTypeTurnCompleted,
		EventID:         uuid.NewString(),
		EmittedAt:       time.Now().UTC(),
		TurnID:          turn.ID,
		SessionID:       turn.SessionID,
		RequesterID:     turn.RequesterID,
		FinalState:      state.String(),
		BlockedCategory: category,
		ToolRounds:      rounds,
		DurationMs:      time.Since(start).Milliseconds(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.events.PublishTurn(ctx, event); err != nil {
		o.logger.Warn("failed to publish turn event",
			zap.String("turn_id", turn.ID),
			zap.Error(err),
		)
	}
}

// lastUserText returns the text of the final message if it is from the
// user, empty otherwise.
func lastUserText(messages []llm.Message) string {
	if len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1]
	if last.Role != "user" {
		return ""
	}
	return last.GetText()
}
