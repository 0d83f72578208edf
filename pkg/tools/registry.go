package tools

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/llm"
)

// Registry maps tool names to registered tools. Reads are concurrent;
// registration happens at startup.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool, resolving its schema for validation. Registering a
// duplicate name or an invalid schema is a startup error.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	if t.Schema != nil {
		resolved, err := t.Schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("resolving schema for tool %q: %w", t.Name, err)
		}
		t.resolved = resolved
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Resolve returns the registered tool for name, or false when unknown.
func (r *Registry) Resolve(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the declarations of all registered tools, for
// inclusion in model requests.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Dispatch resolves and executes one call. Unknown tools and schema
// violations come back as failed Results with a descriptive note rather
// than errors, so the turn can continue with a follow-up model call.
func (r *Registry) Dispatch(ctx context.Context, call Call) Result {
	t, ok := r.Resolve(call.Name)
	if !ok {
		r.logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return Fail("unknown tool")
	}
	return r.Invoke(ctx, t, call.Arguments)
}

// Invoke validates args against the tool's declared schema and executes the
// handler.
func (r *Registry) Invoke(ctx context.Context, t *Tool, args map[string]any) Result {
	if args == nil {
		args = map[string]any{}
	}

	if t.resolved != nil {
		if err := t.resolved.Validate(args); err != nil {
			r.logger.Warn("tool arguments failed schema validation",
				zap.String("tool", t.Name),
				zap.Error(err),
			)
			return Fail(fmt.Sprintf("invalid arguments for %s: %v", t.Name, err))
		}
	}

	result := t.Handler(ctx, args)

	r.logger.Debug("tool invoked",
		zap.String("tool", t.Name),
		zap.Bool("success", result.Success),
	)
	return result
}
