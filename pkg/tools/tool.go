// Package tools maps tool names to executable handlers with declared input
// schemas. Tool failures are recoverable at the turn level: unknown names
// and schema violations produce a failed Result fed back to the model, never
// an error that aborts the stream.
package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/lumonlabs/aria/pkg/llm"
)

// Handler executes one tool call. Handlers must honor ctx cancellation; the
// orchestrator bounds every invocation with its tool timeout.
type Handler func(ctx context.Context, args map[string]any) Result

// Tool is a named executable capability with a declared input schema.
type Tool struct {
	Name        string
	Description string

	// Schema declares the accepted arguments. A nil schema skips validation.
	Schema *jsonschema.Schema

	Handler Handler

	resolved *jsonschema.Resolved
}

// Call is a structured request emitted by the model instead of free text.
type Call struct {
	// ID references the provider's tool_use id, echoed back on the result.
	ID string

	// Name must match a registered tool; unknown names are a terminal error
	// for this call, not for the turn.
	Name string

	// Arguments are validated against the tool's declared schema before
	// execution.
	Arguments map[string]any
}

// Result is the output of executing a Call. Payload goes back to the model
// as context and is never shown raw to the end user; UserFacingNote is an
// optional short transparency string the stream may surface.
type Result struct {
	Success        bool           `json:"success"`
	Payload        map[string]any `json:"payload,omitempty"`
	UserFacingNote string         `json:"user_facing_note,omitempty"`
}

// Fail builds a failed Result with a user-facing note describing what
// happened.
func Fail(note string) Result {
	return Result{Success: false, UserFacingNote: note, Payload: map[string]any{"error": note}}
}

// Definition exports the tool declaration in the shape model requests carry.
func (t *Tool) Definition() llm.ToolDefinition {
	def := llm.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
	}
	if t.Schema != nil {
		def.Parameters = schemaToMap(t.Schema)
	}
	return def
}

// schemaToMap flattens a schema into the generic JSON-Schema-shaped map
// provider wire formats expect.
func schemaToMap(s *jsonschema.Schema) map[string]any {
	out := map[string]any{}
	if s.Type != "" {
		out["type"] = s.Type
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = schemaToMap(prop)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = schemaToMap(s.Items)
	}
	return out
}
