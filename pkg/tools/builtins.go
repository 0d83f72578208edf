package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// JobSpawner creates a decoupled background generation job and returns its
// id without waiting for the work. Implemented by the jobs runner.
type JobSpawner interface {
	Spawn(ctx context.Context, prompt string) (string, error)
}

// StatsLookup returns gamification stats for a requester. The store behind
// it is an external collaborator.
type StatsLookup func(ctx context.Context, requesterID string) (map[string]any, error)

type requesterKey struct{}

// WithRequester annotates ctx with the id of the user driving the turn.
func WithRequester(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, requesterKey{}, requesterID)
}

// RequesterFrom returns the requester id annotated by WithRequester.
func RequesterFrom(ctx context.Context) string {
	id, _ := ctx.Value(requesterKey{}).(string)
	return id
}

type sessionKey struct{}

// WithSession annotates ctx with the session the turn belongs to, so work
// spawned by a tool can notify the session's live subscribers later.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFrom returns the session id annotated by WithSession.
func SessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// NewGenerateImageTool declares the slow image-synthesis tool. The handler
// spawns a job and returns immediately; the payload instructs the model that
// the result renders independently so it must not stall waiting for it.
func NewGenerateImageTool(spawner JobSpawner) *Tool {
	return &Tool{
		Name:        "generate_image",
		Description: "Generate an image from a text prompt. The image renders asynchronously in the client while you keep talking.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"prompt": {
					Type:        "string",
					Description: "A detailed description of the image to generate",
				},
			},
			Required: []string{"prompt"},
		},
		Handler: func(ctx context.Context, args map[string]any) Result {
			prompt, _ := args["prompt"].(string)
			if prompt == "" {
				return Fail("prompt must be a non-empty string")
			}

			jobID, err := spawner.Spawn(ctx, prompt)
			if err != nil {
				return Fail("could not start image generation")
			}

			return Result{
				Success: true,
				Payload: map[string]any{
					"job_id": jobID,
					"status": "queued",
					"system_note": "The image is being generated in a live widget below your message. " +
						"Do not say you are waiting for the result; describe what you are creating and move on.",
				},
				// The widget payload keys are the frontend's contract: the
				// progressive_image widget reads camelCase jobId.
				UserFacingNote: fmt.Sprintf(`[[WIDGET:progressive_image|{"jobId": %q, "prompt": %q}]]`, jobID, prompt),
			}
		},
	}
}

// NewUserStatsTool declares the gamification stats lookup tool.
func NewUserStatsTool(lookup StatsLookup) *Tool {
	return &Tool{
		Name:        "get_user_stats",
		Description: "Fetch the current user's level, experience, and coin balance.",
		Schema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
		Handler: func(ctx context.Context, _ map[string]any) Result {
			requester := RequesterFrom(ctx)
			if requester == "" {
				return Fail("no requester on this turn")
			}

			stats, err := lookup(ctx, requester)
			if err != nil {
				return Fail("stats not found")
			}
			return Result{Success: true, Payload: stats}
		},
	}
}
