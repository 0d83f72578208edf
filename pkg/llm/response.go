package llm

import (
	"time"
)

// ChatResponse represents a provider-agnostic chat completion response.
// The assistant message either carries terminal text or a tool_use block
// requesting a tool invocation.
type ChatResponse struct {
	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// The assistant's response message
	Message Message `json:"message"`

	// Stop reason (e.g., "stop", "length", "tool_use", "end_turn")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage metrics
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token counts reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ErrorResponse is the generic JSON error body returned by API handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}
