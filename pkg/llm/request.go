package llm

// ChatRequest represents a provider-agnostic chat completion request.
// This is the internal representation the orchestrator builds before handing
// the turn to a concrete provider client.
type ChatRequest struct {
	// Model name (e.g., "gemini-2.0-flash", "gpt-4o-mini")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// System prompt (some providers handle this separately from messages)
	System string `json:"system,omitempty"`

	// Tools the model may call during this request. Empty means the model
	// must answer with plain text.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// Generation parameters (unified across providers)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ToolDefinition declares a callable tool to the model: a name, a short
// description, and a JSON-Schema-shaped parameters object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
