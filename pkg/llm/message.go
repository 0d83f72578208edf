package llm

// Message represents a single message in a conversation.
// Content is stored as an array of ContentBlocks so that a tool round
// (assistant tool_use followed by a tool_result) is representable in the
// same conversation history that plain text flows through.
type Message struct {
	Role    string         `json:"role"`    // "system", "user", "assistant", "tool"
	Content []ContentBlock `json:"content"` // Array of content blocks
}

// ContentBlock represents a single piece of content within a message.
// The Type field determines which other fields are populated.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "tool_use", "tool_result"

	// Text content (type="text")
	Text string `json:"text,omitempty"`

	// Image content (type="image")
	ImageURL  string `json:"image_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// Tool use (type="tool_use") - assistant requesting tool execution
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`

	// Tool result (type="tool_result") - result from tool execution
	ToolResultID string         `json:"tool_result_id,omitempty"` // References the tool_use_id
	ToolOutput   map[string]any `json:"tool_output,omitempty"`
	IsError      bool           `json:"is_error,omitempty"`
}

// NewTextMessage creates a simple text message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role: role,
		Content: []ContentBlock{
			{Type: "text", Text: text},
		},
	}
}

// NewToolUseMessage creates an assistant message carrying a single tool_use block.
func NewToolUseMessage(id, name string, input map[string]any) Message {
	return Message{
		Role: "assistant",
		Content: []ContentBlock{
			{Type: "tool_use", ToolUseID: id, ToolName: name, ToolInput: input},
		},
	}
}

// NewToolResultMessage creates a tool message carrying the result for a
// previously issued tool_use block.
func NewToolResultMessage(toolUseID string, output map[string]any, isError bool) Message {
	return Message{
		Role: "tool",
		Content: []ContentBlock{
			{Type: "tool_result", ToolResultID: toolUseID, ToolOutput: output, IsError: isError},
		},
	}
}

// GetText returns the concatenated text content from all text blocks in the message.
func (m *Message) GetText() string {
	var result string
	for _, block := range m.Content {
		if block.Type == "text" {
			result += block.Text
		}
	}
	return result
}

// ToolUse returns the first tool_use block in the message, or nil when the
// message carries no tool request. The orchestrator keeps at most one
// unresolved tool call in flight per turn, so the first block is the call.
func (m *Message) ToolUse() *ContentBlock {
	for i := range m.Content {
		if m.Content[i].Type == "tool_use" {
			return &m.Content[i]
		}
	}
	return nil
}
