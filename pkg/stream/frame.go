package stream

// Frame is one discrete unit of the ordered output sequence sent to the
// client during a turn. Exactly one of Content or Error is set per
// non-sentinel frame.
type Frame struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sentinel is the literal payload of the final frame of every stream.
const Sentinel = "[DONE]"

// ContentFrame builds a content-bearing frame.
func ContentFrame(content string) Frame {
	return Frame{Content: content}
}

// ErrorFrame builds an error-bearing frame.
func ErrorFrame(message string) Frame {
	return Frame{Error: message}
}
