package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/lumonlabs/aria/pkg/llm"
)

// ErrModelUnavailable wraps any transport or provider-side failure of a chat
// call. Client implementations attach it to their transport and upstream
// errors; callers surface it as a single generic error frame and keep the
// raw provider detail in logs only.
var ErrModelUnavailable = llm.ErrModelUnavailable

// Client defines the interface for a remote chat model. A single Chat call
// returns either terminal text or a structured tool-call request embedded in
// the assistant message; streaming partials from the provider are not part
// of this contract.
type Client interface {
	// Name returns the canonical provider name (e.g., "gemini", "openai")
	Name() string

	// Chat performs one model round-trip. Implementations must honor ctx
	// cancellation and deadlines so the orchestrator can bound the call.
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// Config holds the settings shared by provider clients.
type Config struct {
	// Target is the provider base URL (no trailing slash).
	Target string

	// APIKey authenticates against the provider, where required.
	APIKey string

	// HTTPClient overrides the default HTTP client. The default carries no
	// per-request deadline of its own: per-call bounds come from the
	// caller's context.
	HTTPClient *http.Client
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		// Transport-level backstop; the real per-call bound is the caller's
		// context deadline.
		Timeout: 5 * time.Minute,
	}
}
