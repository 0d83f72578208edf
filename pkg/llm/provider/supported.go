package provider

import (
	"fmt"

	"github.com/lumonlabs/aria/pkg/llm/provider/gemini"
	"github.com/lumonlabs/aria/pkg/llm/provider/openai"
)

// Supported provider type constants
const (
	Gemini = "gemini"
	OpenAI = "openai"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{Gemini, OpenAI}
}

// New creates a new Client instance for the given provider type.
// Returns an error if the provider type is not recognized.
func New(providerType string, cfg Config) (Client, error) {
	switch providerType {
	case Gemini:
		return gemini.New(cfg.Target, cfg.APIKey, cfg.httpClient()), nil
	case OpenAI:
		return openai.New(cfg.Target, cfg.APIKey, cfg.httpClient()), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}
