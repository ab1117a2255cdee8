package generic

import (
	"fmt"

	"lumenroute/prism/pkg/providers"
	"lumenroute/prism/pkg/providers/openai"
)

// Provider adapts any OpenAI-compatible HTTP endpoint (vLLM, LM Studio,
// llama.cpp server, LocalAI, self-hosted gateways). It is the
// chat-completions dialect with the hosted-provider assumptions
// loosened: no API key required and no default base URL.
type Provider struct {
	*openai.Provider
}

// New creates a generic OpenAI-compatible adapter.
func New(config providers.Config) (*Provider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("provider %q: base_url is required for generic providers", config.Name)
	}
	if config.APIKey == "" {
		// Local servers commonly ignore the Authorization header but
		// the dialect client always sends one.
		config.APIKey = "unused"
	}

	inner, err := openai.New(config)
	if err != nil {
		return nil, err
	}
	return &Provider{Provider: inner}, nil
}
