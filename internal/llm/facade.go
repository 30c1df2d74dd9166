package llm

import (
	anthropicprovider "wagtailgen/internal/llm/providers/anthropic"
	openaiprovider "wagtailgen/internal/llm/providers/openai"

	"wagtailgen/internal/llm/core"
)

type (
	// Provider is the single-turn completion contract every client implements.
	Provider = core.Provider

	// Anthropic* aliases expose provider-specific configuration and implementation.
	AnthropicConfig   = anthropicprovider.Config
	AnthropicProvider = anthropicprovider.Provider

	// OpenAI* aliases expose provider-specific configuration and implementation.
	OpenAIConfig   = openaiprovider.Config
	OpenAIProvider = openaiprovider.Provider
)

const (
	ProviderAnthropic = anthropicprovider.Name
	ProviderOpenAI    = openaiprovider.Name
)

// ErrMissingAPIKey indicates a provider was configured without credentials.
var ErrMissingAPIKey = core.ErrMissingAPIKey

// NewAnthropicProvider constructs an Anthropic provider with normalized defaults.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	return anthropicprovider.New(cfg)
}

// NewOpenAIProvider constructs an OpenAI provider with normalized defaults.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return openaiprovider.New(cfg)
}
