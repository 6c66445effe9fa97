// Package llm provides provider-neutral clients for text generation and
// embeddings. Gemini and OpenAI are supported.
package llm

import "fmt"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for short generations such as outreach messages
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning
	TierStandard ModelTier = "standard"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI provider
	ProviderOpenAI Provider = "openai"
)

// Config holds the model configuration for the application
type Config struct {
	Provider       Provider
	Models         map[ModelTier]string
	EmbeddingModel string
	// BaseURL overrides the provider endpoint. Only used by OpenAI-compatible clients.
	BaseURL string
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
		},
		EmbeddingModel: "text-embedding-004",
	}
}

// DefaultOpenAIConfig returns the default OpenAI configuration
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o",
		},
		EmbeddingModel: "text-embedding-3-small",
	}
}

// ConfigFor returns the default configuration of a provider.
func ConfigFor(provider Provider) (*Config, error) {
	switch provider {
	case ProviderGemini, "":
		return DefaultGeminiConfig(), nil
	case ProviderOpenAI:
		return DefaultOpenAIConfig(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", provider)
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := c.clone()
	newConfig.Models[tier] = model
	return newConfig
}

// WithEmbeddingModel returns a new Config using a different embedding model
func (c *Config) WithEmbeddingModel(model string) *Config {
	newConfig := c.clone()
	newConfig.EmbeddingModel = model
	return newConfig
}

func (c *Config) clone() *Config {
	newConfig := &Config{
		Provider:       c.Provider,
		Models:         make(map[ModelTier]string, len(c.Models)),
		EmbeddingModel: c.EmbeddingModel,
		BaseURL:        c.BaseURL,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	return newConfig
}
