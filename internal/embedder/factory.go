package embedder

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures an embedding provider
type Config struct {
	Provider     string // openai, gemini, local; empty auto-detects
	Model        string
	OpenAIAPIKey string
	GeminiAPIKey string
	BaseURL      string
	CacheSize    int
	RateLimit    float64 // requests per second, 0 disables limiting
}

// DetectProvider returns the provider New would use for cfg.
// An explicit provider wins; otherwise the first configured API key
// decides, and the local provider is the fallback.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.OpenAIAPIKey != "" {
		return ProviderOpenAI
	}
	if cfg.GeminiAPIKey != "" {
		return ProviderGemini
	}
	return ProviderLocal
}

// New creates an embedder from cfg
func New(ctx context.Context, cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)
	opts := []Option{
		WithModel(cfg.Model),
		WithBaseURL(cfg.BaseURL),
		WithRateLimit(cfg.RateLimit),
	}

	switch provider := DetectProvider(cfg); provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cache, opts...)
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg.GeminiAPIKey, cache, opts...)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
	}
}
