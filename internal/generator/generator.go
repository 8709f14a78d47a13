// Package generator provides answer generators for the chat pipeline.
//
// A Generator turns a user prompt plus a system prompt into answer text.
// Three providers are available:
//
//   - openai: the chat completions REST API
//   - gemini: Google Gemini through the generative-ai-go client
//   - offline: a deterministic extractive generator that quotes the
//     context it is given; used when no API key is configured and in tests
//
// Remote providers share a token-bucket rate limiter so bursts of chat
// requests do not exceed the provider quota.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderOffline = "offline"

	DefaultOpenAIModel  = "gpt-3.5-turbo"
	DefaultGeminiModel  = "gemini-1.5-flash"
	DefaultOfflineModel = "extractive-v1"

	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

var (
	// ErrMissingAPIKey is returned when a remote provider has no key
	ErrMissingAPIKey = errors.New("api key not configured")

	// ErrEmptyPrompt is returned for a blank prompt
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrProviderFailed wraps provider call failures
	ErrProviderFailed = errors.New("generation provider failed")

	// ErrUnknownProvider is returned by New for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown generation provider")
)

// Request is one generation call
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string // empty uses the provider default
	Temperature  float64
	MaxTokens    int // zero uses the provider default
}

// Validate checks the request
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", r.Temperature)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be non-negative, got %d", r.MaxTokens)
	}
	return nil
}

// Generator produces answer text
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the default model
	Model() string
}

// Option configures a remote provider
type Option func(*options)

type options struct {
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func defaultOptions() options {
	return options{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithModel overrides the provider's default model
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL points the provider at a different API endpoint
func WithBaseURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithRateLimit caps outbound calls at rps requests per second
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		if rps > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func (o *options) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// Config selects and configures a provider
type Config struct {
	Provider     string // openai, gemini, offline; empty picks by available key
	Model        string
	OpenAIAPIKey string
	GeminiAPIKey string
	RateLimit    float64 // requests per second, 0 for unlimited
}

// DetectProvider picks a provider from the configured keys
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	switch {
	case cfg.OpenAIAPIKey != "":
		return ProviderOpenAI
	case cfg.GeminiAPIKey != "":
		return ProviderGemini
	default:
		return ProviderOffline
	}
}

// New creates the generator selected by cfg
func New(ctx context.Context, cfg Config) (Generator, error) {
	opts := []Option{WithModel(cfg.Model), WithRateLimit(cfg.RateLimit)}

	switch provider := DetectProvider(cfg); provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, opts...)
	case ProviderGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, opts...)
	case ProviderOffline:
		return NewOffline(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
