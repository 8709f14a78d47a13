// Package config loads process configuration from the environment.
//
// Values come from the process environment, optionally seeded from a .env
// file. Project settings use the CODEFOUR_ prefix; provider API keys keep
// their conventional names so existing shells work unchanged.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/internal/generator"
	"github.com/KRuddra/codefourrag/internal/storage"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// envFiles are tried in order; missing files are ignored
var envFiles = []string{".env", "../../.env"}

// Config holds every runtime setting
type Config struct {
	// Storage
	DBPath        string `env:"CODEFOUR_DB_PATH" envDefault:"codefour.db"`
	VectorBackend string `env:"CODEFOUR_VECTOR_BACKEND" envDefault:"sqlite"`
	PostgresURL   string `env:"CODEFOUR_POSTGRES_URL"`
	HistoryPath   string `env:"CODEFOUR_HISTORY_PATH" envDefault:"codefour-history.db"`

	// Embeddings; an empty provider or model is auto-detected
	EmbeddingProvider string  `env:"CODEFOUR_EMBEDDING_PROVIDER"`
	EmbeddingModel    string  `env:"CODEFOUR_EMBEDDING_MODEL"`
	EmbeddingRPS      float64 `env:"CODEFOUR_EMBEDDING_RPS" envDefault:"5"`

	// Answer generation; an empty provider or model is auto-detected
	LLMProvider    string  `env:"CODEFOUR_LLM_PROVIDER"`
	LLMModel       string  `env:"CODEFOUR_LLM_MODEL"`
	LLMTemperature float64 `env:"CODEFOUR_LLM_TEMPERATURE" envDefault:"0.3"`
	LLMMaxTokens   int     `env:"CODEFOUR_LLM_MAX_TOKENS" envDefault:"1000"`
	GeneratorRPS   float64 `env:"CODEFOUR_GENERATOR_RPS" envDefault:"2"`

	// Provider keys
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// Serving
	APIAddr        string        `env:"CODEFOUR_API_ADDR" envDefault:":8000"`
	CORSOrigins    []string      `env:"CODEFOUR_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	RequestTimeout time.Duration `env:"CODEFOUR_REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel       string        `env:"CODEFOUR_LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool          `env:"CODEFOUR_LOG_DEVELOPMENT" envDefault:"false"`

	// Ingestion
	MaxDocs        int `env:"CODEFOUR_MAX_DOCS" envDefault:"1000"`
	IndexWorkers   int `env:"CODEFOUR_INDEX_WORKERS" envDefault:"0"`
	IndexBatchSize int `env:"CODEFOUR_INDEX_BATCH_SIZE" envDefault:"20"`

	// Retrieval
	DictionaryPath     string  `env:"CODEFOUR_DICTIONARY_PATH"`
	SemanticWeight     float64 `env:"CODEFOUR_SEMANTIC_WEIGHT" envDefault:"0.65"`
	KeywordWeight      float64 `env:"CODEFOUR_KEYWORD_WEIGHT" envDefault:"0.35"`
	ExactMatchBonus    float64 `env:"CODEFOUR_EXACT_MATCH_BONUS" envDefault:"0.2"`
	VariantWeight      float64 `env:"CODEFOUR_VARIANT_WEIGHT" envDefault:"0.5"`
	SearchCacheSize    int     `env:"CODEFOUR_SEARCH_CACHE_SIZE" envDefault:"1000"`
	ContextMaxChunks   int     `env:"CODEFOUR_CONTEXT_MAX_CHUNKS" envDefault:"10"`
	ContextMaxTokens   int     `env:"CODEFOUR_CONTEXT_MAX_TOKENS" envDefault:"4000"`
	ContextMaxCrossref int     `env:"CODEFOUR_CONTEXT_MAX_CROSSREFS" envDefault:"5"`
}

// Load reads .env files (if present) and parses the environment
func Load() (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			break
		}
	}
	return Parse()
}

// Parse reads the process environment without touching .env files
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and the keys required by the chosen providers
func (c *Config) Validate() error {
	var errs []error

	switch c.VectorBackend {
	case storage.BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("CODEFOUR_DB_PATH is required for the sqlite backend"))
		}
	case storage.BackendPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("CODEFOUR_POSTGRES_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector backend %q", c.VectorBackend))
	}

	switch c.EmbeddingProviderName() {
	case embedder.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for openai embeddings"))
		}
	case embedder.ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for gemini embeddings"))
		}
	case embedder.ProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider))
	}

	switch c.GeneratorProviderName() {
	case generator.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai generator"))
		}
	case generator.ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini generator"))
		}
	case generator.ProviderOffline:
	default:
		errs = append(errs, fmt.Errorf("unknown generator provider %q", c.LLMProvider))
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f outside [0, 2]", c.LLMTemperature))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.LLMMaxTokens))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.MaxDocs <= 0 {
		errs = append(errs, fmt.Errorf("max docs must be positive, got %d", c.MaxDocs))
	}
	if c.ContextMaxChunks < 0 || c.ContextMaxTokens < 0 || c.ContextMaxCrossref < 0 {
		errs = append(errs, errors.New("context limits cannot be negative"))
	}
	for name, w := range map[string]float64{
		"semantic weight":   c.SemanticWeight,
		"keyword weight":    c.KeywordWeight,
		"exact match bonus": c.ExactMatchBonus,
		"variant weight":    c.VariantWeight,
	} {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f outside [0, 1]", name, w))
		}
	}
	if !validLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// EmbeddingConfig returns the embedder settings
func (c *Config) EmbeddingConfig() embedder.Config {
	return embedder.Config{
		Provider:     c.EmbeddingProvider,
		Model:        c.EmbeddingModel,
		OpenAIAPIKey: c.OpenAIAPIKey,
		GeminiAPIKey: c.GeminiAPIKey,
		RateLimit:    c.EmbeddingRPS,
	}
}

// GeneratorConfig returns the answer generator settings
func (c *Config) GeneratorConfig() generator.Config {
	return generator.Config{
		Provider:     c.LLMProvider,
		Model:        c.LLMModel,
		OpenAIAPIKey: c.OpenAIAPIKey,
		GeminiAPIKey: c.GeminiAPIKey,
		RateLimit:    c.GeneratorRPS,
	}
}

// StorageOptions returns the vector index settings
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend: c.VectorBackend,
		Path:    c.DBPath,
		URL:     c.PostgresURL,
	}
}

// EmbeddingProviderName resolves the embedding provider auto-detection
func (c *Config) EmbeddingProviderName() string {
	return embedder.DetectProvider(c.EmbeddingConfig())
}

// GeneratorProviderName resolves the generator provider auto-detection
func (c *Config) GeneratorProviderName() string {
	return generator.DetectProvider(c.GeneratorConfig())
}

// HistoryEnabled reports whether conversation history is persisted
func (c *Config) HistoryEnabled() bool {
	return strings.TrimSpace(c.HistoryPath) != ""
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
