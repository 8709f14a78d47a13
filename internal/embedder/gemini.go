package embedder

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements Embedder using the Gemini embedding models
type GeminiProvider struct {
	client *genai.Client
	model  *genai.EmbeddingModel
	opts   options
	cache  *Cache
}

// NewGeminiProvider creates a Gemini embedder. Only the model and rate
// limit options apply.
func NewGeminiProvider(ctx context.Context, apiKey string, cache *Cache, opts ...Option) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrNoProviderEnabled)
	}

	o := defaultOptions()
	o.model = DefaultGeminiModel
	for _, opt := range opts {
		opt(&o)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  client.EmbeddingModel(o.model),
		opts:   o,
		cache:  cache,
	}, nil
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := g.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (g *GeminiProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	out, missing := splitCached(g.cache, g.opts.model, req.Texts)
	if len(missing) > 0 {
		values, err := retryWithBackoff(ctx, g.opts.retry, func() ([][]float32, error) {
			if err := g.opts.wait(ctx); err != nil {
				return nil, err
			}
			batch := g.model.NewBatch()
			for _, idx := range missing {
				batch.AddContent(genai.Text(req.Texts[idx]))
			}
			resp, err := g.model.BatchEmbedContents(ctx, batch)
			if err != nil {
				return nil, err
			}
			vecs := make([][]float32, 0, len(resp.Embeddings))
			for _, e := range resp.Embeddings {
				if e == nil {
					return nil, fmt.Errorf("empty embedding in batch response")
				}
				vecs = append(vecs, e.Values)
			}
			return vecs, nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		if len(values) != len(missing) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(missing), len(values))
		}

		for i, idx := range missing {
			emb := &Embedding{
				Vector:    values[i],
				Dimension: len(values[i]),
				Provider:  ProviderGemini,
				Model:     g.opts.model,
				Hash:      ComputeHash(g.opts.model, req.Texts[idx]),
			}
			g.cache.Set(emb.Hash, emb)
			out[idx] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   ProviderGemini,
		Model:      g.opts.model,
	}, nil
}

func (g *GeminiProvider) Dimension() int {
	return GeminiDimension
}

func (g *GeminiProvider) Provider() string {
	return ProviderGemini
}

func (g *GeminiProvider) Model() string {
	return g.opts.model
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}
