package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

// openAIServer answers every request with a 3-dimensional embedding per
// input. The first failFirst requests return failStatus.
func openAIServer(t *testing.T, failFirst int32, failStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if n <= failFirst {
			w.WriteHeader(failStatus)
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// reply out of order to exercise index handling
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Index: j, Embedding: []float32{float32(j), 1, 0}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "data": data})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("metadata", func(t *testing.T) {
		p, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		defer p.Close()

		assert.Equal(t, ProviderOpenAI, p.Provider())
		assert.Equal(t, OpenAIDimension, p.Dimension())
		assert.Equal(t, DefaultOpenAIModel, p.Model())
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := NewOpenAIProvider("", nil)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("batch preserves input order", func(t *testing.T) {
		server, _ := openAIServer(t, 0, 0)
		p, err := NewOpenAIProvider("test-key", NewCache(10), WithBaseURL(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.Equal(t, float32(i), emb.Vector[0])
			assert.Equal(t, 3, emb.Dimension)
		}
	})

	t.Run("cache avoids repeat calls", func(t *testing.T) {
		server, calls := openAIServer(t, 0, 0)
		p, err := NewOpenAIProvider("test-key", NewCache(10), WithBaseURL(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "probable cause"})
		require.NoError(t, err)
		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "probable cause"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("retries server errors", func(t *testing.T) {
		server, calls := openAIServer(t, 2, http.StatusInternalServerError)
		p, err := NewOpenAIProvider("test-key", nil, WithBaseURL(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		server, calls := openAIServer(t, 10, http.StatusUnauthorized)
		p, err := NewOpenAIProvider("test-key", nil, WithBaseURL(server.URL), WithRetry(fastRetry()))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("validation", func(t *testing.T) {
		p, _ := NewOpenAIProvider("test-key", nil)
		_, err := p.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrEmptyText)

		large := make([]string, MaxBatchSize+1)
		for i := range large {
			large[i] = "text"
		}
		_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: large})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			calls++
			return 0, &StatusError{Code: 503}
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		_, err := retryWithBackoff(cctx, fastRetry(), func() (int, error) {
			calls++
			return 0, &StatusError{Code: 503}
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("returns first success", func(t *testing.T) {
		got, err := retryWithBackoff(ctx, fastRetry(), func() (string, error) { return "ok", nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
	})
}

func TestStatusErrorRetryable(t *testing.T) {
	assert.True(t, (&StatusError{Code: 429}).Retryable())
	assert.True(t, (&StatusError{Code: 502}).Retryable())
	assert.False(t, (&StatusError{Code: 400}).Retryable())
}
