// Package embedder turns legal chunk and query text into vector embeddings.
//
// Three providers are available: OpenAI (HTTP), Gemini (genai client) and a
// local hashed bag-of-words embedder that needs no network access. Remote
// providers share an LRU cache, exponential backoff retry and an optional
// rate limit.
//
// # Basic Usage
//
//	emb, err := embedder.New(ctx, embedder.Config{
//	    Provider:     "openai",
//	    OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "What is the penalty under § 346.63?",
//	})
//
// # Batch Processing
//
// The vector index embeds chunks in batches of DefaultBatchSize:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// Texts already in the cache are not sent to the provider; the response
// still holds one embedding per input in input order.
//
// # Provider Selection
//
// DetectProvider picks, in order:
//
//  1. Config.Provider when set
//  2. openai when an OpenAI key is configured
//  3. gemini when a Gemini key is configured
//  4. local
//
// # Provider Comparison
//
// OpenAI (text-embedding-3-small): 1536 dimensions.
// Gemini (text-embedding-004): 768 dimensions.
// Local: 384 dimensions, deterministic, offline.
//
// # Error Handling
//
// Server errors and HTTP 429 are retried with backoff; other client errors
// fail immediately. All provider failures wrap ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unavailable
//	}
package embedder
