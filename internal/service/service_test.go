package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KRuddra/codefourrag/internal/config"
	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/internal/generator"
	"github.com/KRuddra/codefourrag/internal/history"
	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/storage"
	"github.com/KRuddra/codefourrag/pkg/types"
)

func testDocuments() []types.Document {
	return []types.Document{
		{
			ID:   "statutes/346.txt",
			Text: "§ 346.63 Operating under influence of intoxicant. No person may drive or operate a motor vehicle while under the influence of an intoxicant.",
			Metadata: types.DocumentMetadata{
				Title:        "Chapter 346",
				Jurisdiction: "WI",
				DocType:      types.DocStatute,
			},
		},
		{
			ID:   "policies/madison-bwc.txt",
			Text: "Body worn cameras shall be activated during every traffic stop. Recordings are retained for 120 days.",
			Metadata: types.DocumentMetadata{
				Title:      "Body Camera Policy",
				DocType:    types.DocPolicy,
				Department: "Madison",
			},
		},
	}
}

func setupService(t *testing.T, withHistory bool) *Service {
	t.Helper()

	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	index, err := storage.NewSQLiteIndex(":memory:", emb, nil)
	require.NoError(t, err)

	var store *history.Store
	if withHistory {
		store, err = history.Open(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
	}

	svc, err := New(Components{
		Index:     index,
		Embedder:  emb,
		Generator: generator.NewOffline(),
		History:   store,
		Pipeline:  pipeline.DefaultConfig(),
		Indexing:  indexer.Config{Workers: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewRequiresDependencies(t *testing.T) {
	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	index, err := storage.NewSQLiteIndex(":memory:", emb, nil)
	require.NoError(t, err)
	defer index.Close()

	_, err = New(Components{Embedder: emb, Generator: generator.NewOffline()})
	assert.Error(t, err)
	_, err = New(Components{Index: index, Generator: generator.NewOffline()})
	assert.Error(t, err)
	_, err = New(Components{Index: index, Embedder: emb})
	assert.Error(t, err)
}

func TestIngestSearchChat(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, true)

	stats, err := svc.Ingest(ctx, testDocuments())
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusSuccess, stats.Status)
	assert.Equal(t, 2, stats.DocumentsProcessed)

	found, err := svc.Search(ctx, SearchParams{Query: "operating while intoxicated 346.63"})
	require.NoError(t, err)
	require.NotEmpty(t, found.Results)
	assert.Equal(t, "346.63", found.Results[0].Chunk.StatuteNumber)
	assert.Contains(t, found.StatuteNumbers, "346.63")

	filtered, err := svc.Search(ctx, SearchParams{
		Query:   "body camera retention",
		Filters: types.Filters{"doc_type": "policy"},
	})
	require.NoError(t, err)
	for _, r := range filtered.Results {
		assert.Equal(t, types.DocPolicy, r.Chunk.DocType)
	}

	resp, err := svc.Chat(ctx, pipeline.ChatRequest{Message: "How long are body camera recordings retained?"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Response)
	assert.NotEmpty(t, resp.ConversationID)
	assert.LessOrEqual(t, len(resp.Sources), 3)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)

	exchanges, err := svc.Conversation(resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "How long are body camera recordings retained?", exchanges[0].Query)
	assert.Equal(t, resp.Response, exchanges[0].Response)
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := setupService(t, false)

	_, err := svc.Search(context.Background(), SearchParams{Query: "   "})
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
}

func TestIngestInvalidatesSearchCache(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, false)

	_, err := svc.Ingest(ctx, testDocuments()[:1])
	require.NoError(t, err)

	_, err = svc.Search(ctx, SearchParams{Query: "intoxicant"})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.searcher.CacheLen())

	_, err = svc.Ingest(ctx, testDocuments()[1:])
	require.NoError(t, err)
	assert.Zero(t, svc.searcher.CacheLen())
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, false)

	_, err := svc.Ingest(ctx, testDocuments())
	require.NoError(t, err)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.BackendSQLite, status.Index.Backend)
	assert.Equal(t, 2, status.Index.ChunksCount)
	assert.True(t, status.KeywordBuilt)
	assert.Equal(t, 2, status.KeywordChunks)
	assert.False(t, status.Indexing)
	assert.False(t, status.HistoryEnabled)
	assert.Equal(t, embedder.ProviderLocal, status.Embedding.Provider)
	assert.Positive(t, status.Embedding.Dimension)
	assert.Equal(t, generator.ProviderOffline, status.Generator.Provider)
}

func TestConversationWithoutHistory(t *testing.T) {
	svc := setupService(t, false)

	_, err := svc.Conversation("abc")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestWarmUp(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, false)

	_, err := svc.index.Upsert(ctx, []types.Chunk{{
		ChunkID: types.ChunkID("statutes/940.txt", 0), DocID: "statutes/940.txt", DocType: types.DocStatute,
		Text: "§ 940.01 First-degree intentional homicide.", StatuteNumber: "940.01", Jurisdiction: "WI", Title: "Chapter 940",
	}})
	require.NoError(t, err)

	require.NoError(t, svc.WarmUp(ctx))
	assert.Equal(t, 1, svc.keyword.Size())
}

func TestOpenFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DBPath:          filepath.Join(dir, "codefour.db"),
		VectorBackend:   storage.BackendSQLite,
		HistoryPath:     filepath.Join(dir, "history", "history.db"),
		LLMTemperature:  0.3,
		LLMMaxTokens:    1000,
		MaxDocs:         100,
		SemanticWeight:  0.65,
		KeywordWeight:   0.35,
		ExactMatchBonus: 0.2,
		VariantWeight:   0.5,
		DictionaryPath:  filepath.Join(dir, "missing.yaml"),
	}

	svc, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer svc.Close()

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.HistoryEnabled)
	assert.Equal(t, embedder.ProviderLocal, status.Embedding.Provider)
	assert.Equal(t, generator.ProviderOffline, status.Generator.Provider)
}

func TestHits(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	hits := Hits([]types.ScoredChunk{
		{Chunk: types.Chunk{ChunkID: "statutes/940.txt::chunk_0", DocType: types.DocStatute, Text: string(long), StatuteNumber: "940.01"}, Score: 0.9},
		{Chunk: types.Chunk{ChunkID: "policies/a.txt::chunk_0", DocType: types.DocPolicy, Text: "short"}, Score: 0.4},
	})

	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Rank)
	assert.Equal(t, 2, hits[1].Rank)
	assert.Equal(t, "940.01", hits[0].StatuteNumber)
	assert.Len(t, hits[0].Excerpt, 503)
	assert.Equal(t, "short", hits[1].Excerpt)
	assert.NotNil(t, Hits(nil))
}
