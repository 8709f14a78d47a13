package storage

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// countingEmbedder records how many texts reach the provider
type countingEmbedder struct {
	embedder.Embedder
	texts atomic.Int64
}

func (c *countingEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	c.texts.Add(int64(len(req.Texts)))
	return c.Embedder.GenerateBatch(ctx, req)
}

func newTestEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	return &countingEmbedder{Embedder: local}
}

func setupTestIndex(t *testing.T) (*SQLiteIndex, *countingEmbedder) {
	t.Helper()
	emb := newTestEmbedder(t)
	idx, err := NewSQLiteIndex(":memory:", emb, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, emb
}

func testChunks() []types.Chunk {
	current := true
	return []types.Chunk{
		{
			ChunkID: types.ChunkID("statutes/940.txt", 0), DocID: "statutes/940.txt", DocType: types.DocStatute,
			Text:          "§ 940.01 First-degree intentional homicide. Whoever causes the death of another human being with intent to kill.",
			StatuteNumber: "940.01", Jurisdiction: "WI", Title: "Chapter 940", HierarchyPath: "Section 940.01",
			IsCurrent: &current,
		},
		{
			ChunkID: types.ChunkID("statutes/346.txt", 0), DocID: "statutes/346.txt", DocType: types.DocStatute,
			Text:          "§ 346.63 Operating under influence of intoxicant. No person may drive or operate a motor vehicle while intoxicated.",
			StatuteNumber: "346.63", Jurisdiction: "WI", Title: "Chapter 346",
		},
		{
			ChunkID: types.ChunkID("policies/madison.txt", 0), DocID: "policies/madison.txt", DocType: types.DocPolicy,
			Text:       "Body worn cameras shall be activated during every traffic stop and retained for 120 days.",
			Department: "Madison", Jurisdiction: "WI", Title: "Body Camera Policy",
		},
	}
}

func TestNewSQLiteIndex(t *testing.T) {
	idx, _ := setupTestIndex(t)
	assert.NotNil(t, idx.db)

	_, err := NewSQLiteIndex(":memory:", nil, nil)
	assert.Error(t, err)
}

func TestUpsertAndGetAll(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()

	n, err := idx.Upsert(ctx, testChunks())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := idx.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	byID := make(map[string]types.Chunk)
	for _, c := range all {
		byID[c.ChunkID] = c
	}

	homicide := byID[types.ChunkID("statutes/940.txt", 0)]
	assert.Equal(t, types.DocStatute, homicide.DocType)
	assert.Equal(t, "940.01", homicide.StatuteNumber)
	assert.Equal(t, "Section 940.01", homicide.HierarchyPath)
	require.NotNil(t, homicide.IsCurrent)
	assert.True(t, *homicide.IsCurrent)
	assert.NotZero(t, homicide.TokenCount)
	assert.NotEqual(t, [32]byte{}, homicide.ContentHash)

	policy := byID[types.ChunkID("policies/madison.txt", 0)]
	assert.Nil(t, policy.IsCurrent)
	assert.Equal(t, "Madison", policy.Department)
}

func TestUpsert_RejectsInvalidChunk(t *testing.T) {
	idx, _ := setupTestIndex(t)
	_, err := idx.Upsert(context.Background(), []types.Chunk{{ChunkID: "x", Text: ""}})
	assert.Error(t, err)
}

func TestUpsert_SkipsUnchangedEmbeddings(t *testing.T) {
	idx, emb := setupTestIndex(t)
	ctx := context.Background()
	chunks := testChunks()

	_, err := idx.Upsert(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, int64(3), emb.texts.Load())

	// same content: nothing is re-embedded
	_, err = idx.Upsert(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, int64(3), emb.texts.Load())

	// one changed chunk is re-embedded
	chunks[1].Text += " Penalties apply."
	chunks[1].ContentHash = [32]byte{}
	_, err = idx.Upsert(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, int64(4), emb.texts.Load())

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunksCount)
	assert.Equal(t, 3, stats.EmbeddingsCount)
}

func TestQuery_RanksBySimilarity(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	_, err := idx.Upsert(ctx, testChunks())
	require.NoError(t, err)

	results, err := idx.Query(ctx, "drive a motor vehicle while intoxicated", nil, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "346.63", results[0].Chunk.StatuteNumber)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Score, results[i].Score, "distances ascend")
	}
}

func TestQuery_Filters(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	_, err := idx.Upsert(ctx, testChunks())
	require.NoError(t, err)

	results, err := idx.Query(ctx, "homicide", types.Filters{"statute_number": "940.01"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "940.01", results[0].Chunk.StatuteNumber)

	results, err = idx.Query(ctx, "cameras", types.Filters{"doc_type": "policy", "department": "Madison"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = idx.Query(ctx, "cameras", types.Filters{"department": "madison"}, 5)
	require.NoError(t, err)
	assert.Empty(t, results, "filters are exact-match")

	_, err = idx.Query(ctx, "cameras", types.Filters{"color": "red"}, 5)
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
}

func TestQuery_EmptyText(t *testing.T) {
	idx, _ := setupTestIndex(t)
	_, err := idx.Query(context.Background(), "   ", nil, 5)
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
}

func TestGetChunk(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	_, err := idx.Upsert(ctx, testChunks())
	require.NoError(t, err)

	c, err := idx.GetChunk(ctx, types.ChunkID("statutes/346.txt", 0))
	require.NoError(t, err)
	assert.Equal(t, "346.63", c.StatuteNumber)

	_, err = idx.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	_, err := idx.Upsert(ctx, testChunks())
	require.NoError(t, err)

	n, err := idx.DeleteDocument(ctx, "statutes/940.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunksCount)
	assert.Equal(t, 2, stats.EmbeddingsCount, "embeddings cascade with their chunk")
}

func TestStats(t *testing.T) {
	idx, _ := setupTestIndex(t)
	ctx := context.Background()
	_, err := idx.Upsert(ctx, testChunks())
	require.NoError(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, stats.Backend)
	assert.Equal(t, BuildMode, stats.BuildMode)
	assert.Equal(t, CurrentSchemaVersion, stats.SchemaVersion)
	assert.Equal(t, 3, stats.DocumentsCount)
	assert.Equal(t, map[string]int{"statute": 2, "policy": 1}, stats.ByDocType)
	assert.Equal(t, embedder.ProviderLocal, stats.Provider)
	assert.False(t, stats.LastUpdatedAt.IsZero())
}

func TestOpen(t *testing.T) {
	emb := newTestEmbedder(t)

	idx, err := Open(context.Background(), Options{Path: ":memory:"}, emb, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteIndex{}, idx)
	require.NoError(t, idx.Close())

	_, err = Open(context.Background(), Options{Backend: "mongo"}, emb, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Backend: BackendPostgres}, emb, nil)
	assert.Error(t, err, "postgres requires a URL")
}

func TestParseSQLiteTime(t *testing.T) {
	for _, s := range []string{
		"2024-03-01 10:30:00.5 +0000 UTC",
		"2024-03-01 10:30:00.5 +0000 UTC m=+0.001",
		"2024-03-01 10:30:00.5+00:00",
		"2024-03-01T10:30:00.5Z",
	} {
		got := parseSQLiteTime(s)
		assert.Equal(t, 2024, got.Year(), s)
		assert.Equal(t, 30, got.Minute(), s)
	}
	assert.True(t, parseSQLiteTime("garbage").IsZero())
}
