package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KRuddra/codefourrag/pkg/types"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	vector := []float32{0.1, -2.5, 3.25, 0, float32(math.Pi)}
	blob := SerializeVector(vector)
	assert.Len(t, blob, len(vector)*4)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineDistance(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSortByDistance_StableTies(t *testing.T) {
	candidates := []types.ScoredChunk{
		{Chunk: types.Chunk{ChunkID: "c"}, Score: 0.5},
		{Chunk: types.Chunk{ChunkID: "a"}, Score: 0.1},
		{Chunk: types.Chunk{ChunkID: "b"}, Score: 0.5},
	}
	sortByDistance(candidates)

	ids := []string{candidates[0].Chunk.ChunkID, candidates[1].Chunk.ChunkID, candidates[2].Chunk.ChunkID}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestFilterClause(t *testing.T) {
	where, args, err := filterClause(types.Filters{"jurisdiction": "WI", "doc_type": "statute"}, 1, postgresPlaceholder)
	require.NoError(t, err)
	assert.Equal(t, " AND c.doc_type = $2 AND c.jurisdiction = $3", where)
	assert.Equal(t, []any{"statute", "WI"}, args)

	where, args, err = filterClause(nil, 0, sqlitePlaceholder)
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)

	_, _, err = filterClause(types.Filters{"chunk_id; DROP TABLE chunks": "x"}, 0, sqlitePlaceholder)
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[]", formatVector(nil))
	assert.Equal(t, "[0.500000,-1.000000]", formatVector([]float32{0.5, -1}))
}
