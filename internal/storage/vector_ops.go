package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KRuddra/codefourrag/pkg/types"
)

// searchVector returns the topK chunks nearest to queryVector by cosine
// distance, ascending
func searchVector(ctx context.Context, q querier, queryVector []float32, filters types.Filters, topK int) ([]types.ScoredChunk, error) {
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		results, err := searchVectorOptimized(ctx, q, queryVector, filters, topK)
		if err == nil || errors.Is(err, types.ErrInvalidFilter) {
			return results, err
		}
		// extension not registered with this connection
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorFallback(ctx, q, queryVector, filters, topK)
}

func sqlitePlaceholder(int) string { return "?" }

// searchVectorOptimized uses sqlite-vec to compute distances in the database
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, filters types.Filters, topK int) ([]types.ScoredChunk, error) {
	where, filterArgs, err := filterClause(filters, 1, sqlitePlaceholder)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + chunkColumns + `,
			vec_distance_cosine(e.vector, ?) AS distance
		FROM chunks c
		INNER JOIN embeddings e ON c.chunk_id = e.chunk_id
		WHERE e.dimension = ?` + where + `
		ORDER BY distance ASC, c.chunk_id ASC
		LIMIT ?
	`
	args := []any{serializeVector(queryVector), len(queryVector)}
	args = append(args, filterArgs...)
	args = append(args, topK)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ScoredChunk, 0, topK)
	for rows.Next() {
		var distance float64
		c, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, types.ScoredChunk{Chunk: c, Score: distance})
	}

	return results, rows.Err()
}

// searchVectorFallback loads candidate vectors and ranks them in Go
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, filters types.Filters, topK int) ([]types.ScoredChunk, error) {
	where, filterArgs, err := filterClause(filters, 0, sqlitePlaceholder)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + chunkColumns + `, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.chunk_id = e.chunk_id
		WHERE 1 = 1` + where + `
		ORDER BY c.chunk_id
	`

	rows, err := q.QueryContext(ctx, query, filterArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.ScoredChunk, 0, 256)
	for rows.Next() {
		var blob []byte
		c, err := scanChunk(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // dimension mismatch, skip
		}

		candidates = append(candidates, types.ScoredChunk{
			Chunk: c,
			Score: cosineDistance(queryVector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortByDistance(candidates)

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is 1 - cosine similarity, in [0, 2]
func cosineDistance(a, b []float32) float64 {
	d := 1 - cosineSimilarity(a, b)
	if d < 0 {
		return 0
	}
	return d
}

// sortByDistance orders candidates nearest first; ties keep their order
func sortByDistance(candidates []types.ScoredChunk) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineDistance is an exported helper for testing
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(a, b)
}
