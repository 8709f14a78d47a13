package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KRuddra/codefourrag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested chunk doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when an embedding has the wrong size
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Backend names
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// upsertBatchSize is how many chunks are embedded per provider call
const upsertBatchSize = 50

// VectorIndex stores chunks with their embeddings and answers similarity
// queries. Query scores are cosine distances: lower is closer.
type VectorIndex interface {
	// Upsert embeds and stores chunks, replacing any with the same ChunkID.
	// It returns the number of chunks written.
	Upsert(ctx context.Context, chunks []types.Chunk) (int, error)

	// Query embeds text and returns the topK nearest chunks satisfying
	// every filter, nearest first.
	Query(ctx context.Context, text string, filters types.Filters, topK int) ([]types.ScoredChunk, error)

	// GetAll returns every stored chunk in ChunkID order
	GetAll(ctx context.Context) ([]types.Chunk, error)

	// Stats summarizes the index contents
	Stats(ctx context.Context) (*IndexStats, error)

	// Close releases the underlying connection
	Close() error
}

// IndexStats contains statistics about the vector index
type IndexStats struct {
	Backend         string         `json:"backend"`
	BuildMode       string         `json:"build_mode,omitempty"`
	SchemaVersion   string         `json:"schema_version,omitempty"`
	ChunksCount     int            `json:"chunks_count"`
	DocumentsCount  int            `json:"documents_count"`
	EmbeddingsCount int            `json:"embeddings_count"`
	ByDocType       map[string]int `json:"by_doc_type"`
	Provider        string         `json:"embedding_provider"`
	Model           string         `json:"embedding_model"`
	LastUpdatedAt   time.Time      `json:"last_updated_at,omitempty"`
}

// chunkColumns is the column list shared by every chunk SELECT
const chunkColumns = `chunk_id, doc_id, doc_type, text, token_count, content_hash,
	hierarchy_path, statute_number, case_citation, date, jurisdiction,
	title, source_uri, department, is_current`

// scanner is implemented by *sql.Row, *sql.Rows and pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanChunk reads a row selected with chunkColumns plus any extra targets
func scanChunk(s scanner, extra ...any) (types.Chunk, error) {
	var c types.Chunk
	var docType string
	var hash []byte
	var isCurrent *bool

	dest := []any{
		&c.ChunkID, &c.DocID, &docType, &c.Text, &c.TokenCount, &hash,
		&c.HierarchyPath, &c.StatuteNumber, &c.CaseCitation, &c.Date, &c.Jurisdiction,
		&c.Title, &c.SourceURI, &c.Department, &isCurrent,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return types.Chunk{}, err
	}

	c.DocType = types.DocType(docType)
	copy(c.ContentHash[:], hash)
	c.IsCurrent = isCurrent
	return c, nil
}

// chunkArgs returns the values for chunkColumns in order
func chunkArgs(c *types.Chunk) []any {
	var isCurrent any
	if c.IsCurrent != nil {
		isCurrent = *c.IsCurrent
	}
	return []any{
		c.ChunkID, c.DocID, string(c.DocType), c.Text, c.TokenCount, c.ContentHash[:],
		c.HierarchyPath, c.StatuteNumber, c.CaseCitation, c.Date, c.Jurisdiction,
		c.Title, c.SourceURI, c.Department, isCurrent,
	}
}

// filterClause renders filters as "AND col = <placeholder>" conditions.
// Keys are validated against types.FilterKeys, which are also column names.
// placeholder receives the 1-based argument position.
func filterClause(filters types.Filters, argOffset int, placeholder func(int) string) (string, []any, error) {
	if err := filters.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := make([]any, 0, len(filters))
	for _, key := range filters.Keys() {
		args = append(args, filters[key])
		fmt.Fprintf(&b, " AND c.%s = %s", key, placeholder(argOffset+len(args)))
	}
	return b.String(), args, nil
}

// prepareChunks validates chunks and fills derived fields
func prepareChunks(chunks []types.Chunk) ([]types.Chunk, error) {
	out := make([]types.Chunk, len(chunks))
	for i := range chunks {
		c := chunks[i]
		if c.TokenCount == 0 {
			c.ComputeTokenCount()
		}
		if c.ContentHash == ([32]byte{}) {
			c.ComputeContentHash()
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("chunk %q: %w", c.ChunkID, err)
		}
		out[i] = c
	}
	return out, nil
}
