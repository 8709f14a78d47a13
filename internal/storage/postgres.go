package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// PostgresIndex implements VectorIndex on Postgres with the pgvector
// extension. Embeddings live in a vector column of the chunks table.
type PostgresIndex struct {
	pool     *pgxpool.Pool
	embedder embedder.Embedder
	logger   *zap.Logger
}

// NewPostgresIndex connects to databaseURL and creates the schema if needed
func NewPostgresIndex(ctx context.Context, databaseURL string, emb embedder.Embedder, logger *zap.Logger) (*PostgresIndex, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &PostgresIndex{pool: pool, embedder: emb, logger: logger}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the pgvector extension, table and indexes
func (p *PostgresIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			doc_type TEXT NOT NULL,
			text TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			content_hash BYTEA NOT NULL,
			hierarchy_path TEXT NOT NULL DEFAULT '',
			statute_number TEXT NOT NULL DEFAULT '',
			case_citation TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			jurisdiction TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			source_uri TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			is_current BOOLEAN,
			embedding vector(%d),
			embedding_provider TEXT NOT NULL DEFAULT '',
			embedding_model TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.embedder.Dimension()),
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc_type ON chunks(doc_type)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_statute ON chunks(statute_number)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresIndex) Close() error {
	p.pool.Close()
	return nil
}

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// formatVector formats an embedding as a pgvector literal
func formatVector(vector []float32) string {
	if len(vector) == 0 {
		return "[]"
	}
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 6, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Upsert embeds new or changed chunks and writes all of them in one transaction
func (p *PostgresIndex) Upsert(ctx context.Context, chunks []types.Chunk) (int, error) {
	prepared, err := prepareChunks(chunks)
	if err != nil {
		return 0, err
	}
	if len(prepared) == 0 {
		return 0, nil
	}

	stale, err := p.staleChunks(ctx, prepared)
	if err != nil {
		return 0, err
	}
	vectors, err := embedChunks(ctx, p.embedder, prepared, stale)
	if err != nil {
		return 0, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range prepared {
		if err := p.upsertChunk(ctx, tx, &prepared[i]); err != nil {
			return 0, err
		}
		if vec, ok := vectors[i]; ok {
			_, err := tx.Exec(ctx, `
				UPDATE chunks
				SET embedding = $2::vector, embedding_provider = $3, embedding_model = $4
				WHERE chunk_id = $1`,
				prepared[i].ChunkID, formatVector(vec), p.embedder.Provider(), p.embedder.Model())
			if err != nil {
				return 0, fmt.Errorf("failed to store embedding %s: %w", prepared[i].ChunkID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	p.logger.Debug("Upserted chunks",
		zap.Int("chunks", len(prepared)),
		zap.Int("embedded", len(vectors)))
	return len(prepared), nil
}

func (p *PostgresIndex) staleChunks(ctx context.Context, chunks []types.Chunk) ([]int, error) {
	var stale []int
	for i := range chunks {
		var hash []byte
		var model string
		var hasEmbedding bool
		err := p.pool.QueryRow(ctx,
			`SELECT content_hash, embedding_model, embedding IS NOT NULL FROM chunks WHERE chunk_id = $1`,
			chunks[i].ChunkID).Scan(&hash, &model, &hasEmbedding)
		if errors.Is(err, pgx.ErrNoRows) {
			stale = append(stale, i)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup chunk %s: %w", chunks[i].ChunkID, err)
		}
		if string(hash) != string(chunks[i].ContentHash[:]) || !hasEmbedding || model != p.embedder.Model() {
			stale = append(stale, i)
		}
	}
	return stale, nil
}

func (p *PostgresIndex) upsertChunk(ctx context.Context, tx pgx.Tx, c *types.Chunk) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO chunks (`+chunkColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (chunk_id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			doc_type = EXCLUDED.doc_type,
			text = EXCLUDED.text,
			token_count = EXCLUDED.token_count,
			content_hash = EXCLUDED.content_hash,
			hierarchy_path = EXCLUDED.hierarchy_path,
			statute_number = EXCLUDED.statute_number,
			case_citation = EXCLUDED.case_citation,
			date = EXCLUDED.date,
			jurisdiction = EXCLUDED.jurisdiction,
			title = EXCLUDED.title,
			source_uri = EXCLUDED.source_uri,
			department = EXCLUDED.department,
			is_current = EXCLUDED.is_current,
			updated_at = EXCLUDED.updated_at`,
		append(chunkArgs(c), time.Now())...)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", c.ChunkID, err)
	}
	return nil
}

// Query embeds text and orders chunks by pgvector cosine distance
func (p *PostgresIndex) Query(ctx context.Context, text string, filters types.Filters, topK int) ([]types.ScoredChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = 10
	}

	where, filterArgs, err := filterClause(filters, 1, postgresPlaceholder)
	if err != nil {
		return nil, err
	}

	emb, err := p.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	args := append([]any{formatVector(emb.Vector)}, filterArgs...)
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT %s,
			c.embedding <=> $1::vector AS distance
		FROM chunks c
		WHERE c.embedding IS NOT NULL%s
		ORDER BY c.embedding <=> $1::vector, c.chunk_id
		LIMIT $%d`, chunkColumns, where, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := make([]types.ScoredChunk, 0, topK)
	for rows.Next() {
		var distance float64
		c, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, types.ScoredChunk{Chunk: c, Score: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return results, nil
}

// GetAll returns every chunk ordered by ChunkID
func (p *PostgresIndex) GetAll(ctx context.Context) ([]types.Chunk, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks c ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]types.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteDocument removes every chunk of a document
func (p *PostgresIndex) DeleteDocument(ctx context.Context, docID string) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats summarizes the index contents
func (p *PostgresIndex) Stats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{
		Backend:   BackendPostgres,
		ByDocType: make(map[string]int),
		Provider:  p.embedder.Provider(),
		Model:     p.embedder.Model(),
	}

	var lastUpdated *time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT doc_id), COUNT(embedding), MAX(updated_at) FROM chunks
	`).Scan(&stats.ChunksCount, &stats.DocumentsCount, &stats.EmbeddingsCount, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if lastUpdated != nil {
		stats.LastUpdatedAt = *lastUpdated
	}

	rows, err := p.pool.Query(ctx, `SELECT doc_type, COUNT(*) FROM chunks GROUP BY doc_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count doc types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var docType string
		var n int
		if err := rows.Scan(&docType, &n); err != nil {
			return nil, err
		}
		stats.ByDocType[docType] = n
	}
	return stats, rows.Err()
}
