package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// SQLiteIndex implements VectorIndex on SQLite. Vectors are stored as
// little-endian float32 blobs next to the chunk rows.
type SQLiteIndex struct {
	db       *sql.DB
	embedder embedder.Embedder
	logger   *zap.Logger
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also keeps ":memory:"
	// databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteIndex opens (or creates) the index at dbPath and applies migrations
func NewSQLiteIndex(dbPath string, emb embedder.Embedder, logger *zap.Logger) (*SQLiteIndex, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteIndex{db: db, embedder: emb, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Upsert embeds chunks whose text or embedding model changed and writes
// all of them in a single transaction
func (s *SQLiteIndex) Upsert(ctx context.Context, chunks []types.Chunk) (int, error) {
	prepared, err := prepareChunks(chunks)
	if err != nil {
		return 0, err
	}
	if len(prepared) == 0 {
		return 0, nil
	}

	stale, err := s.staleChunks(ctx, prepared)
	if err != nil {
		return 0, err
	}

	vectors, err := embedChunks(ctx, s.embedder, prepared, stale)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range prepared {
		if err := upsertChunkWithQuerier(ctx, tx, &prepared[i]); err != nil {
			return 0, err
		}
		if vec, ok := vectors[i]; ok {
			if err := upsertEmbeddingWithQuerier(ctx, tx, prepared[i].ChunkID, vec, s.embedder); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}

	s.logger.Debug("Upserted chunks",
		zap.Int("chunks", len(prepared)),
		zap.Int("embedded", len(vectors)))
	return len(prepared), nil
}

// staleChunks returns the positions of chunks that need a new embedding:
// new chunks, changed text, or an embedding from another model
func (s *SQLiteIndex) staleChunks(ctx context.Context, chunks []types.Chunk) ([]int, error) {
	query := `
		SELECT c.content_hash, e.model
		FROM chunks c
		LEFT JOIN embeddings e ON c.chunk_id = e.chunk_id
		WHERE c.chunk_id = ?
	`
	var stale []int
	for i := range chunks {
		var hash []byte
		var model sql.NullString
		err := s.db.QueryRowContext(ctx, query, chunks[i].ChunkID).Scan(&hash, &model)
		if err == sql.ErrNoRows {
			stale = append(stale, i)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup chunk %s: %w", chunks[i].ChunkID, err)
		}
		if string(hash) != string(chunks[i].ContentHash[:]) || !model.Valid || model.String != s.embedder.Model() {
			stale = append(stale, i)
		}
	}
	return stale, nil
}

func upsertChunkWithQuerier(ctx context.Context, q querier, c *types.Chunk) error {
	query := `
		INSERT INTO chunks (` + chunkColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			doc_id = excluded.doc_id,
			doc_type = excluded.doc_type,
			text = excluded.text,
			token_count = excluded.token_count,
			content_hash = excluded.content_hash,
			hierarchy_path = excluded.hierarchy_path,
			statute_number = excluded.statute_number,
			case_citation = excluded.case_citation,
			date = excluded.date,
			jurisdiction = excluded.jurisdiction,
			title = excluded.title,
			source_uri = excluded.source_uri,
			department = excluded.department,
			is_current = excluded.is_current,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	args := append(chunkArgs(c), now, now)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", c.ChunkID, err)
	}
	return nil
}

func upsertEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string, vector []float32, emb embedder.Embedder) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	_, err := q.ExecContext(ctx, query,
		chunkID, serializeVector(vector), len(vector), emb.Provider(), emb.Model(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert embedding %s: %w", chunkID, err)
	}
	return nil
}

// Query embeds text and returns the nearest chunks by cosine distance
func (s *SQLiteIndex) Query(ctx context.Context, text string, filters types.Filters, topK int) ([]types.ScoredChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = 10
	}

	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	return searchVector(ctx, s.db, emb.Vector, filters, topK)
}

// GetAll returns every chunk ordered by ChunkID
func (s *SQLiteIndex) GetAll(ctx context.Context) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks c ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// GetChunk returns a single chunk or ErrNotFound
func (s *SQLiteIndex) GetChunk(ctx context.Context, chunkID string) (*types.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks c WHERE chunk_id = ?`, chunkID)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteDocument removes every chunk of a document and returns how many
// were deleted. Embeddings go with them via ON DELETE CASCADE.
func (s *SQLiteIndex) DeleteDocument(ctx context.Context, docID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Stats summarizes the index contents
func (s *SQLiteIndex) Stats(ctx context.Context) (*IndexStats, error) {
	stats := &IndexStats{
		Backend:   BackendSQLite,
		BuildMode: BuildMode,
		ByDocType: make(map[string]int),
		Provider:  s.embedder.Provider(),
		Model:     s.embedder.Model(),
	}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version

	var lastUpdated sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT doc_id), MAX(updated_at) FROM chunks
	`).Scan(&stats.ChunksCount, &stats.DocumentsCount, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if lastUpdated.Valid {
		stats.LastUpdatedAt = parseSQLiteTime(lastUpdated.String)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.EmbeddingsCount); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT doc_type, COUNT(*) FROM chunks GROUP BY doc_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count doc types: %w", err)
	}
	defer func() { _ = rows.Close() }()
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

// parseSQLiteTime parses the timestamp formats the drivers write
func parseSQLiteTime(s string) time.Time {
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i] // monotonic clock suffix of time.Time.String
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// embedChunks embeds the chunks at positions idx in batches and returns
// vectors keyed by position
func embedChunks(ctx context.Context, emb embedder.Embedder, chunks []types.Chunk, idx []int) (map[int][]float32, error) {
	vectors := make(map[int][]float32, len(idx))
	for start := 0; start < len(idx); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(idx))

		texts := make([]string, 0, end-start)
		for _, i := range idx[start:end] {
			texts = append(texts, chunks[i].Text)
		}

		resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embed batch %d-%d: got %d embeddings for %d texts", start, end, len(resp.Embeddings), len(texts))
		}
		for j, i := range idx[start:end] {
			vectors[i] = resp.Embeddings[j].Vector
		}
	}
	return vectors, nil
}
