package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KRuddra/codefourrag/internal/chunker"
	"github.com/KRuddra/codefourrag/internal/keyword"
	"github.com/KRuddra/codefourrag/internal/storage"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// ErrIndexingInProgress is returned when another Index call holds the lock
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Failure stages
const (
	StageValidate = "validate"
	StageChunk    = "chunk"
	StageDelete   = "delete"
	StageUpsert   = "upsert"
)

// Run status
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

const (
	defaultBatchSize = 20
	defaultMaxDocs   = 1000
)

// DocumentDeleter is implemented by vector indices that can drop every
// chunk of a document. Re-indexing a document deletes its old chunks
// first so chunks of a shrunken document do not linger.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, docID string) (int, error)
}

// CacheInvalidator drops cached search results after the corpus changes
type CacheInvalidator interface {
	InvalidateCache()
}

// Indexer coordinates ingestion: validate -> chunk -> upsert -> rebuild keyword index
type Indexer struct {
	chunker *chunker.Chunker
	index   storage.VectorIndex
	keyword *keyword.Index
	cache   CacheInvalidator
	lock    IndexLock
	logger  *zap.Logger
}

// Config contains configuration for one indexing run
type Config struct {
	Workers   int // Concurrent chunking workers (default: runtime.NumCPU())
	BatchSize int // Documents per upsert call (default: 20)
	MaxDocs   int // Documents accepted per run; extra documents are ignored (default: 1000)
}

// DocumentFailure records why one document was not indexed
type DocumentFailure struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	Status             string            `json:"status"`
	TotalDocuments     int               `json:"total_documents"`
	DocumentsProcessed int               `json:"documents_processed"`
	DocumentsFailed    int               `json:"documents_failed"`
	DocumentsSkipped   int               `json:"documents_skipped"`
	ChunksCreated      int               `json:"chunks_created"`
	ChunksRemoved      int               `json:"chunks_removed"`
	TotalChunks        int               `json:"total_chunks"`
	Duration           time.Duration     `json:"duration"`
	Failures           []DocumentFailure `json:"failures"`
}

// chunkedDoc is a document with its chunks, or the failure that stopped it
type chunkedDoc struct {
	doc     types.Document
	chunks  []types.Chunk
	failure *DocumentFailure
}

// New creates an Indexer. kw and cache may be nil.
func New(index storage.VectorIndex, kw *keyword.Index, cache CacheInvalidator, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		chunker: chunker.New(),
		index:   index,
		keyword: kw,
		cache:   cache,
		logger:  logger,
	}
}

// Index chunks and stores documents. Per-document failures are collected
// in Statistics.Failures and never abort the run; only cancellation, a
// concurrent run or a failed keyword rebuild return an error.
func (idx *Indexer) Index(ctx context.Context, docs []types.Document, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	cfg := withDefaults(config)
	startTime := time.Now()

	stats := &Statistics{Failures: make([]DocumentFailure, 0)}
	if len(docs) > cfg.MaxDocs {
		idx.logger.Warn("Document limit reached",
			zap.Int("documents", len(docs)),
			zap.Int("max_docs", cfg.MaxDocs))
		stats.DocumentsSkipped = len(docs) - cfg.MaxDocs
		docs = docs[:cfg.MaxDocs]
	}
	stats.TotalDocuments = len(docs)

	chunked, err := idx.chunkDocuments(ctx, docs, cfg.Workers)
	if err != nil {
		return nil, err
	}

	if err := idx.storeDocuments(ctx, chunked, cfg.BatchSize, stats); err != nil {
		return nil, err
	}

	if idx.keyword != nil {
		if err := idx.keyword.Rebuild(ctx, idx.index); err != nil {
			return nil, fmt.Errorf("rebuild keyword index: %w", err)
		}
	}
	if idx.cache != nil {
		idx.cache.InvalidateCache()
	}

	if indexStats, err := idx.index.Stats(ctx); err == nil {
		stats.TotalChunks = indexStats.ChunksCount
	} else {
		idx.logger.Warn("Could not read index stats", zap.Error(err))
	}

	stats.DocumentsFailed = len(stats.Failures)
	stats.Status = runStatus(stats.DocumentsProcessed, stats.DocumentsFailed)
	stats.Duration = time.Since(startTime)

	idx.logger.Info("Indexing complete",
		zap.String("status", stats.Status),
		zap.Int("processed", stats.DocumentsProcessed),
		zap.Int("failed", stats.DocumentsFailed),
		zap.Int("chunks_created", stats.ChunksCreated),
		zap.Int("total_chunks", stats.TotalChunks),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// Running reports whether an Index call is in progress
func (idx *Indexer) Running() bool {
	return idx.lock.Locked()
}

func withDefaults(config *Config) Config {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = defaultMaxDocs
	}
	return cfg
}

// chunkDocuments validates and chunks documents concurrently. Results keep
// the input order.
func (idx *Indexer) chunkDocuments(ctx context.Context, docs []types.Document, workers int) ([]chunkedDoc, error) {
	out := make([]chunkedDoc, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = idx.chunkDocument(docs[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *Indexer) chunkDocument(doc types.Document) chunkedDoc {
	result := chunkedDoc{doc: doc}

	if err := doc.Validate(); err != nil {
		result.failure = &DocumentFailure{DocumentID: doc.ID, Stage: StageValidate, Reason: err.Error()}
		return result
	}

	chunks, err := idx.chunker.Chunk(doc)
	if err != nil {
		result.failure = &DocumentFailure{DocumentID: doc.ID, Stage: StageChunk, Reason: err.Error()}
		return result
	}
	if len(chunks) == 0 {
		result.failure = &DocumentFailure{DocumentID: doc.ID, Stage: StageChunk, Reason: "document produced no chunks"}
		return result
	}

	result.chunks = chunks
	return result
}

// storeDocuments writes chunked documents batch by batch. A failed batch
// is retried one document at a time so a single bad document does not
// fail its neighbours.
func (idx *Indexer) storeDocuments(ctx context.Context, chunked []chunkedDoc, batchSize int, stats *Statistics) error {
	var removed, created, processed atomic.Int64

	for start := 0; start < len(chunked); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+batchSize, len(chunked))
		var batch []chunkedDoc
		for _, cd := range chunked[start:end] {
			if cd.failure != nil {
				stats.Failures = append(stats.Failures, *cd.failure)
				continue
			}
			n, err := idx.deleteDocument(ctx, cd.doc.ID)
			if err != nil {
				stats.Failures = append(stats.Failures, DocumentFailure{DocumentID: cd.doc.ID, Stage: StageDelete, Reason: err.Error()})
				continue
			}
			removed.Add(int64(n))
			batch = append(batch, cd)
		}
		if len(batch) == 0 {
			continue
		}

		var chunks []types.Chunk
		for _, cd := range batch {
			chunks = append(chunks, cd.chunks...)
		}

		if _, err := idx.index.Upsert(ctx, chunks); err == nil {
			created.Add(int64(len(chunks)))
			processed.Add(int64(len(batch)))
			continue
		} else if ctx.Err() != nil {
			return ctx.Err()
		} else {
			idx.logger.Warn("Batch upsert failed; retrying per document",
				zap.Int("documents", len(batch)),
				zap.Error(err))
		}

		for _, cd := range batch {
			if _, err := idx.index.Upsert(ctx, cd.chunks); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				stats.Failures = append(stats.Failures, DocumentFailure{DocumentID: cd.doc.ID, Stage: StageUpsert, Reason: err.Error()})
				continue
			}
			created.Add(int64(len(cd.chunks)))
			processed.Add(1)
		}
	}

	stats.ChunksRemoved = int(removed.Load())
	stats.ChunksCreated = int(created.Load())
	stats.DocumentsProcessed = int(processed.Load())
	return nil
}

func (idx *Indexer) deleteDocument(ctx context.Context, docID string) (int, error) {
	deleter, ok := idx.index.(DocumentDeleter)
	if !ok {
		return 0, nil
	}
	return deleter.DeleteDocument(ctx, docID)
}

func runStatus(processed, failed int) string {
	switch {
	case failed == 0:
		return StatusSuccess
	case processed > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
