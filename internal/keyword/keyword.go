package keyword

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wizenheimer/comet"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/pkg/types"
)

// DefaultTopK is the number of keyword hits taken per query
const DefaultTopK = 20

var wordRe = regexp.MustCompile(`\w+`)

// Loader supplies the full chunk corpus for a build
type Loader interface {
	GetAll(ctx context.Context) ([]types.Chunk, error)
}

// snapshot is an immutable BM25 index over a fixed chunk list.
// Document ids in the BM25 index are positions in chunks.
type snapshot struct {
	chunks []types.Chunk
	bm25   *comet.BM25SearchIndex
}

// Index is an in-memory BM25 index over every chunk in the corpus.
// Searches read the current snapshot without locking; Build swaps in a new one.
type Index struct {
	current atomic.Pointer[snapshot]

	buildMu sync.Mutex
	built   atomic.Bool

	logger *zap.Logger
}

// New creates an empty, unbuilt index
func New(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{logger: logger}
}

// Build indexes chunks into a fresh snapshot and publishes it
func (i *Index) Build(chunks []types.Chunk) error {
	i.buildMu.Lock()
	defer i.buildMu.Unlock()
	return i.buildLocked(chunks)
}

func (i *Index) buildLocked(chunks []types.Chunk) error {
	snap := &snapshot{chunks: make([]types.Chunk, len(chunks))}
	copy(snap.chunks, chunks)

	if len(snap.chunks) > 0 {
		bm25 := comet.NewBM25SearchIndex()
		for n := range snap.chunks {
			if err := bm25.Add(uint32(n), Normalize(snap.chunks[n].SearchableText())); err != nil {
				return fmt.Errorf("bm25 add chunk %s: %w", snap.chunks[n].ChunkID, err)
			}
		}
		snap.bm25 = bm25
	}

	i.current.Store(snap)
	i.built.Store(true)
	i.logger.Info("Keyword index built", zap.Int("chunks", len(snap.chunks)))
	return nil
}

// EnsureBuilt performs the first build from loader if none has happened.
// Concurrent callers wait for the single build in flight. A failed build
// leaves the index empty and is retried on the next call.
func (i *Index) EnsureBuilt(ctx context.Context, loader Loader) error {
	if i.built.Load() {
		return nil
	}

	i.buildMu.Lock()
	defer i.buildMu.Unlock()
	if i.built.Load() {
		return nil
	}

	chunks, err := loader.GetAll(ctx)
	if err != nil {
		i.logger.Warn("Keyword index build failed, keyword search disabled", zap.Error(err))
		return fmt.Errorf("load chunks: %w", err)
	}
	return i.buildLocked(chunks)
}

// Rebuild reloads every chunk and replaces the snapshot
func (i *Index) Rebuild(ctx context.Context, loader Loader) error {
	chunks, err := loader.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	return i.Build(chunks)
}

// Search returns up to topK chunks with a positive BM25 score for query,
// best first. An unbuilt index returns no results.
func (i *Index) Search(query string, topK int) ([]types.ScoredChunk, error) {
	snap := i.current.Load()
	if snap == nil || snap.bm25 == nil {
		return nil, nil
	}

	q := Normalize(query)
	if q == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	hits, err := snap.bm25.NewSearch().
		WithQuery(q).
		WithK(topK).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	results := make([]types.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		n := int(h.Id)
		if n < 0 || n >= len(snap.chunks) {
			continue
		}
		score := float64(h.Score)
		if score <= 0 {
			continue
		}
		results = append(results, types.ScoredChunk{Chunk: snap.chunks[n], Score: score})
	}
	return results, nil
}

// Size returns the number of chunks in the current snapshot
func (i *Index) Size() int {
	snap := i.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.chunks)
}

// Built reports whether a snapshot has been published
func (i *Index) Built() bool {
	return i.built.Load()
}

// Normalize lowercases text and keeps only word tokens
func Normalize(text string) string {
	return strings.Join(wordRe.FindAllString(strings.ToLower(text), -1), " ")
}
