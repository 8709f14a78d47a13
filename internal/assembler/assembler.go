// Package assembler builds the bounded, citation-addressable context packet
// handed to the answer generator.
package assembler

import (
	"context"

	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/pkg/types"
)

const (
	// MaxPerType is how many chunks of each document type lead the
	// diversified order
	MaxPerType = 2

	// CrossrefScore is the placeholder score of chunks added by
	// cross-reference expansion
	CrossrefScore = 0.5
)

// Options bound a context packet. Zero MaxChunks or MaxTokens means unlimited.
type Options struct {
	MaxChunks        int
	MaxTokens        int
	ExpandCrossrefs  bool
	MaxCrossrefs     int
	EnforceDiversity bool
}

// DefaultOptions returns the limits used by the chat pipeline
func DefaultOptions() Options {
	return Options{
		MaxChunks:        10,
		MaxTokens:        4000,
		ExpandCrossrefs:  true,
		MaxCrossrefs:     5,
		EnforceDiversity: true,
	}
}

// Expander adds referenced chunks to a chunk list
type Expander interface {
	Expand(ctx context.Context, chunks []types.Chunk, maxRefs int) []types.Chunk
}

// Assembler turns ranked chunks into a ContextPacket
type Assembler struct {
	expander Expander
	logger   *zap.Logger
}

// New creates an Assembler. A nil expander disables cross-reference
// expansion regardless of Options.
func New(expander Expander, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{expander: expander, logger: logger}
}

// Build orders, expands and budgets ranked chunks into a new packet.
// The first chunk is always admitted, even when it alone exceeds MaxTokens.
func (a *Assembler) Build(ctx context.Context, ranked []types.ScoredChunk, opts Options) *types.ContextPacket {
	packet := types.NewContextPacket()
	if len(ranked) == 0 {
		return packet
	}

	ordered := ranked
	if opts.EnforceDiversity {
		ordered = Diversify(ranked)
	}

	primary := make(map[string]bool, len(ordered))
	for _, sc := range ordered {
		primary[sc.Chunk.ChunkID] = true
	}

	if opts.ExpandCrossrefs && a.expander != nil {
		ordered = a.expand(ctx, ordered, opts.MaxCrossrefs)
	}

	tokens := 0
	selected := 0
	for _, sc := range ordered {
		if opts.MaxChunks > 0 && selected >= opts.MaxChunks {
			break
		}
		chunkTokens := types.EstimateTokens(sc.Chunk.Text)
		if opts.MaxTokens > 0 && tokens+chunkTokens > opts.MaxTokens && selected > 0 {
			break
		}

		sourceType := types.SourcePrimary
		if !primary[sc.Chunk.ChunkID] {
			sourceType = types.SourceCrossref
		}
		packet.Add(sc.Chunk, sc.Score, sourceType)
		tokens += chunkTokens
		selected++

		if opts.MaxTokens > 0 && tokens > opts.MaxTokens {
			break // an oversized first chunk fills the budget
		}
	}

	a.logger.Info("Built context packet",
		zap.Int("sources", packet.Len()),
		zap.Int("tokens", packet.TotalTokens),
		zap.Strings("doc_types", packet.DocTypes()))

	return packet
}

// expand appends resolved cross-references with the placeholder score
func (a *Assembler) expand(ctx context.Context, ordered []types.ScoredChunk, maxRefs int) []types.ScoredChunk {
	chunks := make([]types.Chunk, len(ordered))
	for i, sc := range ordered {
		chunks[i] = sc.Chunk
	}

	expanded := a.expander.Expand(ctx, chunks, maxRefs)
	if len(expanded) <= len(ordered) {
		return ordered
	}

	out := append([]types.ScoredChunk(nil), ordered...)
	for _, c := range expanded[len(ordered):] {
		out = append(out, types.ScoredChunk{Chunk: c, Score: CrossrefScore})
	}
	return out
}

// Diversify moves up to MaxPerType chunks of each type in
// types.DiversityOrder to the front, then appends the rest in their
// original order.
func Diversify(ranked []types.ScoredChunk) []types.ScoredChunk {
	out := make([]types.ScoredChunk, 0, len(ranked))
	taken := make(map[string]bool, len(ranked))

	for _, docType := range types.DiversityOrder {
		n := 0
		for _, sc := range ranked {
			if n == MaxPerType {
				break
			}
			if sc.Chunk.DocType != docType || taken[sc.Chunk.ChunkID] {
				continue
			}
			out = append(out, sc)
			taken[sc.Chunk.ChunkID] = true
			n++
		}
	}

	for _, sc := range ranked {
		if taken[sc.Chunk.ChunkID] {
			continue
		}
		out = append(out, sc)
		taken[sc.Chunk.ChunkID] = true
	}
	return out
}
