// Package crossref detects statute cross-references inside chunks and
// resolves them to the chunks that hold the referenced sections.
package crossref

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/legalref"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// DefaultMaxRefs is the number of references resolved per expansion
const DefaultMaxRefs = 5

const statuteNum = `(\d+\.\d+(?:\([0-9a-zA-Z]+\))*)`

// Rule is a named cross-reference phrasing; group 1 is the statute number
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Rules are the explicit cross-reference phrasings
var Rules = []Rule{
	{Name: "see_also", Pattern: regexp.MustCompile(`(?i)see also\s+§\s*` + statuteNum)},
	{Name: "see", Pattern: regexp.MustCompile(`(?i)see\s+§\s*` + statuteNum)},
	{Name: "refer_to", Pattern: regexp.MustCompile(`(?i)refer to\s+§\s*` + statuteNum)},
	{Name: "under", Pattern: regexp.MustCompile(`(?i)under\s+§\s*` + statuteNum)},
	{Name: "pursuant_to", Pattern: regexp.MustCompile(`(?i)pursuant to\s+§\s*` + statuteNum)},
	{Name: "section_pair", Pattern: regexp.MustCompile(`(?i)§\s*` + statuteNum + `\s+(?:and|,)\s+§`)},
}

// Detect returns the sorted, unique statute numbers a chunk refers to.
// Bare "§" references are skipped when they are part of the chunk's own
// statute number; explicit phrasings are always kept.
func Detect(c *types.Chunk) []string {
	refs := make(map[string]bool)

	for _, r := range Rules {
		for _, m := range r.Pattern.FindAllStringSubmatch(c.Text, -1) {
			refs[m[1]] = true
		}
	}

	for _, m := range legalref.SectionSymbol.FindAllStringSubmatch(c.Text, -1) {
		if c.StatuteNumber != "" && strings.Contains(c.StatuteNumber, m[1]) {
			continue
		}
		refs[m[1]] = true
	}

	out := make([]string, 0, len(refs))
	for ref := range refs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Index is the part of the vector index the resolver reads
type Index interface {
	Query(ctx context.Context, text string, filters types.Filters, topK int) ([]types.ScoredChunk, error)
	GetAll(ctx context.Context) ([]types.Chunk, error)
}

// Resolver finds the chunk holding a referenced statute section
type Resolver struct {
	index  Index
	logger *zap.Logger
}

// NewResolver creates a Resolver over index
func NewResolver(index Index, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{index: index, logger: logger}
}

// Resolve returns the chunk for statute number, never one whose id is in
// exclude. It first asks the vector index for an exact statute_number
// match, then scans every chunk preferring exact equality over the first
// partial match. Lookup errors are logged and reported as not found.
func (r *Resolver) Resolve(ctx context.Context, number string, exclude map[string]bool) (*types.Chunk, bool) {
	results, err := r.index.Query(ctx, "statute "+number, types.Filters{"statute_number": number}, 1)
	if err != nil {
		r.logger.Debug("Crossref exact lookup failed", zap.String("statute", number), zap.Error(err))
	} else if len(results) > 0 && !exclude[results[0].Chunk.ChunkID] {
		c := results[0].Chunk
		return &c, true
	}

	all, err := r.index.GetAll(ctx)
	if err != nil {
		r.logger.Debug("Crossref scan failed", zap.String("statute", number), zap.Error(err))
		return nil, false
	}

	var partial *types.Chunk
	for i := range all {
		c := &all[i]
		if exclude[c.ChunkID] || !legalref.StatuteMatches(number, c.StatuteNumber) {
			continue
		}
		if c.StatuteNumber == number {
			return c, true
		}
		if partial == nil {
			partial = c
		}
	}
	if partial != nil {
		return partial, true
	}

	r.logger.Debug("Could not resolve cross-reference", zap.String("statute", number))
	return nil, false
}

// Expand appends to chunks the chunks referenced by them, resolving at
// most maxRefs references in statute-number order. References inside
// newly resolved chunks are not followed.
func (r *Resolver) Expand(ctx context.Context, chunks []types.Chunk, maxRefs int) []types.Chunk {
	seen := make(map[string]bool, len(chunks))
	refs := make(map[string]bool)
	for i := range chunks {
		seen[chunks[i].ChunkID] = true
		for _, ref := range Detect(&chunks[i]) {
			refs[ref] = true
		}
	}

	numbers := make([]string, 0, len(refs))
	for ref := range refs {
		numbers = append(numbers, ref)
	}
	sort.Strings(numbers)

	out := append([]types.Chunk(nil), chunks...)
	resolved := 0
	for _, number := range numbers {
		if resolved >= maxRefs {
			break
		}
		c, ok := r.Resolve(ctx, number, seen)
		if !ok || seen[c.ChunkID] {
			continue
		}
		out = append(out, *c)
		seen[c.ChunkID] = true
		resolved++
	}

	if resolved > 0 {
		r.logger.Debug("Expanded cross-references",
			zap.Int("detected", len(numbers)),
			zap.Int("resolved", resolved))
	}
	return out
}
