package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/KRuddra/codefourrag/internal/legalref"
	"github.com/KRuddra/codefourrag/pkg/types"
)

const (
	// TargetTokensPerChunk is the target token count per chunk
	TargetTokensPerChunk = 1200

	// OverlapChars is the context carried across a size split
	OverlapChars = 200

	// MinMergeChars is the size below which adjacent statute fragments merge
	MinMergeChars = 500

	// MinChunkChars is the size below which a chunk is discarded as an artifact
	MinChunkChars = 10

	// oversizeFactor controls when a statute section is re-split
	oversizeFactor = 1.5

	// captionMaxLen truncates ALL-CAPS headings used as hierarchy paths
	captionMaxLen = 50

	defaultJurisdiction = "WI"
	defaultTitle        = "Untitled"
)

// Config controls chunk sizing
type Config struct {
	TargetTokens  int
	OverlapChars  int
	MinMergeChars int
	MinChunkChars int
}

// DefaultConfig returns the standard legal chunking configuration
func DefaultConfig() Config {
	return Config{
		TargetTokens:  TargetTokensPerChunk,
		OverlapChars:  OverlapChars,
		MinMergeChars: MinMergeChars,
		MinChunkChars: MinChunkChars,
	}
}

// TargetChars is the target chunk size in characters
func (c Config) TargetChars() int {
	return c.TargetTokens * types.CharsPerToken
}

// Chunker splits normalized legal documents into citable chunks
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the default configuration
func New() *Chunker {
	return &Chunker{cfg: DefaultConfig()}
}

// NewWithConfig creates a Chunker with a custom configuration.
// Zero fields fall back to defaults.
func NewWithConfig(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = def.TargetTokens
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = def.OverlapChars
	}
	if cfg.MinMergeChars <= 0 {
		cfg.MinMergeChars = def.MinMergeChars
	}
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = def.MinChunkChars
	}
	return &Chunker{cfg: cfg}
}

// section is an intermediate piece of a document before chunk assembly
type section struct {
	text      string
	hierarchy string
	statute   string
	citation  string
}

// Chunk splits a document into chunks using the strategy for its type.
// Chunk IDs are dense: the n-th emitted chunk gets index n.
func (c *Chunker) Chunk(doc types.Document) ([]types.Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}

	docType := types.ParseDocType(string(doc.Metadata.DocType))

	var pieces []section
	switch docType {
	case types.DocStatute:
		pieces = c.statuteSections(doc)
	case types.DocCaseLaw:
		pieces = c.caseSections(doc)
	case types.DocPolicy, types.DocTraining:
		pieces = c.policySections(doc)
	default:
		pieces = c.sizeSections(doc.Text)
	}

	chunks := make([]types.Chunk, 0, len(pieces))
	for _, p := range pieces {
		if len(strings.TrimSpace(p.text)) < c.cfg.MinChunkChars {
			continue
		}
		index := len(chunks)
		hierarchy := p.hierarchy
		if hierarchy == "" {
			hierarchy = fmt.Sprintf("Section %d", index+1)
		}
		chunk := c.newChunk(doc, docType, index, p.text, hierarchy)
		chunk.StatuteNumber = p.statute
		chunk.CaseCitation = p.citation
		chunks = append(chunks, chunk)
	}

	// Case citations belong only to the first chunk
	for i := 1; i < len(chunks); i++ {
		chunks[i].CaseCitation = ""
	}

	return chunks, nil
}

// statuteSections splits at § / Section markers, falling back to numbered
// subsections, merges small fragments and re-splits oversized sections.
func (c *Chunker) statuteSections(doc types.Document) []section {
	bounds := statuteSectionRules.find(doc.Text)
	if len(bounds) == 0 {
		bounds = statuteFallbackRules.find(doc.Text)
	}

	parts := mergeSmall(splitAtBoundaries(doc.Text, bounds), c.cfg.MinMergeChars)

	fallback := ""
	if len(doc.Metadata.StatuteNumbers) > 0 {
		fallback = doc.Metadata.StatuteNumbers[0]
	}

	limit := int(float64(c.cfg.TargetChars()) * oversizeFactor)
	var out []section
	for _, part := range parts {
		subs := []string{part}
		if len(part) > limit {
			subs = c.splitBySize(part)
		}
		for _, sub := range subs {
			statute := legalref.FirstStatuteNumber(sub)
			if statute == "" {
				statute = fallback
			}
			out = append(out, section{
				text:      sub,
				hierarchy: statuteHierarchy(sub),
				statute:   statute,
			})
		}
	}
	return out
}

// caseSections splits at case-law headings and size-splits each section
func (c *Chunker) caseSections(doc types.Document) []section {
	parts := splitAtBoundaries(doc.Text, caseRules.find(doc.Text))

	var out []section
	for _, part := range parts {
		citation := legalref.FirstCaseCitation(part)
		if citation == "" {
			citation = legalref.FirstCaseCitation(doc.Text)
		}
		for _, sub := range c.splitBySize(part) {
			out = append(out, section{
				text:      sub,
				hierarchy: strings.ToUpper(caseRules.first(sub)),
				statute:   legalref.FirstStatuteNumber(sub),
				citation:  citation,
			})
		}
	}
	return out
}

// policySections splits at numbered or ALL-CAPS headings
func (c *Chunker) policySections(doc types.Document) []section {
	parts := splitAtBoundaries(doc.Text, policyRules.find(doc.Text))

	var out []section
	for _, part := range parts {
		for _, sub := range c.splitBySize(part) {
			out = append(out, section{text: sub, hierarchy: policyHierarchy(sub)})
		}
	}
	return out
}

// sizeSections is the strategy for documents of unknown type
func (c *Chunker) sizeSections(text string) []section {
	var out []section
	for _, sub := range c.splitBySize(text) {
		out = append(out, section{text: sub})
	}
	return out
}

func (c *Chunker) newChunk(doc types.Document, docType types.DocType, index int, text, hierarchy string) types.Chunk {
	meta := doc.Metadata

	jurisdiction := meta.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = defaultJurisdiction
	}
	title := meta.Title
	if title == "" {
		title = defaultTitle
	}
	date := ""
	if len(meta.Dates) > 0 {
		date = meta.Dates[0]
	}

	chunk := types.Chunk{
		ChunkID:       types.ChunkID(doc.ID, index),
		DocID:         doc.ID,
		DocType:       docType,
		Text:          text,
		HierarchyPath: hierarchy,
		Date:          date,
		Jurisdiction:  jurisdiction,
		Title:         title,
		SourceURI:     doc.SourceURI(),
		Department:    meta.Department,
		IsCurrent:     meta.IsCurrent,
	}
	chunk.ComputeTokenCount()
	chunk.ComputeContentHash()
	return chunk
}

// statuteHierarchy builds "Chapter N > Section N.N > Subsection (n)"
func statuteHierarchy(text string) string {
	var parts []string
	if m := chapterRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "Chapter "+m[1])
	}
	if m := sectionRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "Section "+m[1])
	}
	if m := subsectionRe.FindStringSubmatch(text); m != nil {
		parts = append(parts, "Subsection ("+m[1]+")")
	}
	return strings.Join(parts, " > ")
}

// policyHierarchy prefers a numbered heading, then an ALL-CAPS caption
func policyHierarchy(text string) string {
	if num := (ruleSet{numberedHeadingRule}).first(text); num != "" {
		return "Section " + num
	}
	if caption := (ruleSet{capsHeadingRule}).first(text); caption != "" {
		if len(caption) > captionMaxLen {
			caption = caption[:captionMaxLen]
		}
		return caption
	}
	return ""
}

// splitAtBoundaries cuts text at each boundary. Text before the first
// boundary becomes its own piece; each boundary starts a new piece.
func splitAtBoundaries(text string, bounds []boundary) []string {
	if len(bounds) == 0 {
		return []string{text}
	}

	var out []string
	if pre := strings.TrimSpace(text[:bounds[0].Start]); pre != "" {
		out = append(out, pre)
	}
	for i, b := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1].Start
		}
		if seg := strings.TrimSpace(text[b.Start:end]); seg != "" {
			out = append(out, seg)
		}
	}

	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// mergeSmall joins a piece shorter than minSize with the following piece
func mergeSmall(pieces []string, minSize int) []string {
	if len(pieces) == 0 {
		return pieces
	}

	var merged []string
	current := pieces[0]
	for _, next := range pieces[1:] {
		if len(current) < minSize && next != "" {
			current = current + "\n\n" + next
			continue
		}
		if strings.TrimSpace(current) != "" {
			merged = append(merged, current)
		}
		current = next
	}
	if strings.TrimSpace(current) != "" {
		merged = append(merged, current)
	}

	if len(merged) == 0 {
		return pieces
	}
	return merged
}

// splitBySize cuts text into windows of at most TargetChars, preferring a
// sentence end in the last fifth of the window, then the last space. Each
// following window starts half an overlap before the cut.
func (c *Chunker) splitBySize(text string) []string {
	maxChars := c.cfg.TargetChars()
	if len(text) <= maxChars {
		return []string{text}
	}

	step := c.cfg.OverlapChars / 2
	var out []string
	pos, last := 0, -1

	for pos < len(text) {
		if pos <= last {
			// no progress; jump ahead
			pos = runeStart(text, last+maxChars/2)
			if pos >= len(text) {
				break
			}
		}
		last = pos

		end := pos + maxChars
		if end >= len(text) {
			if rest := strings.TrimSpace(text[pos:]); rest != "" {
				out = append(out, rest)
			}
			break
		}
		end = runeStart(text, end)

		searchStart := runeStart(text, max(pos, end-maxChars/5))
		window := text[searchStart:end]

		var cut int
		if locs := sentenceEnd.FindAllStringIndex(window, -1); len(locs) > 0 {
			cut = searchStart + locs[len(locs)-1][1]
		} else if sp := strings.LastIndexByte(window, ' '); sp > 0 {
			cut = searchStart + sp
		} else {
			cut = end
		}

		if piece := strings.TrimSpace(text[pos:cut]); piece != "" {
			out = append(out, piece)
		}
		pos = runeStart(text, cut-step)
	}

	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// runeStart moves i back to the start of the UTF-8 sequence containing it
func runeStart(text string, i int) int {
	if i >= len(text) {
		return len(text)
	}
	if i < 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
