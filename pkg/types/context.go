package types

import (
	"fmt"
	"strings"
)

// SourceType tags where a context source came from
type SourceType string

const (
	SourcePrimary  SourceType = "primary"
	SourceCrossref SourceType = "crossref"
)

// sourceIDPrefixLen is how much of the chunk ID is embedded in a source ID
const sourceIDPrefixLen = 20

// ContextSource is a chunk projected into a citation-addressable form
type ContextSource struct {
	SourceID      string     `json:"source_id"`
	ChunkID       string     `json:"chunk_id"`
	Text          string     `json:"text"`
	Title         string     `json:"title"`
	StatuteNumber string     `json:"statute_number,omitempty"`
	CaseCitation  string     `json:"case_citation,omitempty"`
	HierarchyPath string     `json:"hierarchy_path"`
	DocType       DocType    `json:"doc_type"`
	Jurisdiction  string     `json:"jurisdiction"`
	SourceURI     string     `json:"source_uri"`
	Score         float64    `json:"score"`
	SourceType    SourceType `json:"source_type"`
	Tokens        int        `json:"tokens"`
}

// ContextPacket is the ordered, bounded set of sources handed to the
// answer generator. Source IDs are assigned from a counter local to the
// packet, so two packets never share numbering state.
type ContextPacket struct {
	Sources     []ContextSource `json:"sources"`
	TotalTokens int             `json:"total_tokens"`

	counter int
}

// NewContextPacket creates an empty packet
func NewContextPacket() *ContextPacket {
	return &ContextPacket{Sources: []ContextSource{}}
}

// Add appends a chunk as a new source and returns its source ID
func (p *ContextPacket) Add(c Chunk, score float64, sourceType SourceType) string {
	sourceID := fmt.Sprintf("src_%03d_%s", p.counter, c.IDPrefix(sourceIDPrefixLen))
	p.counter++

	tokens := EstimateTokens(c.Text)
	p.Sources = append(p.Sources, ContextSource{
		SourceID:      sourceID,
		ChunkID:       c.ChunkID,
		Text:          c.Text,
		Title:         c.Title,
		StatuteNumber: c.StatuteNumber,
		CaseCitation:  c.CaseCitation,
		HierarchyPath: c.HierarchyPath,
		DocType:       c.DocType,
		Jurisdiction:  c.Jurisdiction,
		SourceURI:     c.SourceURI,
		Score:         score,
		SourceType:    sourceType,
		Tokens:        tokens,
	})
	p.TotalTokens += tokens

	return sourceID
}

// Text renders the packet as generator context. Each source is emitted as
// "[Source <id>]\n<text>" and sources are separated by a blank line.
func (p *ContextPacket) Text() string {
	parts := make([]string, 0, len(p.Sources))
	for _, src := range p.Sources {
		parts = append(parts, "[Source "+src.SourceID+"]\n"+src.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Source looks up a source by ID
func (p *ContextPacket) Source(sourceID string) (ContextSource, bool) {
	for _, src := range p.Sources {
		if src.SourceID == sourceID {
			return src, true
		}
	}
	return ContextSource{}, false
}

// Len returns the number of sources
func (p *ContextPacket) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Sources)
}

// DocTypes returns the distinct document types in source order
func (p *ContextPacket) DocTypes() []string {
	seen := make(map[DocType]bool)
	var out []string
	for _, src := range p.Sources {
		if seen[src.DocType] {
			continue
		}
		seen[src.DocType] = true
		out = append(out, string(src.DocType))
	}
	return out
}

// Summary describes the packet for logs
func (p *ContextPacket) Summary() string {
	if p.Len() == 0 {
		return "0 sources, 0 tokens"
	}
	return fmt.Sprintf("%d sources (%s), %d tokens", len(p.Sources), strings.Join(p.DocTypes(), ", "), p.TotalTokens)
}
