package types

import (
	"fmt"
	"sort"
)

// ScoredChunk pairs a chunk with a relevance score (higher is more relevant,
// except where a producer documents the score as a distance)
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Validate checks if the scored chunk is usable
func (sc *ScoredChunk) Validate() error {
	if sc.Chunk.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if sc.Score < 0 {
		return ErrInvalidRelevanceScore
	}
	return nil
}

// FilterKeys lists the metadata keys a vector index can filter on
var FilterKeys = []string{
	"doc_type",
	"jurisdiction",
	"statute_number",
	"case_citation",
	"department",
	"doc_id",
	"title",
	"date",
}

// Filters is an exact-match key/value map; all entries must match (AND)
type Filters map[string]string

// Validate rejects keys outside FilterKeys
func (f Filters) Validate() error {
	for k := range f {
		if !isFilterKey(k) {
			return fmt.Errorf("%w: %q", ErrInvalidFilter, k)
		}
	}
	return nil
}

// Keys returns the filter keys in sorted order
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether the chunk satisfies every filter
func (f Filters) Matches(c *Chunk) bool {
	for k, v := range f {
		if FilterValue(c, k) != v {
			return false
		}
	}
	return true
}

// FilterValue returns the chunk field addressed by a filter key
func FilterValue(c *Chunk, key string) string {
	switch key {
	case "doc_type":
		return string(c.DocType)
	case "jurisdiction":
		return c.Jurisdiction
	case "statute_number":
		return c.StatuteNumber
	case "case_citation":
		return c.CaseCitation
	case "department":
		return c.Department
	case "doc_id":
		return c.DocID
	case "title":
		return c.Title
	case "date":
		return c.Date
	default:
		return ""
	}
}

func isFilterKey(k string) bool {
	for _, known := range FilterKeys {
		if k == known {
			return true
		}
	}
	return false
}
