package types

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// CharsPerToken is the heuristic used for every token estimate (chars/4)
const CharsPerToken = 4

// Chunk is a citable, hierarchy-tagged span of a source document
type Chunk struct {
	// Identification
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	DocType DocType `json:"doc_type"`

	// Content
	Text        string   `json:"text"`
	TokenCount  int      `json:"token_count"`
	ContentHash [32]byte `json:"-"` // SHA-256 hash for change detection

	// Legal context
	HierarchyPath string `json:"hierarchy_path"`
	StatuteNumber string `json:"statute_number,omitempty"`
	CaseCitation  string `json:"case_citation,omitempty"`

	// Metadata
	Date         string `json:"date,omitempty"`
	Jurisdiction string `json:"jurisdiction"`
	Title        string `json:"title"`
	SourceURI    string `json:"source_uri"`
	Department   string `json:"department,omitempty"`
	IsCurrent    *bool  `json:"is_current,omitempty"`
}

// ChunkID derives the stable identifier of the index-th chunk of a document.
// The same document ID and ordinal always produce the same chunk ID.
func ChunkID(docID string, index int) string {
	sum := md5.Sum([]byte(docID))
	return hex.EncodeToString(sum[:])[:8] + "_chunk_" + strconv.Itoa(index)
}

// EstimateTokens estimates the token count of text using chars/4
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// ComputeTokenCount estimates and stores the number of tokens in the chunk
func (c *Chunk) ComputeTokenCount() int {
	c.TokenCount = EstimateTokens(c.Text)
	return c.TokenCount
}

// ComputeContentHash computes the SHA-256 hash of the chunk text
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Text))
}

// Validate performs validation of the chunk
func (c *Chunk) Validate() error {
	if c.ChunkID == "" {
		return ErrInvalidChunkID
	}

	if strings.TrimSpace(c.Text) == "" {
		return ErrEmptyContent
	}

	if c.DocID == "" {
		return ErrMissingDocumentID
	}

	if c.DocType == "" {
		return errors.New("document type is required")
	}

	return nil
}

// SearchableText is the text fed to the keyword index: body plus the
// metadata a reader is likely to search by.
func (c *Chunk) SearchableText() string {
	var b strings.Builder
	b.WriteString(c.Text)
	for _, s := range []string{c.Title, c.HierarchyPath, c.StatuteNumber, c.CaseCitation} {
		if s == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(s)
	}
	return b.String()
}

// IDPrefix returns at most the first n bytes of the chunk ID
func (c *Chunk) IDPrefix(n int) string {
	if len(c.ChunkID) <= n {
		return c.ChunkID
	}
	return c.ChunkID[:n]
}
