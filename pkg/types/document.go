package types

import "strings"

// DocType represents the legal category of a source document
type DocType string

const (
	DocStatute  DocType = "statute"
	DocCaseLaw  DocType = "case_law"
	DocPolicy   DocType = "policy"
	DocTraining DocType = "training"
	DocUnknown  DocType = "unknown"
)

// DiversityOrder is the fixed priority order used when enforcing document-type diversity
var DiversityOrder = []DocType{DocStatute, DocCaseLaw, DocPolicy, DocTraining}

// ParseDocType maps a free-form string onto a known DocType.
// Anything unrecognized becomes DocUnknown.
func ParseDocType(s string) DocType {
	switch DocType(strings.ToLower(strings.TrimSpace(s))) {
	case DocStatute:
		return DocStatute
	case DocCaseLaw:
		return DocCaseLaw
	case DocPolicy:
		return DocPolicy
	case DocTraining:
		return DocTraining
	default:
		return DocUnknown
	}
}

// DocumentMetadata holds the metadata extracted at ingestion time
type DocumentMetadata struct {
	Title          string   `json:"title,omitempty"`
	Jurisdiction   string   `json:"jurisdiction,omitempty"`
	DocType        DocType  `json:"document_type,omitempty"`
	StatuteNumbers []string `json:"statute_numbers,omitempty"`
	Dates          []string `json:"dates,omitempty"`
	Department     string   `json:"department,omitempty"`
	IsCurrent      *bool    `json:"is_current,omitempty"`
	SourceURI      string   `json:"source_uri,omitempty"`
}

// Document is a normalized source document ready for chunking.
// ID is usually the original source path and feeds chunk id derivation.
type Document struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata"`
}

// Validate checks that the document can be chunked
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrMissingDocumentID
	}
	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyContent
	}
	return nil
}

// SourceURI returns the metadata source URI, falling back to the document ID
func (d *Document) SourceURI() string {
	if d.Metadata.SourceURI != "" {
		return d.Metadata.SourceURI
	}
	return d.ID
}
