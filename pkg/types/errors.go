package types

import "errors"

// Domain errors for type validation
var (
	// Document and chunk errors
	ErrMissingDocumentID = errors.New("document ID is required")
	ErrInvalidChunkID    = errors.New("invalid chunk ID")
	ErrEmptyContent      = errors.New("content cannot be empty")

	// Query errors
	ErrEmptyQuery            = errors.New("query cannot be empty")
	ErrInvalidFilter         = errors.New("unsupported filter key")
	ErrInvalidRelevanceScore = errors.New("relevance score must be non-negative")
)
