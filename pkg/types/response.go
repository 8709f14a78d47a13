package types

// SourceMetadata describes a cited source in a chat response
type SourceMetadata struct {
	SourceID      string  `json:"source_id"`
	ChunkID       string  `json:"chunk_id"`
	Title         string  `json:"title"`
	StatuteNumber string  `json:"statute_number,omitempty"`
	CaseCitation  string  `json:"case_citation,omitempty"`
	HierarchyPath string  `json:"hierarchy_path"`
	DocType       DocType `json:"doc_type"`
	Jurisdiction  string  `json:"jurisdiction"`
	SourceURI     string  `json:"source_uri"`
	Score         float64 `json:"score"`
}

// SourceDocument is a source excerpt returned with an answer
type SourceDocument struct {
	Text     string         `json:"text"`
	Metadata SourceMetadata `json:"metadata"`
	Score    float64        `json:"score"`
}

// ChatResponse is the answer to one chat message
type ChatResponse struct {
	Response       string           `json:"response"`
	Sources        []SourceDocument `json:"sources"`
	Confidence     float64          `json:"confidence"`
	Flags          []string         `json:"flags"`
	ConversationID string           `json:"conversation_id"`
}

// Metadata projects a context source onto response metadata
func (s ContextSource) Metadata() SourceMetadata {
	return SourceMetadata{
		SourceID:      s.SourceID,
		ChunkID:       s.ChunkID,
		Title:         s.Title,
		StatuteNumber: s.StatuteNumber,
		CaseCitation:  s.CaseCitation,
		HierarchyPath: s.HierarchyPath,
		DocType:       s.DocType,
		Jurisdiction:  s.Jurisdiction,
		SourceURI:     s.SourceURI,
		Score:         s.Score,
	}
}
