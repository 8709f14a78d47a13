package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// chatTool returns the tool definition for chat
func chatTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chat",
		Description: "Answer a legal question for Wisconsin law enforcement from the indexed statutes, case law, policies and training material",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation to continue; a new id is issued when omitted",
				},
			},
			Required: []string{"message"},
		},
	}
}

// searchLegalTool returns the tool definition for search_legal
func searchLegalTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_legal",
		Description: "Hybrid semantic and keyword search over indexed legal sources without answer generation",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, statute number or case citation)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultTopK,
					"minimum":     1,
					"maximum":     searcher.MaxTopK,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Exact-match metadata filters; every entry must match",
					"properties": map[string]interface{}{
						"doc_type": map[string]interface{}{
							"type": "string",
							"enum": []string{
								string(types.DocStatute),
								string(types.DocCaseLaw),
								string(types.DocPolicy),
								string(types.DocTraining),
							},
						},
						"jurisdiction":   map[string]interface{}{"type": "string"},
						"statute_number": map[string]interface{}{"type": "string"},
						"case_citation":  map[string]interface{}{"type": "string"},
						"department":     map[string]interface{}{"type": "string"},
						"doc_id":         map[string]interface{}{"type": "string"},
						"title":          map[string]interface{}{"type": "string"},
						"date":           map[string]interface{}{"type": "string"},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexDocumentsTool returns the tool definition for index_documents
func indexDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_documents",
		Description: "Index normalized legal documents from a JSON or JSON Lines file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSON array or JSON Lines file of documents ({id, text, metadata})",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and the configured embedding and generation providers",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getConversationTool returns the tool definition for get_conversation
func getConversationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_conversation",
		Description: "List the recorded exchanges of a conversation, oldest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation id returned by chat",
				},
			},
			Required: []string{"conversation_id"},
		},
	}
}
