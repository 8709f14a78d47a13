package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KRuddra/codefourrag/internal/history"
	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/internal/service"
	"github.com/KRuddra/codefourrag/internal/storage"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// mockBackend implements Backend for testing
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*pipeline.ChatResponse)
	return resp, args.Error(1)
}

func (m *mockBackend) Search(ctx context.Context, params service.SearchParams) (*searcher.SearchResponse, error) {
	args := m.Called(ctx, params)
	resp, _ := args.Get(0).(*searcher.SearchResponse)
	return resp, args.Error(1)
}

func (m *mockBackend) Ingest(ctx context.Context, docs []types.Document) (*indexer.Statistics, error) {
	args := m.Called(ctx, docs)
	stats, _ := args.Get(0).(*indexer.Statistics)
	return stats, args.Error(1)
}

func (m *mockBackend) Status(ctx context.Context) (*service.Status, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*service.Status)
	return status, args.Error(1)
}

func (m *mockBackend) Conversation(conversationID string) ([]history.Exchange, error) {
	args := m.Called(conversationID)
	exchanges, _ := args.Get(0).([]history.Exchange)
	return exchanges, args.Error(1)
}

func newTestServer(t *testing.T) (*Server, *mockBackend) {
	t.Helper()
	backend := &mockBackend{}
	t.Cleanup(func() { backend.AssertExpectations(t) })
	return NewServer(backend, Options{RequestTimeout: time.Second}), backend
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestNewServer(t *testing.T) {
	s := NewServer(&mockBackend{}, Options{})
	assert.NotNil(t, s.mcp)
	assert.Equal(t, DefaultRequestTimeout, s.timeout)
	assert.NotNil(t, s.logger)
}

func TestHandleChat(t *testing.T) {
	s, backend := newTestServer(t)

	backend.On("Chat", mock.Anything, pipeline.ChatRequest{Message: "What is OWI?", ConversationID: "conv-1"}).
		Return(&pipeline.ChatResponse{
			Response:       "Operating while intoxicated is prohibited by § 346.63.",
			Sources:        []types.SourceDocument{},
			Confidence:     0.8,
			Flags:          []string{},
			ConversationID: "conv-1",
		}, nil)

	result, err := s.handleChat(context.Background(), callRequest("chat", map[string]interface{}{
		"message":         "  What is OWI?  ",
		"conversation_id": "conv-1",
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, "conv-1", out["conversation_id"])
	assert.Equal(t, 0.8, out["confidence"])
}

func TestHandleChat_Errors(t *testing.T) {
	t.Run("invalid arguments", func(t *testing.T) {
		s, _ := newTestServer(t)
		req := mcp.CallToolRequest{}
		req.Params.Arguments = "not an object"
		_, err := s.handleChat(context.Background(), req)
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("empty message", func(t *testing.T) {
		s, _ := newTestServer(t)
		_, err := s.handleChat(context.Background(), callRequest("chat", map[string]interface{}{"message": "   "}))
		requireMCPError(t, err, ErrorCodeEmptyQuery)
	})

	t.Run("pipeline failure is hidden", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Chat", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: generate: upstream 500 secret-detail", pipeline.ErrPipeline))

		_, err := s.handleChat(context.Background(), callRequest("chat", map[string]interface{}{"message": "hi"}))
		mcpErr := requireMCPError(t, err, ErrorCodeInternalError)
		assert.NotContains(t, mcpErr.Message, "secret-detail")
		assert.Nil(t, mcpErr.Data)
	})

	t.Run("timeout", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Chat", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

		_, err := s.handleChat(context.Background(), callRequest("chat", map[string]interface{}{"message": "hi"}))
		requireMCPError(t, err, ErrorCodeTimeout)
	})
}

func TestHandleChat_AppliesTimeout(t *testing.T) {
	s, backend := newTestServer(t)

	backend.On("Chat", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(&pipeline.ChatResponse{ConversationID: "c"}, nil)

	_, err := s.handleChat(context.Background(), callRequest("chat", map[string]interface{}{"message": "hi"}))
	require.NoError(t, err)
}

func TestHandleSearchLegal(t *testing.T) {
	s, backend := newTestServer(t)

	backend.On("Search", mock.Anything, service.SearchParams{
		Query:   "§ 940.01",
		Filters: types.Filters{"doc_type": "statute"},
		TopK:    5,
	}).Return(&searcher.SearchResponse{
		Results: []types.ScoredChunk{{
			Chunk: types.Chunk{
				ChunkID: "statutes/940.txt::chunk_0", DocID: "statutes/940.txt", DocType: types.DocStatute,
				Text: "§ 940.01 First-degree intentional homicide.", StatuteNumber: "940.01",
			},
			Score: 1.05,
		}},
		StatuteNumbers: []string{"940.01"},
		ExactMatchTop3: true,
	}, nil)

	result, err := s.handleSearchLegal(context.Background(), callRequest("search_legal", map[string]interface{}{
		"query":   "§ 940.01",
		"limit":   float64(5),
		"filters": map[string]interface{}{"doc_type": "statute", "department": ""},
	}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, float64(1), out["total_results"])
	results := out["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "940.01", first["statute_number"])
	assert.Equal(t, float64(1), first["rank"])

	patterns := out["exact_patterns"].(map[string]interface{})
	assert.Equal(t, true, patterns["top3_match"])
}

func TestHandleSearchLegal_Validation(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"limit too small", map[string]interface{}{"query": "owi", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"limit too large", map[string]interface{}{"query": "owi", "limit": float64(101)}, ErrorCodeInvalidParams},
		{"unknown filter", map[string]interface{}{"query": "owi", "filters": map[string]interface{}{"color": "red"}}, ErrorCodeInvalidFilter},
		{"non-string filter", map[string]interface{}{"query": "owi", "filters": map[string]interface{}{"doc_type": 3}}, ErrorCodeInvalidFilter},
		{"filters not object", map[string]interface{}{"query": "owi", "filters": "statute"}, ErrorCodeInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			_, err := s.handleSearchLegal(context.Background(), callRequest("search_legal", tt.args))
			requireMCPError(t, err, tt.code)
		})
	}
}

func writeDocuments(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHandleIndexDocuments(t *testing.T) {
	s, backend := newTestServer(t)
	path := writeDocuments(t, `{"id":"policies/a.txt","text":"Vehicle pursuits require supervisor approval.","metadata":{"document_type":"policy"}}
{"id":"policies/b.txt","text":"","metadata":{"document_type":"policy"}}
`)

	backend.On("Ingest", mock.Anything, mock.MatchedBy(func(docs []types.Document) bool {
		return len(docs) == 2 && docs[0].Metadata.DocType == types.DocPolicy
	})).Return(&indexer.Statistics{
		Status:             indexer.StatusPartial,
		DocumentsProcessed: 1,
		DocumentsFailed:    1,
		ChunksCreated:      1,
		TotalChunks:        1,
		Failures: []indexer.DocumentFailure{
			{DocumentID: "policies/b.txt", Stage: indexer.StageValidate, Reason: "content cannot be empty"},
		},
	}, nil)

	result, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": path}))
	require.NoError(t, err)

	out := resultJSON(t, result)
	assert.Equal(t, "partial", out["status"])
	assert.Equal(t, float64(1), out["documents_processed"])
	failures := out["failures"].([]interface{})
	require.Len(t, failures, 1)
	assert.Equal(t, "validate", failures[0].(map[string]interface{})["stage"])
}

func TestHandleIndexDocuments_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		s, _ := newTestServer(t)
		_, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("relative path", func(t *testing.T) {
		s, _ := newTestServer(t)
		_, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": "docs.jsonl"}))
		mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
		assert.Equal(t, ErrPathNotAbsolute.Error(), mcpErr.Data.(map[string]interface{})["reason"])
	})

	t.Run("directory", func(t *testing.T) {
		s, _ := newTestServer(t)
		_, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": t.TempDir()}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("malformed file", func(t *testing.T) {
		s, _ := newTestServer(t)
		path := writeDocuments(t, "{not json}\n")
		_, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": path}))
		requireMCPError(t, err, ErrorCodeDocumentsNotFound)
	})

	t.Run("empty file", func(t *testing.T) {
		s, _ := newTestServer(t)
		path := writeDocuments(t, "\n\n")
		_, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": path}))
		requireMCPError(t, err, ErrorCodeDocumentsNotFound)
	})

	t.Run("indexing in progress", func(t *testing.T) {
		s, backend := newTestServer(t)
		path := writeDocuments(t, `[{"id":"a","text":"Evidence must be logged."}]`)
		backend.On("Ingest", mock.Anything, mock.Anything).Return(nil, indexer.ErrIndexingInProgress)

		_, err := s.handleIndexDocuments(context.Background(), callRequest("index_documents", map[string]interface{}{"path": path}))
		requireMCPError(t, err, ErrorCodeIndexingInProgress)
	})
}

func TestHandleGetStatus(t *testing.T) {
	t.Run("indexed", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Status", mock.Anything).Return(&service.Status{
			Index:         &storage.IndexStats{Backend: storage.BackendSQLite, ChunksCount: 42},
			KeywordBuilt:  true,
			KeywordChunks: 42,
			Embedding:     service.ProviderInfo{Provider: "local", Model: "hash-bow"},
			Generator:     service.ProviderInfo{Provider: "offline", Model: "extractive-v1"},
		}, nil)

		result, err := s.handleGetStatus(context.Background(), callRequest("get_status", nil))
		require.NoError(t, err)
		out := resultJSON(t, result)
		assert.Equal(t, true, out["indexed"])
		assert.NotContains(t, out, "message")
	})

	t.Run("empty index", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Status", mock.Anything).Return(&service.Status{Index: &storage.IndexStats{}}, nil)

		result, err := s.handleGetStatus(context.Background(), callRequest("get_status", nil))
		require.NoError(t, err)
		out := resultJSON(t, result)
		assert.Equal(t, false, out["indexed"])
		assert.Contains(t, out["message"], "index_documents")
	})

	t.Run("failure", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Status", mock.Anything).Return(nil, errors.New("database is locked"))

		_, err := s.handleGetStatus(context.Background(), callRequest("get_status", nil))
		requireMCPError(t, err, ErrorCodeInternalError)
	})
}

func TestHandleGetConversation(t *testing.T) {
	t.Run("lists exchanges", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Conversation", "conv-1").Return([]history.Exchange{
			{ID: "x1", ConversationID: "conv-1", Query: "What is OWI?", Response: "…", Confidence: 0.7},
		}, nil)

		result, err := s.handleGetConversation(context.Background(), callRequest("get_conversation", map[string]interface{}{"conversation_id": "conv-1"}))
		require.NoError(t, err)
		out := resultJSON(t, result)
		assert.Equal(t, float64(1), out["count"])
	})

	t.Run("missing id", func(t *testing.T) {
		s, _ := newTestServer(t)
		_, err := s.handleGetConversation(context.Background(), callRequest("get_conversation", map[string]interface{}{}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("history disabled", func(t *testing.T) {
		s, backend := newTestServer(t)
		backend.On("Conversation", "conv-1").Return(nil, service.ErrHistoryDisabled)

		_, err := s.handleGetConversation(context.Background(), callRequest("get_conversation", map[string]interface{}{"conversation_id": "conv-1"}))
		requireMCPError(t, err, ErrorCodeHistoryDisabled)
	})
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters(map[string]interface{}{})
	require.NoError(t, err)
	assert.Nil(t, filters)

	filters, err = parseFilters(map[string]interface{}{"filters": map[string]interface{}{
		"jurisdiction": "WI",
		"department":   "  ",
	}})
	require.NoError(t, err)
	assert.Equal(t, types.Filters{"jurisdiction": "WI"}, filters)
}

func TestToolDefinitions(t *testing.T) {
	tools := []mcp.Tool{chatTool(), searchLegalTool(), indexDocumentsTool(), getStatusTool(), getConversationTool()}
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"chat", "search_legal", "index_documents", "get_status", "get_conversation"}, names)
}
