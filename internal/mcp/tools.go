package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/internal/service"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeDocumentsNotFound  = -32001 // Path does not hold readable documents
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeHistoryDisabled    = -32003 // Conversation history is not configured
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeInvalidFilter      = -32005 // Unsupported filter key
	ErrorCodeTimeout            = -32006 // Request exceeded its deadline
)

// maxReportedFailures caps the failures echoed back by index_documents
const maxReportedFailures = 5

// handleChat handles the chat tool invocation
func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	message := strings.TrimSpace(getStringDefault(args, "message", ""))
	if message == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "message parameter is required and cannot be empty", map[string]interface{}{
			"param":  "message",
			"reason": "missing or empty",
		})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.backend.Chat(ctx, pipeline.ChatRequest{
		Message:        message,
		ConversationID: getStringDefault(args, "conversation_id", ""),
	})
	if err != nil {
		return nil, s.internalError("chat", err)
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleSearchLegal handles the search_legal tool invocation
func (s *Server) handleSearchLegal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultTopK)
	if limit < 1 || limit > searcher.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidFilter, "invalid filters", map[string]interface{}{
			"param":   "filters",
			"reason":  err.Error(),
			"allowed": types.FilterKeys,
		})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	found, err := s.backend.Search(ctx, service.SearchParams{Query: query, Filters: filters, TopK: limit})
	if err != nil {
		if errors.Is(err, types.ErrInvalidFilter) {
			return nil, newMCPError(ErrorCodeInvalidFilter, "invalid filters", map[string]interface{}{
				"reason": err.Error(),
			})
		}
		return nil, s.internalError("search", err)
	}

	response := map[string]interface{}{
		"query":         query,
		"results":       service.Hits(found.Results),
		"total_results": len(found.Results),
		"duration_ms":   found.Duration.Milliseconds(),
		"cache_hit":     found.CacheHit,
	}
	if len(found.Variants) > 0 {
		response["variants"] = found.Variants
	}
	if len(found.StatuteNumbers) > 0 || len(found.CaseCitations) > 0 {
		response["exact_patterns"] = map[string]interface{}{
			"statute_numbers": found.StatuteNumbers,
			"case_citations":  found.CaseCitations,
			"top3_match":      found.ExactMatchTop3,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexDocuments handles the index_documents tool invocation
func (s *Server) handleIndexDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	docs, err := indexer.LoadDocumentsFile(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeDocumentsNotFound, "failed to read documents", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	if len(docs) == 0 {
		return nil, newMCPError(ErrorCodeDocumentsNotFound, "no documents found", map[string]interface{}{
			"path": path,
		})
	}

	stats, err := s.backend.Ingest(ctx, docs)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, s.internalError("index", err)
	}

	response := map[string]interface{}{
		"status":              stats.Status,
		"documents_processed": stats.DocumentsProcessed,
		"documents_failed":    stats.DocumentsFailed,
		"documents_skipped":   stats.DocumentsSkipped,
		"chunks_created":      stats.ChunksCreated,
		"total_chunks":        stats.TotalChunks,
		"duration_ms":         stats.Duration.Milliseconds(),
	}
	if len(stats.Failures) > 0 {
		if len(stats.Failures) > maxReportedFailures {
			response["failures"] = stats.Failures[:maxReportedFailures]
			response["failure_count"] = len(stats.Failures)
		} else {
			response["failures"] = stats.Failures
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.backend.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	indexed := status.Index != nil && status.Index.ChunksCount > 0
	response := map[string]interface{}{
		"indexed": indexed,
		"status":  status,
	}
	if !indexed {
		response["message"] = "No documents indexed. Use the index_documents tool to add documents."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetConversation handles the get_conversation tool invocation
func (s *Server) handleGetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	conversationID := strings.TrimSpace(getStringDefault(args, "conversation_id", ""))
	if conversationID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "conversation_id parameter is required", map[string]interface{}{
			"param":  "conversation_id",
			"reason": "missing or empty",
		})
	}

	exchanges, err := s.backend.Conversation(conversationID)
	if errors.Is(err, service.ErrHistoryDisabled) {
		return nil, newMCPError(ErrorCodeHistoryDisabled, "conversation history is disabled", nil)
	}
	if err != nil {
		return nil, s.internalError("conversation", err)
	}

	response := map[string]interface{}{
		"conversation_id": conversationID,
		"exchanges":       exchanges,
		"count":           len(exchanges),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// internalError logs err and hides its details from the client
func (s *Server) internalError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("Tool call timed out", zap.String("op", op), zap.Duration("timeout", s.timeout))
		return newMCPError(ErrorCodeTimeout, "request timed out", map[string]interface{}{
			"timeout_ms": s.timeout.Milliseconds(),
		})
	}
	s.logger.Error("Tool call failed", zap.String("op", op), zap.Error(err))
	return newMCPError(ErrorCodeInternalError, fmt.Sprintf("%s failed", op), nil)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// parseFilters reads the optional filters object. Values must be strings.
func parseFilters(args map[string]interface{}) (types.Filters, error) {
	raw, ok := args["filters"]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.New("filters must be an object")
	}

	filters := make(types.Filters, len(obj))
	for k, v := range obj {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("filter %q must be a string", k)
		}
		if strings.TrimSpace(str) == "" {
			continue
		}
		filters[k] = str
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	return filters, nil
}

// validatePath checks that path names a readable document file
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrIsDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory, expected a JSON or JSON Lines file")
)
