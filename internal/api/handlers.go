package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/internal/service"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// Error codes returned in the error envelope
const (
	codeInvalidRequest     = "INVALID_REQUEST"
	codeEmptyQuery         = "EMPTY_QUERY"
	codeInvalidFilter      = "INVALID_FILTER"
	codeNoDocuments        = "NO_DOCUMENTS"
	codeIndexingInProgress = "INDEXING_IN_PROGRESS"
	codeHistoryDisabled    = "HISTORY_DISABLED"
	codeTimeout            = "TIMEOUT"
	codeInternal           = "INTERNAL_ERROR"
)

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters"`
	TopK    int               `json:"top_k"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// handleChat handles POST /api/chat
func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		abortWithError(c, http.StatusBadRequest, codeEmptyQuery, "message cannot be empty")
		return
	}

	resp, err := s.backend.Chat(c.Request.Context(), pipeline.ChatRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if errors.Is(err, types.ErrEmptyQuery) {
			abortWithError(c, http.StatusBadRequest, codeEmptyQuery, "message cannot be empty")
			return
		}
		s.internalError(c, "chat", "Error processing query", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleSearch handles POST /api/search
func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		abortWithError(c, http.StatusBadRequest, codeEmptyQuery, "query cannot be empty")
		return
	}
	if req.TopK < 0 || req.TopK > searcher.MaxTopK {
		abortWithError(c, http.StatusBadRequest, codeInvalidRequest, "top_k must be between 1 and 100")
		return
	}

	found, err := s.backend.Search(c.Request.Context(), service.SearchParams{
		Query:   req.Query,
		Filters: types.Filters(req.Filters),
		TopK:    req.TopK,
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidFilter):
			abortWithError(c, http.StatusBadRequest, codeInvalidFilter, err.Error())
		case errors.Is(err, types.ErrEmptyQuery):
			abortWithError(c, http.StatusBadRequest, codeEmptyQuery, "query cannot be empty")
		default:
			s.internalError(c, "search", "Error searching documents", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":           req.Query,
		"results":         service.Hits(found.Results),
		"total_results":   len(found.Results),
		"variants":        nonNil(found.Variants),
		"statute_numbers": nonNil(found.StatuteNumbers),
		"case_citations":  nonNil(found.CaseCitations),
		"exact_match":     found.ExactMatchTop3,
		"cache_hit":       found.CacheHit,
		"duration_ms":     found.Duration.Milliseconds(),
	})
}

// handleIngest handles POST /api/ingest. The body is a JSON array or JSON
// Lines stream of documents.
func (s *Server) handleIngest(c *gin.Context) {
	docs, err := indexer.LoadDocuments(c.Request.Body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if len(docs) == 0 {
		abortWithError(c, http.StatusBadRequest, codeNoDocuments, "request body contains no documents")
		return
	}

	stats, err := s.backend.Ingest(c.Request.Context(), docs)
	if err != nil {
		if errors.Is(err, indexer.ErrIndexingInProgress) {
			abortWithError(c, http.StatusConflict, codeIndexingInProgress, "indexing already in progress")
			return
		}
		s.internalError(c, "ingest", "Error indexing documents", err)
		return
	}

	status := http.StatusOK
	if stats.Status == indexer.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, stats)
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.backend.Status(c.Request.Context())
	if err != nil {
		s.internalError(c, "status", "Error reading status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleConversation handles GET /api/conversations/:id
func (s *Server) handleConversation(c *gin.Context) {
	id := c.Param("id")

	exchanges, err := s.backend.Conversation(id)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			abortWithError(c, http.StatusNotFound, codeHistoryDisabled, "conversation history is disabled")
			return
		}
		s.internalError(c, "conversation", "Error reading conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": id,
		"exchanges":       exchanges,
		"count":           len(exchanges),
	})
}

// internalError logs err and answers with a generic message
func (s *Server) internalError(c *gin.Context, op, message string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("Request timed out", zap.String("op", op), zap.Duration("timeout", s.opts.RequestTimeout))
		abortWithError(c, http.StatusGatewayTimeout, codeTimeout, "Request timed out")
		return
	}
	s.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	abortWithError(c, http.StatusInternalServerError, codeInternal, message)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
