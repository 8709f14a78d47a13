// Package api serves the assistant over HTTP with gin.
//
// Routes:
//
//	GET  /health                         liveness
//	POST /api/chat                       answer a question
//	POST /api/search                     hybrid search without generation
//	POST /api/ingest                     index a JSON array or JSON Lines body of documents
//	GET  /api/status                     index and provider status
//	GET  /api/conversations/:id          recorded exchanges of a conversation
//
// Errors use one envelope: {"success": false, "error": {"code", "message"}}.
// Unexpected failures are logged and reported with a generic message.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/history"
	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/internal/service"
	"github.com/KRuddra/codefourrag/pkg/types"
)

const (
	// DefaultRequestTimeout bounds chat and search requests when Options sets none
	DefaultRequestTimeout = 60 * time.Second
	// DefaultMaxBodyBytes caps request bodies; ingestion bodies can be large
	DefaultMaxBodyBytes = 64 << 20

	shutdownTimeout = 10 * time.Second
)

// Backend is the application core the handlers call into
type Backend interface {
	Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error)
	Search(ctx context.Context, params service.SearchParams) (*searcher.SearchResponse, error)
	Ingest(ctx context.Context, docs []types.Document) (*indexer.Statistics, error)
	Status(ctx context.Context) (*service.Status, error)
	Conversation(conversationID string) ([]history.Exchange, error)
}

// Options tunes a Server
type Options struct {
	RequestTimeout time.Duration
	CORSOrigins    []string // "*" allows any origin; empty disables CORS headers
	MaxBodyBytes   int64
	Logger         *zap.Logger
}

// Server is the HTTP front end
type Server struct {
	router  *gin.Engine
	backend Backend
	opts    Options
	logger  *zap.Logger
}

// NewServer creates the router and registers every route
func NewServer(backend Backend, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		router:  gin.New(),
		backend: backend,
		opts:    opts,
		logger:  opts.Logger,
	}

	s.router.Use(
		recovery(s.logger),
		requestLogger(s.logger),
		cors(opts.CORSOrigins),
		limitBody(opts.MaxBodyBytes),
	)

	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.POST("/chat", timeout(opts.RequestTimeout), s.handleChat)
		api.POST("/search", timeout(opts.RequestTimeout), s.handleSearch)
		api.POST("/ingest", s.handleIngest)
		api.GET("/status", s.handleStatus)
		api.GET("/conversations/:id", s.handleConversation)
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
