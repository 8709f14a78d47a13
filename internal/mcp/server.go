package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/history"
	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/internal/service"
	"github.com/KRuddra/codefourrag/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "codefour-rag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultRequestTimeout bounds one tool call when Options sets none
	DefaultRequestTimeout = 60 * time.Second
)

// Backend is the application core the tools call into
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
	Logger         *zap.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	backend Backend
	timeout time.Duration
	logger  *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(backend Backend, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		backend: backend,
		timeout: opts.RequestTimeout,
		logger:  opts.Logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio",
		zap.String("name", ServerName),
		zap.String("version", ServerVersion))
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(chatTool(), s.handleChat)
	s.mcp.AddTool(searchLegalTool(), s.handleSearchLegal)
	s.mcp.AddTool(indexDocumentsTool(), s.handleIndexDocuments)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(getConversationTool(), s.handleGetConversation)
}

// withTimeout bounds one tool call, generator included
func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
