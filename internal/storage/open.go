package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/embedder"
)

// Options selects and locates a vector index backend
type Options struct {
	Backend string // sqlite (default) or postgres
	Path    string // SQLite database file or ":memory:"
	URL     string // Postgres connection URL
}

// Open creates the VectorIndex for the configured backend
func Open(ctx context.Context, opts Options, emb embedder.Embedder, logger *zap.Logger) (VectorIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch opts.Backend {
	case "", BackendSQLite:
		logger.Info("Opening SQLite vector index",
			zap.String("path", opts.Path),
			zap.String("build_mode", BuildMode))
		return NewSQLiteIndex(opts.Path, emb, logger)
	case BackendPostgres:
		logger.Info("Opening Postgres vector index")
		return NewPostgresIndex(ctx, opts.URL, emb, logger)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", opts.Backend)
	}
}
