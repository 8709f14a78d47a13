// Package service wires the retrieval, ingestion and chat components into
// one value shared by every entry point (CLI, MCP server, HTTP API).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/assembler"
	"github.com/KRuddra/codefourrag/internal/config"
	"github.com/KRuddra/codefourrag/internal/crossref"
	"github.com/KRuddra/codefourrag/internal/embedder"
	"github.com/KRuddra/codefourrag/internal/enhancer"
	"github.com/KRuddra/codefourrag/internal/formatter"
	"github.com/KRuddra/codefourrag/internal/generator"
	"github.com/KRuddra/codefourrag/internal/history"
	"github.com/KRuddra/codefourrag/internal/indexer"
	"github.com/KRuddra/codefourrag/internal/keyword"
	"github.com/KRuddra/codefourrag/internal/pipeline"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/internal/storage"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// ErrHistoryDisabled is returned by Conversation when no history store is configured
var ErrHistoryDisabled = errors.New("conversation history is disabled")

// Components are the injected dependencies of a Service. Index, Embedder
// and Generator are required; History and Dictionary may be nil.
type Components struct {
	Index      storage.VectorIndex
	Embedder   embedder.Embedder
	Generator  generator.Generator
	History    *history.Store
	Dictionary *enhancer.Dictionary
	Search     searcher.Config
	Pipeline   pipeline.Config
	Indexing   indexer.Config
	Logger     *zap.Logger
}

// Service is the application core
type Service struct {
	index     storage.VectorIndex
	keyword   *keyword.Index
	searcher  *searcher.Searcher
	indexer   *indexer.Indexer
	pipeline  *pipeline.Pipeline
	history   *history.Store
	embedder  embedder.Embedder
	generator generator.Generator
	indexCfg  indexer.Config
	logger    *zap.Logger
}

// SearchParams is a search request from an outer surface
type SearchParams struct {
	Query   string        `json:"query"`
	Filters types.Filters `json:"filters,omitempty"`
	TopK    int           `json:"top_k,omitempty"`
}

// ProviderInfo names a model provider
type ProviderInfo struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension,omitempty"`
}

// Status summarizes the state of the indices and providers
type Status struct {
	Index          *storage.IndexStats `json:"index"`
	KeywordBuilt   bool                `json:"keyword_built"`
	KeywordChunks  int                 `json:"keyword_chunks"`
	CachedQueries  int                 `json:"cached_queries"`
	Indexing       bool                `json:"indexing"`
	HistoryEnabled bool                `json:"history_enabled"`
	Embedding      ProviderInfo        `json:"embedding"`
	Generator      ProviderInfo        `json:"generator"`
}

// New assembles a Service from already constructed dependencies
func New(c Components) (*Service, error) {
	if c.Index == nil {
		return nil, errors.New("vector index is required")
	}
	if c.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if c.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	kw := keyword.New(c.Logger.Named("keyword"))

	searchCfg := c.Search
	searchCfg.Logger = c.Logger.Named("searcher")
	srch := searcher.NewSearcher(c.Index, kw, enhancer.New(c.Dictionary, c.Logger.Named("enhancer")), searchCfg)

	asm := assembler.New(crossref.NewResolver(c.Index, c.Logger.Named("crossref")), c.Logger.Named("assembler"))

	// a nil *history.Store must not become a non-nil Recorder
	var recorder pipeline.Recorder
	if c.History != nil {
		recorder = c.History
	}

	pipeCfg := c.Pipeline
	pipeCfg.Logger = c.Logger.Named("pipeline")

	return &Service{
		index:     c.Index,
		keyword:   kw,
		searcher:  srch,
		indexer:   indexer.New(c.Index, kw, srch, c.Logger.Named("indexer")),
		pipeline:  pipeline.New(srch, asm, c.Generator, recorder, pipeCfg),
		history:   c.History,
		embedder:  c.Embedder,
		generator: c.Generator,
		indexCfg:  c.Indexing,
		logger:    c.Logger,
	}, nil
}

// Open builds every dependency from configuration. The caller owns the
// returned Service and must Close it.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	emb, err := embedder.New(ctx, cfg.EmbeddingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	index, err := storage.Open(ctx, cfg.StorageOptions(), emb, logger.Named("storage"))
	if err != nil {
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	gen, err := generator.New(ctx, cfg.GeneratorConfig())
	if err != nil {
		_ = index.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	var store *history.Store
	if cfg.HistoryEnabled() {
		store, err = history.Open(cfg.HistoryPath)
		if err != nil {
			closeGenerator(gen)
			_ = index.Close()
			_ = emb.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
	}

	var dict *enhancer.Dictionary
	if strings.TrimSpace(cfg.DictionaryPath) != "" {
		dict, err = enhancer.LoadDictionary(cfg.DictionaryPath)
		if err != nil {
			logger.Warn("Dictionary not loaded, using built-in tables",
				zap.String("path", cfg.DictionaryPath),
				zap.Error(err))
		}
	}

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.Model = cfg.LLMModel
	pipeCfg.Temperature = cfg.LLMTemperature
	pipeCfg.MaxTokens = cfg.LLMMaxTokens
	pipeCfg.Context = assembler.Options{
		MaxChunks:        cfg.ContextMaxChunks,
		MaxTokens:        cfg.ContextMaxTokens,
		ExpandCrossrefs:  cfg.ContextMaxCrossref > 0,
		MaxCrossrefs:     cfg.ContextMaxCrossref,
		EnforceDiversity: true,
	}

	svc, err := New(Components{
		Index:      index,
		Embedder:   emb,
		Generator:  gen,
		History:    store,
		Dictionary: dict,
		Search: searcher.Config{
			Weights: searcher.Weights{
				Semantic:        cfg.SemanticWeight,
				Keyword:         cfg.KeywordWeight,
				ExactMatchBonus: cfg.ExactMatchBonus,
				VariantWeight:   cfg.VariantWeight,
			},
			CacheSize: cfg.SearchCacheSize,
		},
		Pipeline: pipeCfg,
		Indexing: indexer.Config{
			Workers:   cfg.IndexWorkers,
			BatchSize: cfg.IndexBatchSize,
			MaxDocs:   cfg.MaxDocs,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Service ready",
		zap.String("backend", cfg.VectorBackend),
		zap.String("embedding_provider", emb.Provider()),
		zap.String("embedding_model", emb.Model()),
		zap.String("generator_provider", gen.Provider()),
		zap.String("generator_model", gen.Model()),
		zap.Bool("history", store != nil))

	return svc, nil
}

// Chat answers one message
func (s *Service) Chat(ctx context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
	return s.pipeline.Chat(ctx, req)
}

// Search runs hybrid retrieval with caching enabled
func (s *Service) Search(ctx context.Context, params SearchParams) (*searcher.SearchResponse, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, types.ErrEmptyQuery
	}
	return s.searcher.Search(ctx, searcher.SearchRequest{
		Query:    params.Query,
		Filters:  params.Filters,
		TopK:     params.TopK,
		UseCache: true,
	})
}

// Ingest indexes documents with the configured ingestion settings
func (s *Service) Ingest(ctx context.Context, docs []types.Document) (*indexer.Statistics, error) {
	cfg := s.indexCfg
	return s.indexer.Index(ctx, docs, &cfg)
}

// Status reports index statistics and provider details
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get index stats: %w", err)
	}

	return &Status{
		Index:          stats,
		KeywordBuilt:   s.keyword.Built(),
		KeywordChunks:  s.keyword.Size(),
		CachedQueries:  s.searcher.CacheLen(),
		Indexing:       s.indexer.Running(),
		HistoryEnabled: s.history != nil,
		Embedding: ProviderInfo{
			Provider:  s.embedder.Provider(),
			Model:     s.embedder.Model(),
			Dimension: s.embedder.Dimension(),
		},
		Generator: ProviderInfo{
			Provider: s.generator.Provider(),
			Model:    s.generator.Model(),
		},
	}, nil
}

// Conversation returns the recorded exchanges of a conversation, oldest first
func (s *Service) Conversation(conversationID string) ([]history.Exchange, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(conversationID)
}

// WarmUp builds the keyword index from the vector index so the first
// query does not pay for it
func (s *Service) WarmUp(ctx context.Context) error {
	start := time.Now()
	if err := s.keyword.EnsureBuilt(ctx, s.index); err != nil {
		return err
	}
	s.logger.Info("Keyword index warmed up",
		zap.Int("chunks", s.keyword.Size()),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Close releases the history store, generator, vector index and embedder
func (s *Service) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if c, ok := s.generator.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.index.Close(), s.embedder.Close())
	return errors.Join(errs...)
}

func closeGenerator(gen generator.Generator) {
	if c, ok := gen.(io.Closer); ok {
		_ = c.Close()
	}
}

// SearchHit is one search result shaped for the outer surfaces
type SearchHit struct {
	Rank          int           `json:"rank"`
	Score         float64       `json:"score"`
	ChunkID       string        `json:"chunk_id"`
	DocID         string        `json:"doc_id"`
	DocType       types.DocType `json:"doc_type"`
	Title         string        `json:"title"`
	StatuteNumber string        `json:"statute_number,omitempty"`
	CaseCitation  string        `json:"case_citation,omitempty"`
	HierarchyPath string        `json:"hierarchy_path,omitempty"`
	Jurisdiction  string        `json:"jurisdiction,omitempty"`
	Department    string        `json:"department,omitempty"`
	SourceURI     string        `json:"source_uri,omitempty"`
	Excerpt       string        `json:"excerpt"`
}

// Hits converts ranked chunks into SearchHits with truncated excerpts
func Hits(results []types.ScoredChunk) []SearchHit {
	out := make([]SearchHit, 0, len(results))
	for i, r := range results {
		c := r.Chunk
		out = append(out, SearchHit{
			Rank:          i + 1,
			Score:         r.Score,
			ChunkID:       c.ChunkID,
			DocID:         c.DocID,
			DocType:       c.DocType,
			Title:         c.Title,
			StatuteNumber: c.StatuteNumber,
			CaseCitation:  c.CaseCitation,
			HierarchyPath: c.HierarchyPath,
			Jurisdiction:  c.Jurisdiction,
			Department:    c.Department,
			SourceURI:     c.SourceURI,
			Excerpt:       formatter.Excerpt(c.Text),
		})
	}
	return out
}
