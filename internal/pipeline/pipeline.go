// Package pipeline answers chat messages end to end: hybrid search, context
// assembly, safety gating, answer generation and response formatting.
//
// A Pipeline holds no global state. The serving layer constructs one with
// its searcher, assembler, scorer and generator and shares it between
// requests; each call builds its own context packet.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KRuddra/codefourrag/internal/assembler"
	"github.com/KRuddra/codefourrag/internal/formatter"
	"github.com/KRuddra/codefourrag/internal/generator"
	"github.com/KRuddra/codefourrag/internal/history"
	"github.com/KRuddra/codefourrag/internal/safety"
	"github.com/KRuddra/codefourrag/internal/searcher"
	"github.com/KRuddra/codefourrag/pkg/types"
)

// NoResultsMessage is returned when retrieval finds nothing
const NoResultsMessage = "I apologize, but I could not find any relevant sources in the database to answer your question. " +
	"Please try rephrasing your query or ensure relevant documents are indexed."

// ErrPipeline wraps unexpected failures while answering a message
var ErrPipeline = errors.New("processing query")

// ChatRequest is one user message
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the answer returned to the user
type ChatResponse = types.ChatResponse

// Searcher runs hybrid retrieval
type Searcher interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error)
}

// Assembler builds a context packet from ranked chunks
type Assembler interface {
	Build(ctx context.Context, ranked []types.ScoredChunk, opts assembler.Options) *types.ContextPacket
}

// Recorder persists exchanges
type Recorder interface {
	Append(ex history.Exchange) (history.Exchange, error)
}

// Config tunes a Pipeline
type Config struct {
	TopK        int
	Context     assembler.Options
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *zap.Logger
}

// DefaultConfig returns the settings used for chat
func DefaultConfig() Config {
	return Config{
		TopK:        searcher.DefaultTopK,
		Context:     assembler.DefaultOptions(),
		Temperature: generator.DefaultTemperature,
		MaxTokens:   generator.DefaultMaxTokens,
	}
}

// Pipeline answers chat messages
type Pipeline struct {
	searcher  Searcher
	assembler Assembler
	scorer    *safety.Scorer
	generator generator.Generator
	recorder  Recorder
	cfg       Config
	logger    *zap.Logger
}

// New creates a Pipeline. recorder may be nil to disable history.
func New(s Searcher, a Assembler, g generator.Generator, recorder Recorder, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = searcher.DefaultTopK
	}
	if cfg.Context == (assembler.Options{}) {
		cfg.Context = assembler.DefaultOptions()
	}

	return &Pipeline{
		searcher:  s,
		assembler: a,
		scorer:    safety.NewScorer(cfg.Logger),
		generator: g,
		recorder:  recorder,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Chat answers one message. An empty message returns types.ErrEmptyQuery;
// every other failure is wrapped in ErrPipeline. The generator is never
// called when retrieval is empty or the use-of-force gate refuses.
func (p *Pipeline) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Message)
	if query == "" {
		return nil, types.ErrEmptyQuery
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	p.logger.Info("Processing chat query",
		zap.String("query", truncate(query, 100)),
		zap.String("conversation_id", conversationID))

	found, err := p.searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		TopK:     p.cfg.TopK,
		UseCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrPipeline, err)
	}

	if len(found.Results) == 0 {
		resp := &ChatResponse{
			Response:       NoResultsMessage,
			Sources:        []types.SourceDocument{},
			Confidence:     safety.NoSourcesConfidence,
			Flags:          []string{string(safety.FlagLowConfidence)},
			ConversationID: conversationID,
		}
		p.record(query, resp)
		return resp, nil
	}

	packet := p.assembler.Build(ctx, found.Results, p.cfg.Context)

	signals := safety.SignalsFrom(found.Results, packet, found.ExactMatchTop3)
	confidence := p.scorer.Confidence(signals, nil, packet)
	flags := p.scorer.Flags(query, packet, confidence, signals)

	if safety.HasFlag(flags, safety.FlagUseOfForceCaution) && !safety.AllowUseOfForce(query, packet) {
		p.logger.Info("Use-of-force answer refused",
			zap.String("conversation_id", conversationID),
			zap.String("context", packet.Summary()))

		resp := &ChatResponse{
			Response:       RefusalResponse(),
			Sources:        []types.SourceDocument{},
			Confidence:     safety.NoSourcesConfidence,
			Flags:          formatter.FlagStrings(flags),
			ConversationID: conversationID,
		}
		p.record(query, resp)
		return resp, nil
	}

	raw, err := p.generator.Generate(ctx, generator.Request{
		Prompt:       BuildUserPrompt(query, packet.Text()),
		SystemPrompt: SystemPrompt,
		Model:        p.cfg.Model,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generate: %w", ErrPipeline, err)
	}

	citations := formatter.ExtractCitations(raw)
	final := p.scorer.Confidence(signals, citations, packet)
	if final < safety.LowConfidenceThreshold && !safety.HasFlag(flags, safety.FlagLowConfidence) {
		flags = append(flags, safety.FlagLowConfidence)
	}

	resp := formatter.Format(raw, packet, final, flags, conversationID)
	p.record(query, resp)

	p.logger.Info("Chat response generated",
		zap.String("conversation_id", conversationID),
		zap.Float64("confidence", final),
		zap.Strings("flags", resp.Flags),
		zap.Int("sources", len(resp.Sources)),
		zap.Int("citations", len(citations)),
		zap.String("context", packet.Summary()),
		zap.Duration("duration", time.Since(start)))

	return resp, nil
}

// RefusalResponse is the full answer text for a refused use-of-force query
func RefusalResponse() string {
	return safety.RefusalMessage + "\n\n" + safety.Disclaimer + "\n\n" + safety.UseOfForceNotice
}

// record stores the exchange; history failures never fail the chat
func (p *Pipeline) record(query string, resp *ChatResponse) {
	if p.recorder == nil {
		return
	}

	sourceIDs := make([]string, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		sourceIDs = append(sourceIDs, src.Metadata.SourceID)
	}

	_, err := p.recorder.Append(history.Exchange{
		ConversationID: resp.ConversationID,
		Query:          query,
		Response:       resp.Response,
		Confidence:     resp.Confidence,
		Flags:          resp.Flags,
		SourceIDs:      sourceIDs,
	})
	if err != nil {
		p.logger.Warn("Failed to record exchange",
			zap.String("conversation_id", resp.ConversationID),
			zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
