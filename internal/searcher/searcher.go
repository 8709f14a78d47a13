package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KRuddra/codefourrag/internal/enhancer"
	"github.com/KRuddra/codefourrag/internal/keyword"
	"github.com/KRuddra/codefourrag/internal/legalref"
	"github.com/KRuddra/codefourrag/internal/storage"
	"github.com/KRuddra/codefourrag/pkg/types"
)

const (
	// DefaultTopK is the number of results returned when a request sets none
	DefaultTopK = 10
	// MaxTopK caps the number of results per request
	MaxTopK = 100
	// CandidatesPerSignal is how many hits each signal contributes per variant
	CandidatesPerSignal = 20

	defaultCacheSize = 1000
	defaultCacheTTL  = time.Hour

	// exactMatchWindow is how many top results are checked for an exact match
	exactMatchWindow = 3
)

// Weights control hybrid score fusion
type Weights struct {
	Semantic        float64
	Keyword         float64
	ExactMatchBonus float64
	VariantWeight   float64 // weight of enhanced variants; the original query has 1.0
}

// DefaultWeights returns the standard fusion weights
func DefaultWeights() Weights {
	return Weights{
		Semantic:        0.65,
		Keyword:         0.35,
		ExactMatchBonus: 0.2,
		VariantWeight:   0.5,
	}
}

// Config configures a Searcher
type Config struct {
	Weights   Weights
	CacheSize int
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query              string
	Filters            types.Filters
	TopK               int
	DisableEnhancement bool
	UseCache           bool // Whether to use query cache
}

// SearchResponse contains ranked chunks and how they were found
type SearchResponse struct {
	Results         []types.ScoredChunk
	Variants        []string // enhanced phrasings searched besides the query
	StatuteNumbers  []string // exact statute references in the query
	CaseCitations   []string // exact case citations in the query
	ExactMatchTop3  bool
	SemanticResults int
	KeywordResults  int
	Duration        time.Duration
	CacheHit        bool
}

// QueryEnhancer produces alternate phrasings of a query
type QueryEnhancer interface {
	Enhance(query string) enhancer.Enhanced
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher fuses semantic, keyword and exact-match signals into one ranking
type Searcher struct {
	vector   storage.VectorIndex
	keyword  *keyword.Index
	enhancer QueryEnhancer
	weights  Weights
	cacheTTL time.Duration
	logger   *zap.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a Searcher. The keyword index is built from the
// vector index on first use if nothing has built it yet.
func NewSearcher(vector storage.VectorIndex, kw *keyword.Index, enh QueryEnhancer, cfg Config) *Searcher {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if kw == nil {
		kw = keyword.New(cfg.Logger)
	}

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		vector:   vector,
		keyword:  kw,
		enhancer: enh,
		weights:  cfg.Weights,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		cache:    cache,
	}
}

// Search runs hybrid retrieval for the request
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if s.vector == nil {
		return nil, fmt.Errorf("vector index not initialized")
	}

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	if err := s.keyword.EnsureBuilt(ctx, s.vector); err != nil {
		// keyword search stays empty; semantic results still flow
		s.logger.Warn("Keyword index unavailable", zap.Error(err))
	}

	response, err := s.hybridSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	response.Duration = time.Since(startTime)

	s.logger.Debug("Hybrid search complete",
		zap.String("query", req.Query),
		zap.Int("variants", len(response.Variants)),
		zap.Int("semantic", response.SemanticResults),
		zap.Int("keyword", response.KeywordResults),
		zap.Int("results", len(response.Results)),
		zap.Duration("duration", response.Duration))

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// signalResult holds one variant's hits from one signal
type signalResult struct {
	hits []types.ScoredChunk
	err  error
}

// candidate accumulates the per-signal scores of one chunk
type candidate struct {
	chunk    types.Chunk
	semantic float64
	keyword  float64
}

// hybridSearch enhances the query, gathers both signals for every variant
// concurrently, then fuses them
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	variants := []string{req.Query}
	if !req.DisableEnhancement && s.enhancer != nil {
		enhanced := s.enhancer.Enhance(req.Query)
		variants = enhanced.All()
	}

	statutes, cases := DetectExactPatterns(req.Query)

	semantic := make([]signalResult, len(variants))
	kw := make([]signalResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		g.Go(func() error {
			hits, err := s.vector.Query(gctx, variant, req.Filters, CandidatesPerSignal)
			semantic[i] = signalResult{hits: hits, err: err}
			return nil
		})
		g.Go(func() error {
			hits, err := s.keyword.Search(variant, CandidatesPerSignal)
			kw[i] = signalResult{hits: hits, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	semErr := firstError(semantic)
	kwErr := firstError(kw)
	if allFailed(semantic) && allFailed(kw) {
		return nil, fmt.Errorf("both searches failed: semantic=%w, keyword=%v", semErr, kwErr)
	}
	if semErr != nil {
		s.logger.Warn("Semantic search failed", zap.Error(semErr))
	}
	if kwErr != nil {
		s.logger.Warn("Keyword search failed", zap.Error(kwErr))
	}

	merged, order, semCount, kwCount := s.mergeSignals(semantic, kw, req.Filters)

	results := make([]types.ScoredChunk, 0, len(order))
	for _, id := range order {
		c := merged[id]
		combined := c.semantic*s.weights.Semantic + c.keyword*s.weights.Keyword
		combined += s.exactMatchBonus(&c.chunk, statutes, cases)

		score, reasons := Boost(&c.chunk, combined, req.Filters)
		if len(reasons) > 0 {
			s.logger.Debug("Score adjustments",
				zap.String("chunk_id", id),
				zap.Strings("reasons", reasons))
		}
		results = append(results, types.ScoredChunk{Chunk: c.chunk, Score: score})
	}

	sortByScore(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	return &SearchResponse{
		Results:         results,
		Variants:        variants[1:],
		StatuteNumbers:  statutes,
		CaseCitations:   cases,
		ExactMatchTop3:  exactMatchInTop(results, statutes, cases, exactMatchWindow),
		SemanticResults: semCount,
		KeywordResults:  kwCount,
	}, nil
}

// mergeSignals keeps the best variant-weighted score per chunk and signal.
// order is first-seen: semantic hits in variant and rank order, then
// keyword-only hits.
func (s *Searcher) mergeSignals(semantic, kw []signalResult, filters types.Filters) (map[string]*candidate, []string, int, int) {
	merged := make(map[string]*candidate)
	var order []string

	get := func(c types.Chunk) *candidate {
		if existing, ok := merged[c.ChunkID]; ok {
			return existing
		}
		cand := &candidate{chunk: c}
		merged[c.ChunkID] = cand
		order = append(order, c.ChunkID)
		return cand
	}

	semCount := 0
	for i, res := range semantic {
		weight := s.variantWeight(i)
		for _, hit := range res.hits {
			semCount++
			sim := 1.0 / (1.0 + hit.Score) * weight
			cand := get(hit.Chunk)
			cand.semantic = max(cand.semantic, sim)
		}
	}

	// keyword hits are raw BM25 scores until normalized below
	kwCount := 0
	maxKeyword := 0.0
	for i, res := range kw {
		weight := s.variantWeight(i)
		for _, hit := range res.hits {
			// the keyword index has no metadata filtering of its own
			if !filters.Matches(&hit.Chunk) {
				continue
			}
			kwCount++
			score := hit.Score * weight
			cand := get(hit.Chunk)
			cand.keyword = max(cand.keyword, score)
			maxKeyword = max(maxKeyword, cand.keyword)
		}
	}

	for _, cand := range merged {
		if maxKeyword > 0 {
			cand.keyword /= maxKeyword
		} else {
			cand.keyword = 0
		}
	}

	return merged, order, semCount, kwCount
}

func (s *Searcher) variantWeight(i int) float64 {
	if i == 0 {
		return 1.0
	}
	return s.weights.VariantWeight
}

// exactMatchBonus awards the bonus once for a statute match and once for
// a case citation match
func (s *Searcher) exactMatchBonus(c *types.Chunk, statutes, cases []string) float64 {
	bonus := 0.0
	if matchesAny(c.StatuteNumber, statutes, legalref.StatuteMatches) {
		bonus += s.weights.ExactMatchBonus
	}
	if matchesAny(c.CaseCitation, cases, legalref.CaseMatches) {
		bonus += s.weights.ExactMatchBonus
	}
	return bonus
}

// DetectExactPatterns returns the statute numbers and case citations
// literally present in query, deduplicated in order
func DetectExactPatterns(query string) (statutes, cases []string) {
	return legalref.FindStatuteNumbers(query), legalref.FindCaseCitations(query)
}

func exactMatchInTop(results []types.ScoredChunk, statutes, cases []string, n int) bool {
	for i := 0; i < len(results) && i < n; i++ {
		c := &results[i].Chunk
		if matchesAny(c.StatuteNumber, statutes, legalref.StatuteMatches) ||
			matchesAny(c.CaseCitation, cases, legalref.CaseMatches) {
			return true
		}
	}
	return false
}

func matchesAny(value string, patterns []string, match func(a, b string) bool) bool {
	if value == "" {
		return false
	}
	for _, p := range patterns {
		if match(p, value) {
			return true
		}
	}
	return false
}

func firstError(results []signalResult) error {
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func allFailed(results []signalResult) bool {
	for _, r := range results {
		if r.err == nil {
			return false
		}
	}
	return true
}

// sortByScore orders results by score descending; ties keep merge order
func sortByScore(results []types.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.ErrEmptyQuery
	}

	if err := req.Filters.Validate(); err != nil {
		return err
	}

	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}

	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}

	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) (*SearchResponse, bool) {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response, true
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = append([]types.ScoredChunk(nil), src.Results...)
	dst.Variants = append([]string(nil), src.Variants...)
	dst.StatuteNumbers = append([]string(nil), src.StatuteNumbers...)
	dst.CaseCitations = append([]string(nil), src.CaseCitations...)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.TopK))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%t", req.DisableEnhancement))

	// Add filters with stable serialization
	if len(req.Filters) > 0 {
		data.WriteString("|filters:")
		for _, k := range req.Filters.Keys() {
			data.WriteString(k)
			data.WriteString("=")
			data.WriteString(req.Filters[k])
			data.WriteString(";")
		}
	}

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. The indexer calls it after
// each rebuild.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// KeywordIndex returns the keyword index the searcher reads
func (s *Searcher) KeywordIndex() *keyword.Index {
	return s.keyword
}
