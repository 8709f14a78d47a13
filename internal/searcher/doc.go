// Package searcher implements hybrid legal search combining semantic
// similarity, BM25 keyword matching and exact citation detection.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(vectorIndex, keywordIndex, enhancer.New(nil, logger),
//	    searcher.Config{Logger: logger})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:   "What is § 940.01?",
//	    Filters: types.Filters{"jurisdiction": "WI"},
//	    TopK:    10,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.3f %s %s\n", r.Score, r.Chunk.StatuteNumber, r.Chunk.HierarchyPath)
//	}
//
// # Fusion
//
// The query is expanded into at most three enhanced variants. For the
// original query and every variant, the vector index and the keyword index
// are queried concurrently for 20 candidates each. Variant hits are scaled
// by Weights.VariantWeight, and each chunk keeps its best score per signal.
//
//   - Semantic: a cosine distance d becomes the similarity 1/(1+d)
//   - Keyword: BM25 scores are divided by the best keyword score of the query
//   - Combined: semantic*0.65 + keyword*0.35
//   - Exact match: +0.2 when the chunk's statute number or case citation
//     contains (or is contained in) one written in the query
//
// Boost then applies jurisdiction, currency and department adjustments.
// Results are sorted by score with ties kept in merge order.
//
// # Caching
//
// Responses of requests with UseCache are kept in an LRU cache keyed by
// the SHA-256 of query, filters, top_k and the enhancement flag. Call
// InvalidateCache after the index changes.
package searcher
