// Package indexer ingests normalized legal documents into the search indices.
//
// # Basic Usage
//
//	docs, err := indexer.LoadDocumentsFile("data/normalized.jsonl")
//	if err != nil {
//	    return err
//	}
//
//	idx := indexer.New(vectorIndex, keywordIndex, searcher, logger)
//	stats, err := idx.Index(ctx, docs, &indexer.Config{Workers: 4})
//
//	fmt.Printf("Indexed %d documents (%d chunks) in %v\n",
//	    stats.DocumentsProcessed, stats.ChunksCreated, stats.Duration)
//
// # Indexing Pipeline
//
//  1. Validate: documents without an id or text are rejected
//  2. Chunk: documents are split by type (parallel, bounded by Workers)
//  3. Replace: existing chunks of each document are deleted when the
//     vector index supports it
//  4. Upsert: chunks are embedded and stored per batch of BatchSize documents
//  5. Rebuild: the BM25 index is rebuilt from every stored chunk and the
//     search cache is invalidated
//
// # Error Handling
//
// A failing document never aborts the run. Each one is reported in
// Statistics.Failures with the stage that rejected it, and Statistics.Status
// reports the run outcome. Index itself fails on cancellation, on a failed
// keyword rebuild and with ErrIndexingInProgress when another run holds the lock.
//
// # Concurrency
//
// One Indexer allows a single run at a time. The lock is non-blocking so a
// second caller fails fast instead of queueing.
package indexer
