// Package storage implements the vector index the search engine queries.
//
// Two backends satisfy VectorIndex:
//   - SQLiteIndex: chunks and float32 embedding blobs in a local SQLite file.
//     The default purego build ranks by cosine distance in Go; the sqlite_vec
//     build computes vec_distance_cosine in SQL.
//   - PostgresIndex: chunks with a pgvector column, ranked with the <=>
//     cosine distance operator.
//
// # Database Schema (SQLite)
//
// Tables:
//   - schema_version: applied migrations, compared with semver
//   - chunks: chunk text plus the legal metadata columns used by filters
//   - embeddings: one vector per chunk with provider and model
//
// # Basic Usage
//
//	idx, err := storage.Open(ctx, storage.Options{Path: "codefour.db"}, emb, logger)
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	n, err := idx.Upsert(ctx, chunks)
//	results, err := idx.Query(ctx, "operating while intoxicated",
//	    types.Filters{"doc_type": "statute"}, 20)
//
// Query scores are cosine distances, so results[0] has the lowest score.
// Upsert only calls the embedder for chunks whose content hash or
// embedding model changed.
package storage
