// Package types provides shared type definitions for the codefour legal RAG core.
//
// This package defines the domain types exchanged between the chunker, the
// indices, the hybrid searcher, the context assembler and the chat pipeline.
//
// # Core Types
//
// Document is a normalized source document produced by ingestion:
//
//	doc := types.Document{
//	    ID:   "data/raw/statutes/940.01.txt",
//	    Text: normalizedText,
//	    Metadata: types.DocumentMetadata{
//	        Title:          "Wisconsin Statute 940.01",
//	        Jurisdiction:   "WI",
//	        DocType:        types.DocStatute,
//	        StatuteNumbers: []string{"940.01"},
//	    },
//	}
//
// Chunk is a citable span of a document. Chunk IDs are derived from the
// document ID and the ordinal position of the chunk:
//
//	id := types.ChunkID(doc.ID, 0) // "1f3870be_chunk_0"
//
// # Context Packets
//
// ContextPacket is the ordered set of sources given to the answer generator.
// Each source receives a packet-local ID of the form src_<counter>_<chunk-id-prefix>:
//
//	packet := types.NewContextPacket()
//	id := packet.Add(chunk, 0.82, types.SourcePrimary) // "src_000_1f3870be_chunk_0"
//	prompt := packet.Text()                            // "[Source src_000_...]\n<text>"
//
// TotalTokens always equals the sum of the per-source token estimates.
//
// # Filters
//
// Filters are exact-match metadata constraints ANDed together. Only the keys
// in FilterKeys are accepted:
//
//	f := types.Filters{"doc_type": "statute", "jurisdiction": "WI"}
//	if err := f.Validate(); err != nil {
//	    return err
//	}
package types
