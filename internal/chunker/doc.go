// Package chunker divides normalized legal documents into citable chunks.
//
// The chunker splits at the natural boundaries of each document type so a
// chunk carries one coherent legal unit together with its hierarchy path.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks, err := c.Chunk(doc)
//	if err != nil {
//	    return err
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("%s: %s (%d tokens)\n", chunk.ChunkID, chunk.HierarchyPath, chunk.TokenCount)
//	}
//
// # Chunking Strategy
//
// Boundaries are detected with small named rule tables (see rules.go):
//   - Statutes: "§ 940.01", "Section 940.01"; numbered subsections "(1) Whoever"
//     only when no section marker exists. Fragments under 500 characters are
//     merged forward and sections over 1.5x the target size are re-split.
//   - Case law: heading lines such as FACTS, HOLDING, ANALYSIS. The case
//     citation ("State v. Smith") is attached to the first chunk only.
//   - Policy and training: numbered headings ("2.1.3") or ALL-CAPS headings
//     of at least three words.
//   - Anything else: size-based windows.
//
// # Chunk Sizing
//
// The target is 1200 tokens (4800 characters at chars/4). Size splits prefer
// a sentence end in the last fifth of the window, then a space, and start
// the next window 100 characters before the cut so context carries over.
// Chunks shorter than 10 characters are dropped.
//
// # Chunk IDs
//
// IDs are derived from the document ID and the chunk ordinal:
//
//	types.ChunkID(doc.ID, 0) // "<md5(doc.ID)[:8]>_chunk_0"
//
// Re-chunking the same document yields the same IDs.
package chunker
