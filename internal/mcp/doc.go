// Package mcp implements the Model Context Protocol (MCP) server for the
// legal assistant.
//
// The MCP server exposes five tools to AI assistants:
//   - chat: Answer a legal question with cited sources
//   - search_legal: Hybrid search over indexed statutes, case law and policies
//   - index_documents: Ingest normalized documents from a JSON or JSON Lines file
//   - get_status: Index statistics and provider details
//   - get_conversation: Exchanges recorded for a conversation
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr so they never interleave with protocol messages.
//
// # Basic Usage
//
//	codefour serve
//
// # Tool: chat
//
//	Request:
//	{
//	  "name": "chat",
//	  "arguments": {
//	    "message": "What is the penalty for OWI in Wisconsin?",
//	    "conversation_id": "optional-existing-id"
//	  }
//	}
//
//	Response:
//	{
//	  "response": "Under Wis. Stat. § 346.63 ...",
//	  "sources": [{"text": "...", "metadata": {"source_id": "src_000_346_63", ...}, "score": 0.91}],
//	  "confidence": 0.85,
//	  "flags": [],
//	  "conversation_id": "3f0c..."
//	}
//
// Use-of-force questions without a supporting statute or policy source are
// refused; the response then carries the USE_OF_FORCE_CAUTION flag and no
// sources.
//
// # Tool: search_legal
//
//	Request:
//	{
//	  "name": "search_legal",
//	  "arguments": {
//	    "query": "§ 940.01",
//	    "limit": 5,
//	    "filters": {"doc_type": "statute", "jurisdiction": "WI"}
//	  }
//	}
//
// Filters are exact matches on doc_type, jurisdiction, statute_number,
// case_citation, department, doc_id, title and date.
//
// # Tool: index_documents
//
//	Request:
//	{
//	  "name": "index_documents",
//	  "arguments": {"path": "/data/normalized.jsonl"}
//	}
//
// Each document is {"id", "text", "metadata"}. Failed documents are listed
// in the response with the stage that rejected them.
//
// # Error Handling
//
// Errors are returned as MCPError values with JSON-RPC codes:
//
//	-32602  Invalid params (missing message, bad limit, relative path)
//	-32603  Internal error (details are logged, not returned)
//	-32001  Documents not found
//	-32002  Indexing already in progress
//	-32003  Conversation history disabled
//	-32004  Empty query
//	-32005  Unsupported filter key
//	-32006  Request timed out
//
// # Timeouts
//
// chat and search_legal run under the configured request timeout, which
// covers answer generation.
package mcp
