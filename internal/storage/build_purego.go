//go:build purego || !sqlite_vec

package storage

// This file is compiled when building without CGO or with the purego tag.
// Cosine distances are computed in Go over every candidate row, which is
// fine for a corpus of a few hundred thousand chunks.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
