//go:build sqlite_vec && !purego

package storage

// This file is compiled when building with CGO and the sqlite_vec tag.
// Vector distances are computed in SQL with vec_distance_cosine, which
// requires the sqlite-vec extension to be registered with the driver.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
