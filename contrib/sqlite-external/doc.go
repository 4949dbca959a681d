// Package sqliteexternal provides optional external SQLite drivers.
//
// This package is part of the main github.com/csvgate/csvgate module
// and provides CGO-based SQLite drivers for performance-critical deployments.
//
// # CGO SQLite Driver
//
// To use the CGO driver (github.com/mattn/go-sqlite3):
//
//	import _ "github.com/csvgate/csvgate/contrib/sqlite-external"
//
// Build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite
//
// # Default Pure Go Driver
//
// By default, csvgate uses a pure Go SQLite implementation that requires
// no CGO. See github.com/csvgate/csvgate/core/sqlite for details.
//
// # When to Use
//
// Use this package when:
//   - Staging very large datasets and load time dominates
//   - You already have CGO in your build pipeline
//
// Use the default pure Go driver when:
//   - Portability is important
//   - Cross-compilation is required
//   - You want simpler deployment (single binary)
package sqliteexternal
