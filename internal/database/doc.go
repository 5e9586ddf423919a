// Package database provides SQLite-based storage for archive run history.
//
// This package implements the RunDB, which stores:
//   - Run records with outcome counts and the full report as JSON
//   - Per-page outcome rows for cross-run queries
//
// The relational page rows exist so that two runs of the same site can be
// compared by content checksum without deserializing whole reports.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
