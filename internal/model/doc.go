// Package model defines the core data structures used throughout scraper.
//
// This package contains the following main types:
//   - RunReport: The full result of an archive run, serialized to report.json
//   - PageResult: The per-URL outcome row inside a RunReport
//   - ArchivedPage: A rendered, fully inlined HTML document before writing
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (pipeline, report, database) need to use
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
