// Package archive turns live pages into self-contained HTML documents.
//
// An Engine produces per-worker Sessions; a Session archives one page at
// a time by capturing its markup and inlining external stylesheets and
// images, so the written file renders offline. The chrome engine captures
// the browser-rendered DOM; the static engine captures the served markup.
// Sub-resources that cannot be fetched degrade to their original external
// reference and are counted rather than failing the page.
package archive
