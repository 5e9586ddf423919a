package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// PageStatus describes the outcome of archiving a single page.
type PageStatus string

const (
	// StatusArchived means the page was rendered, inlined, and written to disk.
	StatusArchived PageStatus = "archived"

	// StatusFailed means the page could not be archived or written.
	// The Error field of the PageResult carries the reason.
	StatusFailed PageStatus = "failed"

	// StatusSkipped means the page was never attempted, typically because
	// the run was cancelled before the page was dispatched.
	StatusSkipped PageStatus = "skipped"
)

// PageResult is the per-URL outcome row of an archive run.
// Results are reported in original sitemap order, one row per resolved URL.
type PageResult struct {
	// URL is the absolute page URL as it appeared in the sitemap.
	URL string `json:"url"`

	// Path is the output-relative file path the page maps to.
	// Set even for failed pages so reruns can target the same location.
	Path string `json:"path"`

	// Status is the archive outcome for this page.
	Status PageStatus `json:"status"`

	// Error is the failure reason for failed or skipped pages.
	// Empty for archived pages.
	Error string `json:"error,omitempty"`

	// Checksum is the SHA-256 hash of the written HTML document.
	// Used for change detection between runs.
	Checksum string `json:"checksum,omitempty"`

	// Size is the number of bytes written to disk.
	Size int64 `json:"size,omitempty"`

	// InlineFailures counts sub-resources that could not be inlined.
	// Those resources keep an external reference in the archived HTML,
	// so a nonzero count means the page is not fully self-contained.
	InlineFailures int `json:"inline_failures,omitempty"`

	// DurationMS is the wall-clock time spent archiving this page.
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// Failed reports whether this page ended in a failure state.
// Skipped pages are not counted as failures; they were never attempted.
func (p *PageResult) Failed() bool {
	return p.Status == StatusFailed
}

// ArchivedPage is the product of a single engine archive operation:
// a page URL paired with its fully inlined HTML document.
// It is consumed immediately by the file writer and not retained.
type ArchivedPage struct {
	// URL is the page URL that was archived.
	URL string

	// HTML is the self-contained document text.
	HTML []byte

	// FetchedAt is when the page finished rendering.
	FetchedAt time.Time

	// InlineFailures counts sub-resources left as external references
	// because their fetch or encoding failed.
	InlineFailures int

	// Checksum is the SHA-256 hash of HTML, set by ComputeChecksum.
	Checksum string
}

// ComputeChecksum calculates and sets the SHA-256 hash of the archived HTML.
// Call after the HTML field is final.
func (p *ArchivedPage) ComputeChecksum() {
	if len(p.HTML) == 0 {
		p.Checksum = ""
		return
	}

	sum := sha256.Sum256(p.HTML)
	p.Checksum = hex.EncodeToString(sum[:])
}
