package model

import (
	"time"
)

// RunReport is the main result structure of an archive run.
// It accumulates state as the pipeline advances (sitemap location, URL
// resolution, path planning, page archiving) and is serialized as
// report.json at the end of the run.
//
// Design decision: one flat struct rather than a struct per pipeline stage
// because the report is written and stored whole; intermediate fields that
// only drive later stages are excluded from JSON.
type RunReport struct {
	// === Run identity ===

	// BaseURL is the validated site origin the run was started with.
	BaseURL string `json:"base_url"`

	// SitemapURL is the sitemap the locator settled on.
	SitemapURL string `json:"sitemap_url,omitempty"`

	// Engine names the archive engine used (chrome, static).
	Engine string `json:"engine,omitempty"`

	// OutputDir is the root directory pages were written under.
	OutputDir string `json:"output_dir,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// DurationMS is the total wall-clock run time.
	DurationMS int64 `json:"duration_ms"`

	// === Outcome counts ===
	// Derived from Pages by Finalize.

	// Total is the number of resolved page URLs.
	Total int `json:"total"`

	// Archived is the number of pages written successfully.
	Archived int `json:"archived"`

	// Failed is the number of pages that could not be archived.
	Failed int `json:"failed"`

	// Skipped is the number of pages never attempted (cancelled runs).
	Skipped int `json:"skipped,omitempty"`

	// Cancelled is true when the run was interrupted before completion.
	Cancelled bool `json:"cancelled,omitempty"`

	// === Per-page outcomes ===

	// Pages holds one result per resolved URL, in original sitemap order.
	Pages []PageResult `json:"pages"`

	// Warnings collects non-fatal problems, such as child sitemaps that
	// could not be fetched during sitemap-index resolution.
	Warnings []string `json:"warnings,omitempty"`

	// === Working state (not serialized) ===

	// URLs is the resolved page URL sequence in sitemap order.
	URLs []string `json:"-"`

	// Paths holds the mapped output-relative path for each URL,
	// aligned by index with URLs.
	Paths []string `json:"-"`
}

// NewRunReport creates a report for the given base URL with the clock started.
func NewRunReport(baseURL string) *RunReport {
	return &RunReport{
		BaseURL:   baseURL,
		StartedAt: time.Now(),
	}
}

// AddWarning records a non-fatal problem encountered during the run.
func (r *RunReport) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Finalize computes the outcome counts and total duration.
// Call once after the last page result is in place.
func (r *RunReport) Finalize() {
	r.DurationMS = time.Since(r.StartedAt).Milliseconds()
	r.Total = len(r.Pages)
	r.Archived = 0
	r.Failed = 0
	r.Skipped = 0

	for i := range r.Pages {
		switch r.Pages[i].Status {
		case StatusArchived:
			r.Archived++
		case StatusFailed:
			r.Failed++
		case StatusSkipped:
			r.Skipped++
		}
	}
}

// AllArchived reports whether every resolved page was archived.
// Used to decide the process exit code.
func (r *RunReport) AllArchived() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// FailedPages returns the results that ended in failure, in sitemap order.
func (r *RunReport) FailedPages() []PageResult {
	var failed []PageResult
	for i := range r.Pages {
		if r.Pages[i].Failed() {
			failed = append(failed, r.Pages[i])
		}
	}
	return failed
}
