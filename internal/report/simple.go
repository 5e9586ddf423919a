package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/romcoding/scraper/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting and per-page status indicators.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables the per-page listing in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with a line for every page.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	// Header
	w.writeHeader(&sb, report)

	// Outcome counts
	w.writeSummary(&sb, report)

	// Failed pages
	w.writeFailures(&sb, report)

	// Per-page listing (verbose only)
	w.writePages(&sb, report)

	// Warnings
	w.writeWarnings(&sb, report)

	// Footer
	w.writeFooter(&sb)

	// Write to output
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                            ARCHIVE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Site:      %s\n", report.BaseURL))
	if report.SitemapURL != "" {
		sb.WriteString(fmt.Sprintf("Sitemap:   %s\n", report.SitemapURL))
	}
	if report.Engine != "" {
		sb.WriteString(fmt.Sprintf("Engine:    %s\n", report.Engine))
	}
	if report.OutputDir != "" {
		sb.WriteString(fmt.Sprintf("Output:    %s\n", report.OutputDir))
	}
	sb.WriteString(fmt.Sprintf("Date:      %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", durationText(report)))

	switch {
	case report.Cancelled:
		sb.WriteString("Status:    CANCELLED (partial results)\n")
	case report.Failed > 0:
		sb.WriteString(fmt.Sprintf("Status:    COMPLETED WITH %d FAILED PAGE(S)\n", report.Failed))
	default:
		sb.WriteString("Status:    Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the outcome summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("OUTCOME SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  ARCHIVED: %d\n", report.Archived))
	sb.WriteString(fmt.Sprintf("  FAILED:   %d\n", report.Failed))
	sb.WriteString(fmt.Sprintf("  SKIPPED:  %d\n", report.Skipped))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("  TOTAL:    %d pages\n", report.Total))
	sb.WriteString(fmt.Sprintf("  SIZE:     %s on disk\n", formatBytes(totalBytes(report))))
	sb.WriteString("\n")
}

// writeFailures writes the failed pages section.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, report *model.RunReport) {
	failed := report.FailedPages()
	if len(failed) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILED PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(failed) == 0 {
		sb.WriteString("  No failed pages\n")
	} else {
		for i := range failed {
			sb.WriteString(fmt.Sprintf("  [!] %s\n", failed[i].URL))
			if failed[i].Error != "" {
				sb.WriteString(fmt.Sprintf("      %s\n", failed[i].Error))
			}
		}
	}
	sb.WriteString("\n")
}

// writePages writes one status line per resolved page.
// Only emitted in verbose mode; the listing is long for large sitemaps.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.RunReport) {
	if !w.verbose || len(report.Pages) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for i := range report.Pages {
		page := &report.Pages[i]
		indicator := w.getStatusIndicator(page.Status)

		switch page.Status {
		case model.StatusArchived:
			sb.WriteString(fmt.Sprintf("  [%s] %s -> %s (%s)\n",
				indicator, page.URL, page.Path, formatBytes(page.Size)))
			if page.InlineFailures > 0 {
				sb.WriteString(fmt.Sprintf("      %d resource(s) left as external references\n",
					page.InlineFailures))
			}
		case model.StatusFailed:
			sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n", indicator, page.URL, page.Error))
		case model.StatusSkipped:
			sb.WriteString(fmt.Sprintf("  [%s] %s (skipped)\n", indicator, page.URL))
		}
	}
	sb.WriteString("\n")
}

// writeWarnings writes the warnings section.
func (w *SimpleWriter) writeWarnings(sb *strings.Builder, report *model.RunReport) {
	if len(report.Warnings) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("WARNINGS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Warnings) == 0 {
		sb.WriteString("  No warnings\n")
	} else {
		for _, warning := range report.Warnings {
			sb.WriteString(fmt.Sprintf("  * %s\n", warning))
		}
	}
	sb.WriteString("\n")
}

// getStatusIndicator returns a visual indicator for the page status.
func (w *SimpleWriter) getStatusIndicator(status model.PageStatus) string {
	switch status {
	case model.StatusArchived:
		return "+"
	case model.StatusFailed:
		return "!"
	case model.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by scraper\n")
	sb.WriteString("https://github.com/romcoding/scraper\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// durationText renders the total run duration for display.
func durationText(report *model.RunReport) string {
	return (time.Duration(report.DurationMS) * time.Millisecond).String()
}

// totalBytes sums the on-disk size of every archived page.
func totalBytes(report *model.RunReport) int64 {
	var total int64
	for i := range report.Pages {
		total += report.Pages[i].Size
	}
	return total
}

// formatBytes renders a byte count in a human-friendly unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
