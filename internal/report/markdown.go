package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/romcoding/scraper/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	// Header
	w.writeHeader(md, report)

	// Outcome summary
	w.writeSummary(md, report)

	// Failed pages
	w.writeFailures(md, report)

	// Warnings
	w.writeWarnings(md, report)

	// Footer
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("Archive Report")
	md.PlainText("")

	sitemap := "-"
	if report.SitemapURL != "" {
		sitemap = "`" + report.SitemapURL + "`"
	}
	engine := report.Engine
	if engine == "" {
		engine = "-"
	}
	output := "-"
	if report.OutputDir != "" {
		output = "`" + report.OutputDir + "`"
	}

	// Basic info table
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + report.BaseURL + "`"},
			{"Sitemap", sitemap},
			{"Engine", engine},
			{"Output Directory", output},
			{"Date", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", durationText(report)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.RunReport) string {
	if report.Cancelled {
		return "⚠️ Cancelled (partial results)"
	}
	if report.Failed > 0 {
		return "❌ Completed with failures"
	}
	return "✅ Complete"
}

// writeSummary writes the outcome summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Outcome Summary")
	md.PlainText("")

	// Summary table
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 Archived", strconv.Itoa(report.Archived)},
			{"🔴 Failed", strconv.Itoa(report.Failed)},
			{"⚪ Skipped", strconv.Itoa(report.Skipped)},
			{"**Total**", "**" + strconv.Itoa(report.Total) + "**"},
		},
	})
	md.PlainText("")

	// Add pie chart if pages were resolved
	if report.Total > 0 {
		w.writePieChart(md, report)
	}

	// Add alert based on the run outcome
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart for the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.RunReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Archive Outcomes"),
		piechart.WithShowData(true),
	)

	if report.Archived > 0 {
		chart.LabelAndIntValue("Archived", uint64(report.Archived))
	}
	if report.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(report.Failed))
	}
	if report.Skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(report.Skipped))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the run outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	switch {
	case report.Cancelled:
		md.Warningf(
			"The run was cancelled before completion. %d page(s) were never attempted.",
			report.Skipped,
		)
	case report.Failed > 0:
		md.Cautionf(
			"%d page(s) failed to archive. See the failed pages section below.",
			report.Failed,
		)
	case report.Total == 0:
		md.Note("The sitemap resolved to no page URLs.")
	default:
		md.Tip(fmt.Sprintf(
			"All %d page(s) archived successfully (%s on disk).",
			report.Archived, formatBytes(totalBytes(report)),
		))
	}
	md.PlainText("")
}

// writeFailures writes the failed pages section.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Failed Pages")
	md.PlainText("")

	failed := report.FailedPages()
	if len(failed) == 0 {
		md.PlainText("No pages failed to archive.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(failed))
	for i, page := range failed {
		path := page.Path
		if path == "" {
			path = "-"
		}

		rows[i] = []string{
			truncateString(page.URL, 60),
			truncateString(path, 40),
			truncateString(page.Error, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Path", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	// Full error text for entries the table truncated
	for _, page := range failed {
		if len(page.Error) > 60 {
			md.Details(page.URL, page.Error)
		}
	}
	md.PlainText("")
}

// writeWarnings writes the warnings section.
func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Warnings")
	md.PlainText("")

	if len(report.Warnings) == 0 {
		md.PlainText("No warnings were raised during the run.")
		md.PlainText("")
		return
	}

	md.BulletList(report.Warnings...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [scraper](https://github.com/romcoding/scraper)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
