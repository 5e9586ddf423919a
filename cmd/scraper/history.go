package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/database"
	"github.com/spf13/cobra"
)

// Constants for archive health direction.
const (
	healthDirectionWorsened  = "worsened"
	healthDirectionImproved  = "improved"
	healthDirectionUnchanged = "unchanged"
)

// NewHistoryCmd creates the history command.
// This command inspects archive runs recorded in the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [base-url]",
		Short: "Inspect and compare recorded archive runs",
		Long: `History displays differences between the current and previous archive runs.

This command retrieves run records from the history database and shows:
- Pages that appeared in the sitemap since the previous run
- Pages that disappeared from the sitemap
- Pages whose archived content changed

The comparison requires at least two recorded runs for the specified site.
Use 'scraper scrape' to archive a site and record results.

Examples:
  # Compare the latest two runs for a site
  scraper history https://example.com

  # List all recorded runs for a site
  scraper history --list https://example.com

  # Compare the latest run with a specific run by ID
  scraper history --with-run-id 5 https://example.com

  # Compare with the first run since a specific date
  scraper history --since "2026-01-01" https://example.com

  # Output the comparison in JSON format
  scraper history --json https://example.com

  # List all archived sites in the database
  scraper history --list-sites`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List recorded runs for the specified site")
	cmd.Flags().BoolP("list-sites", "L", false,
		"List all archived sites in the database")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	// Handle --list-sites flag first (requires database but no site)
	listSites, err := cmd.Flags().GetBool("list-sites")
	if err != nil {
		return err
	}

	// Validate arguments before opening database (unless --list-sites)
	// This prevents database lock issues when validation fails
	var site string
	if !listSites {
		// Require a site for other operations
		if len(args) == 0 {
			return errors.New("base URL is required (use --list-sites to see archived sites)")
		}

		// Normalize to the origin form runs are stored under
		site, err = normalizeSite(args[0])
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}

	// Use XDG data directory for database
	dbDir := config.XDGDataDir()

	// Open database
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	w := cmd.OutOrStdout()

	// Handle --list-sites flag
	if listSites {
		return listArchivedSites(ctx, db, w)
	}

	// Handle --list flag
	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listRuns {
		return listRunHistory(ctx, db, site, w)
	}

	// Get output format flags
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	// Get comparison target flags
	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	sinceDate, err := cmd.Flags().GetString("since")
	if err != nil {
		return err
	}

	// Perform comparison
	return runDiff(ctx, db, site, withRunID, sinceDate, jsonOutput, markdownOutput, w)
}

// normalizeSite converts a user-supplied site argument into the origin
// form that runs are stored under. A bare hostname is accepted and
// assumed to be https.
func normalizeSite(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}

	return u.Scheme + "://" + u.Host, nil
}

// listArchivedSites lists all sites that have run records in the database.
func listArchivedSites(ctx context.Context, db *database.RunDB, w io.Writer) error {
	sites, err := db.ListArchivedSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Fprintln(w, "No archived sites found in the database.")
		fmt.Fprintln(w, "\nUse 'scraper scrape <base-url>' to archive a site.")
		return nil
	}

	fmt.Fprintf(w, "Archived sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(w, "  • %s\n", site)
	}
	fmt.Fprintln(w, "\nUse 'scraper history --list <base-url>' to see run history for a site.")

	return nil
}

// listRunHistory lists all run records for a specific site.
func listRunHistory(ctx context.Context, db *database.RunDB, site string, w io.Writer) error {
	runs, err := db.GetRunHistory(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(w, "No run history found for %s\n", site)
		fmt.Fprintln(w, "\nUse 'scraper scrape' to archive this site.")
		return nil
	}

	fmt.Fprintf(w, "Run history for %s (%d runs):\n\n", site, len(runs))
	fmt.Fprintf(w, "  %-6s  %-20s  %-30s  %s\n", "ID", "Date", "Outcome", "Duration")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 70))

	for _, meta := range runs {
		fmt.Fprintf(w, "  %-6d  %-20s  %-30s  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			outcomeSummary(meta),
			time.Duration(meta.DurationMS)*time.Millisecond,
		)
	}

	fmt.Fprintln(w, "\nUse 'scraper history <base-url>' to compare the latest two runs.")
	fmt.Fprintln(w, "Use 'scraper history --with-run-id <id> <base-url>' to compare with a specific run.")

	return nil
}

// outcomeSummary formats a run's outcome counts into a short label.
func outcomeSummary(meta database.RunMetadata) string {
	parts := []string{fmt.Sprintf("%d/%d archived", meta.Archived, meta.Total)}
	if meta.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", meta.Failed))
	}
	if meta.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", meta.Skipped))
	}
	if meta.Cancelled {
		parts = append(parts, "cancelled")
	}
	return strings.Join(parts, ", ")
}

// runDiff performs the actual comparison between two recorded runs.
func runDiff(ctx context.Context, db *database.RunDB, site string, withRunID int64, sinceDate string, jsonOutput, markdownOutput bool, w io.Writer) error {
	// Get the run history, newest first
	runs, err := db.GetRunHistory(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		return fmt.Errorf("no run history found for %s", site)
	}

	if len(runs) < 2 && withRunID == 0 && sinceDate == "" {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}

	// Determine which runs to compare
	var previous *database.RunMetadata

	// Latest run is always the current one
	current := &runs[0]

	if withRunID > 0 {
		// Find the run among this site's own records. Searching the
		// site's history also rejects IDs that belong to another site.
		for i := range runs {
			if runs[i].ID == withRunID {
				previous = &runs[i]
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("run with ID %d not found for %s", withRunID, site)
		}
		if previous.ID == current.ID {
			return fmt.Errorf("run %d is the latest run; choose an earlier run to compare against", withRunID)
		}
	} else if sinceDate != "" {
		// Parse the date and find the first (oldest) run at or after the specified date
		parsedDate, err := time.Parse("2006-01-02", sinceDate)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Runs are sorted newest first, so iterate in reverse to find
		// the first (oldest) run at or after the date
		for i := len(runs) - 1; i >= 0; i-- {
			r := &runs[i]
			if r.Timestamp.After(parsedDate) || r.Timestamp.Equal(parsedDate) {
				previous = r
				break
			}
		}
		if previous == nil {
			return fmt.Errorf("no runs found since %s", sinceDate)
		}
		// If only one run matches and it's the current run, we can't compare
		if previous.ID == current.ID {
			return fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", sinceDate)
		}
	} else {
		// Default: compare with the previous run
		previous = &runs[1]
	}

	changes, err := db.ChangedPages(ctx, previous.ID, current.ID)
	if err != nil {
		return fmt.Errorf("failed to compare runs: %w", err)
	}

	diff := buildRunDiff(site, *previous, *current, changes)

	// Output the result
	if jsonOutput {
		return outputDiffJSON(w, diff)
	}
	if markdownOutput {
		return outputDiffMarkdown(w, diff)
	}
	return outputDiffText(w, diff)
}

// RunDiff holds the result of comparing two archive runs.
type RunDiff struct {
	// Site is the base URL whose runs were compared.
	Site string `json:"site"`

	// PreviousRun contains summary counts for the older run.
	PreviousRun RunSummary `json:"previous_run"`

	// CurrentRun contains summary counts for the newer run.
	CurrentRun RunSummary `json:"current_run"`

	// AddedPages contains pages archived in the current run only.
	AddedPages []database.PageChange `json:"added_pages,omitempty"`

	// RemovedPages contains pages archived in the previous run only.
	RemovedPages []database.PageChange `json:"removed_pages,omitempty"`

	// ModifiedPages contains pages whose archived content changed.
	ModifiedPages []database.PageChange `json:"modified_pages,omitempty"`

	// UnchangedCount is the number of archived pages with identical content.
	UnchangedCount int `json:"unchanged_count"`

	// HealthChange describes the overall change in archive health.
	HealthChange HealthChange `json:"health_change"`
}

// RunSummary contains metadata about one run for comparison display.
type RunSummary struct {
	// ID is the run's database identifier.
	ID int64 `json:"id"`

	// Timestamp is when the run was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Total is the number of pages the sitemap resolved to.
	Total int `json:"total"`

	// Archived is the number of pages archived successfully.
	Archived int `json:"archived"`

	// Failed is the number of pages that could not be archived.
	Failed int `json:"failed"`

	// Skipped is the number of pages excluded by configuration.
	Skipped int `json:"skipped"`

	// Cancelled is true when the run was interrupted.
	Cancelled bool `json:"cancelled"`
}

// HealthChange describes the change in archive health between runs.
type HealthChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	// TotalDelta is the change in resolved page count.
	TotalDelta int `json:"total_delta"`

	// ArchivedDelta is the change in archived page count.
	ArchivedDelta int `json:"archived_delta"`

	// FailedDelta is the change in failed page count.
	FailedDelta int `json:"failed_delta"`

	// SkippedDelta is the change in skipped page count.
	SkippedDelta int `json:"skipped_delta"`
}

// buildRunDiff assembles a RunDiff from two run records and their
// page-level changes.
func buildRunDiff(site string, previous, current database.RunMetadata, changes []database.PageChange) *RunDiff {
	diff := &RunDiff{
		Site:        site,
		PreviousRun: newRunSummary(previous),
		CurrentRun:  newRunSummary(current),
	}

	for _, change := range changes {
		switch change.Change {
		case database.ChangeAdded:
			diff.AddedPages = append(diff.AddedPages, change)
		case database.ChangeRemoved:
			diff.RemovedPages = append(diff.RemovedPages, change)
		case database.ChangeModified:
			diff.ModifiedPages = append(diff.ModifiedPages, change)
		}
	}

	// Every archived page in the current run is added, modified, or unchanged
	diff.UnchangedCount = current.Archived - len(diff.AddedPages) - len(diff.ModifiedPages)

	diff.HealthChange = calculateHealthChange(diff.PreviousRun, diff.CurrentRun)

	return diff
}

// newRunSummary extracts display fields from a run record.
func newRunSummary(meta database.RunMetadata) RunSummary {
	return RunSummary{
		ID:        meta.ID,
		Timestamp: meta.Timestamp,
		Total:     meta.Total,
		Archived:  meta.Archived,
		Failed:    meta.Failed,
		Skipped:   meta.Skipped,
		Cancelled: meta.Cancelled,
	}
}

// calculateHealthChange calculates the change in archive health between two runs.
func calculateHealthChange(previous, current RunSummary) HealthChange {
	change := HealthChange{
		TotalDelta:    current.Total - previous.Total,
		ArchivedDelta: current.Archived - previous.Archived,
		FailedDelta:   current.Failed - previous.Failed,
		SkippedDelta:  current.Skipped - previous.Skipped,
	}

	// Determine overall direction based on weighted score.
	// Failures weigh more than skips; a skip is usually deliberate.
	previousScore := previous.Failed*10 + previous.Skipped
	currentScore := current.Failed*10 + current.Skipped

	if currentScore < previousScore {
		change.Direction = healthDirectionImproved
	} else if currentScore > previousScore {
		change.Direction = healthDirectionWorsened
	} else {
		change.Direction = healthDirectionUnchanged
	}

	return change
}

// outputDiffJSON writes the comparison result in JSON format.
func outputDiffJSON(w io.Writer, diff *RunDiff) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(diff)
}

// outputDiffMarkdown writes the comparison result in Markdown format.
func outputDiffMarkdown(w io.Writer, diff *RunDiff) error {
	fmt.Fprintf(w, "# Run Comparison: %s\n\n", diff.Site)

	// Health change summary
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "\n**Archive Health:** %s\n\n", formatHealthDirection(diff.HealthChange.Direction))

	// Run metadata table
	fmt.Fprintln(w, "| Metric | Previous | Current | Change |")
	fmt.Fprintln(w, "|--------|----------|---------|--------|")
	fmt.Fprintf(w, "| Date | %s | %s | - |\n",
		diff.PreviousRun.Timestamp.Format("2006-01-02 15:04"),
		diff.CurrentRun.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "| Total | %d | %d | %s |\n",
		diff.PreviousRun.Total,
		diff.CurrentRun.Total,
		formatDelta(diff.HealthChange.TotalDelta))
	fmt.Fprintf(w, "| Archived | %d | %d | %s |\n",
		diff.PreviousRun.Archived,
		diff.CurrentRun.Archived,
		formatDelta(diff.HealthChange.ArchivedDelta))
	fmt.Fprintf(w, "| Failed | %d | %d | %s |\n",
		diff.PreviousRun.Failed,
		diff.CurrentRun.Failed,
		formatDelta(diff.HealthChange.FailedDelta))
	fmt.Fprintf(w, "| Skipped | %d | %d | %s |\n",
		diff.PreviousRun.Skipped,
		diff.CurrentRun.Skipped,
		formatDelta(diff.HealthChange.SkippedDelta))

	// Added pages
	if len(diff.AddedPages) > 0 {
		fmt.Fprintf(w, "\n## Added Pages (%d)\n\n", len(diff.AddedPages))
		for _, change := range diff.AddedPages {
			fmt.Fprintf(w, "- %s\n", change.URL)
		}
	}

	// Removed pages
	if len(diff.RemovedPages) > 0 {
		fmt.Fprintf(w, "\n## Removed Pages (%d)\n\n", len(diff.RemovedPages))
		for _, change := range diff.RemovedPages {
			fmt.Fprintf(w, "- ~~%s~~\n", change.URL)
		}
	}

	// Modified pages
	if len(diff.ModifiedPages) > 0 {
		fmt.Fprintf(w, "\n## Modified Pages (%d)\n\n", len(diff.ModifiedPages))
		for _, change := range diff.ModifiedPages {
			fmt.Fprintf(w, "- %s\n", change.URL)
			fmt.Fprintf(w, "  - Checksum: `%s` -> `%s`\n",
				shortChecksum(change.OldChecksum), shortChecksum(change.NewChecksum))
		}
	}

	// Unchanged count
	if diff.UnchangedCount > 0 {
		fmt.Fprintf(w, "\n---\n\n*%d pages unchanged*\n", diff.UnchangedCount)
	}

	return nil
}

// outputDiffText writes the comparison result in human-readable text format.
func outputDiffText(w io.Writer, diff *RunDiff) error {
	fmt.Fprintf(w, "Run Comparison: %s\n", diff.Site)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	// Health change summary
	fmt.Fprintf(w, "\nArchive Health: %s\n", formatHealthDirection(diff.HealthChange.Direction))

	// Run dates
	fmt.Fprintf(w, "\nPrevious run: %s (id %d)\n",
		diff.PreviousRun.Timestamp.Format("2006-01-02 15:04:05"), diff.PreviousRun.ID)
	fmt.Fprintf(w, "Current run:  %s (id %d)\n",
		diff.CurrentRun.Timestamp.Format("2006-01-02 15:04:05"), diff.CurrentRun.ID)

	// Summary table
	fmt.Fprintln(w, "\nPages Summary:")
	fmt.Fprintf(w, "  %-10s  %-10s  %-10s  %-10s\n", "Outcome", "Previous", "Current", "Change")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 45))
	fmt.Fprintf(w, "  %-10s  %-10d  %-10d  %-10s\n", "Total",
		diff.PreviousRun.Total, diff.CurrentRun.Total,
		formatDelta(diff.HealthChange.TotalDelta))
	fmt.Fprintf(w, "  %-10s  %-10d  %-10d  %-10s\n", "Archived",
		diff.PreviousRun.Archived, diff.CurrentRun.Archived,
		formatDelta(diff.HealthChange.ArchivedDelta))
	fmt.Fprintf(w, "  %-10s  %-10d  %-10d  %-10s\n", "Failed",
		diff.PreviousRun.Failed, diff.CurrentRun.Failed,
		formatDelta(diff.HealthChange.FailedDelta))
	fmt.Fprintf(w, "  %-10s  %-10d  %-10d  %-10s\n", "Skipped",
		diff.PreviousRun.Skipped, diff.CurrentRun.Skipped,
		formatDelta(diff.HealthChange.SkippedDelta))

	// An interrupted run never saw its full sitemap, so absent pages
	// are not evidence of removal
	if diff.PreviousRun.Cancelled || diff.CurrentRun.Cancelled {
		fmt.Fprintln(w, "\nNote: an interrupted run may show pages as removed that were never reached.")
	}

	// Added pages
	if len(diff.AddedPages) > 0 {
		fmt.Fprintf(w, "\nAdded Pages (%d):\n", len(diff.AddedPages))
		for _, change := range diff.AddedPages {
			fmt.Fprintf(w, "  [+] %s\n", change.URL)
		}
	}

	// Removed pages
	if len(diff.RemovedPages) > 0 {
		fmt.Fprintf(w, "\nRemoved Pages (%d):\n", len(diff.RemovedPages))
		for _, change := range diff.RemovedPages {
			fmt.Fprintf(w, "  [-] %s\n", change.URL)
		}
	}

	// Modified pages
	if len(diff.ModifiedPages) > 0 {
		fmt.Fprintf(w, "\nModified Pages (%d):\n", len(diff.ModifiedPages))
		for _, change := range diff.ModifiedPages {
			fmt.Fprintf(w, "  [~] %s\n", change.URL)
			fmt.Fprintf(w, "      Checksum: %s -> %s\n",
				shortChecksum(change.OldChecksum), shortChecksum(change.NewChecksum))
		}
	}

	// Unchanged count
	if diff.UnchangedCount > 0 {
		fmt.Fprintf(w, "\nUnchanged: %d pages\n", diff.UnchangedCount)
	}

	return nil
}

// formatHealthDirection formats the health change direction for display.
func formatHealthDirection(direction string) string {
	switch direction {
	case healthDirectionImproved:
		return "IMPROVED (fewer failures)"
	case healthDirectionWorsened:
		return "WORSENED (more failures)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}

// shortChecksum truncates a content checksum for display.
func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
