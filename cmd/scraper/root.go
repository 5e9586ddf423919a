// Package main provides the entry point for the scraper CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for scraper.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Sitemap-driven website archiver",
		Long: `Scraper archives websites through their sitemaps.

It discovers the sitemap from robots.txt, resolves nested sitemap index
files, and captures every listed page as a single self-contained HTML
file with stylesheets and images inlined. The archived tree mirrors the
site's URL structure under the output directory.

Every run is recorded in a local history database, so runs of the same
site can be compared page by page later.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
//
// Exit codes separate "the archive is incomplete" from "nothing was
// archived at all": 0 when every page was archived, 1 when the run
// completed but at least one page failed or was skipped, 2 for fatal
// errors such as an unreachable origin or invalid flags.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errIncompleteArchive) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
