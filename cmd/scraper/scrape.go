package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/database"
	"github.com/romcoding/scraper/internal/log"
	"github.com/romcoding/scraper/internal/model"
	"github.com/romcoding/scraper/internal/pipeline"
	"github.com/romcoding/scraper/internal/report"
	"github.com/spf13/cobra"
)

// Report files written into the output directory after a run.
const (
	reportFileName         = "report.json"
	markdownReportFileName = "report.md"
)

// errIncompleteArchive marks a run that completed but did not archive
// every resolved page. Execute maps it to exit code 1 so scripts can
// tell a partial archive from a fatal startup error.
var errIncompleteArchive = errors.New("incomplete archive")

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [base-url]",
		Short: "Archive a website's sitemap pages as self-contained HTML",
		Long: `Scrape archives every page listed in a website's sitemap.

It discovers the sitemap through robots.txt, resolves sitemap index
files recursively, and captures each page as a single self-contained
HTML file with stylesheets and images inlined. The archived tree
mirrors the site's URL structure under the output directory, and a
report.json describing every page's outcome is written next to it.

Examples:
  # Archive a site with the default headless-chrome engine
  scraper scrape https://example.com

  # Archive without a browser (no JavaScript execution)
  scraper scrape --engine static https://example.com

  # Limit the run to 100 pages at 2 requests per second
  scraper scrape --max-pages 100 --rate 2 https://example.com

  # Skip URLs under /drafts/ and write a markdown summary too
  scraper scrape -x '/drafts/*' --markdown https://example.com

Configuration file (.scraper.yaml) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
    docs.example.com:
      engine: static`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrapeCmd,
	}

	// Output and engine flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory that receives the archived HTML tree and report")
	cmd.Flags().StringP("engine", "e", config.EngineChrome,
		"Archive engine: chrome (renders JavaScript) or static (plain HTTP)")

	// Archive behavior flags
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency,
		"Number of pages archived at once")
	cmd.Flags().DurationP("timeout", "t", config.DefaultPageTimeout,
		"Time budget for one page: navigation, rendering, and inlining")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to archive (0 = every sitemap URL)")
	cmd.Flags().Float64P("rate", "r", config.DefaultRequestRate,
		"Maximum HTTP requests per second (0 = unlimited)")
	cmd.Flags().StringArrayP("exclude", "x", nil,
		"Path glob of sitemap URLs to skip (repeatable)")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// Report flags
	cmd.Flags().BoolP("markdown", "m", false,
		"Additionally write a markdown run summary next to report.json")

	// Configuration and persistence
	cmd.Flags().String("config", "",
		"Configuration file path (default: .scraper.yaml in current or config directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record this run in the history database")

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Runs are keyed by origin; a path or trailing slash in the argument
	// would fork the site's history
	cfg.BaseURL = cfg.Origin()

	// Set up structured logging with credential redaction; site configs
	// may carry session cookies
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runArchive(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	// Get flag values
	var err error

	cfg.OutputDir, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Engine, err = cmd.Flags().GetString("engine")
	if err != nil {
		return nil, err
	}

	cfg.Concurrency, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.PageTimeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.RequestRate, err = cmd.Flags().GetFloat64("rate")
	if err != nil {
		return nil, err
	}

	cfg.ExcludePatterns, err = cmd.Flags().GetStringArray("exclude")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.SaveToDB {
		// Run history lives in the XDG data directory
		cfg.DBDir = config.XDGDataDir()
	}

	// Load site-specific configurations from config file
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		// User explicitly specified a config file that doesn't exist
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		// Use empty config if no file found and user didn't explicitly specify one
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	// Get positional argument (the site origin)
	if len(args) > 0 {
		cfg.BaseURL = args[0]
	}

	// Overlay the per-site settings for this host. Site entries are
	// keyed by bare hostname.
	if cfg.BaseURL != "" {
		if u, parseErr := url.Parse(cfg.BaseURL); parseErr == nil && u.Hostname() != "" {
			cfg.ApplySiteConfig(cfg.SiteConfigs.GetSiteConfig(u.Hostname()))
		}
	}

	return cfg, nil
}

// runArchive executes the archive run.
func runArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.BaseURL == "" {
		return errors.New("no base URL provided (specify the site origin as an argument)")
	}

	logger.Info("starting archive run",
		"url", cfg.BaseURL,
		"engine", cfg.Engine,
		"concurrency", cfg.Concurrency,
		"output", cfg.OutputDir,
		"saveToDB", cfg.SaveToDB,
	)

	// Open database connection if saving is enabled
	var db *database.RunDB
	if cfg.SaveToDB && cfg.DBDir != "" {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	runReport := model.NewRunReport(cfg.BaseURL)

	fmt.Printf("Archiving %s...\n", cfg.BaseURL)

	p := pipeline.DefaultPipeline(cfg, pipeline.WithLogger(logger))
	pipeErr := p.Execute(ctx, runReport)

	// A step interrupted mid-fetch surfaces the cancellation as its own
	// error without marking the report
	if errors.Is(pipeErr, context.Canceled) {
		runReport.Cancelled = true
	}
	runReport.Finalize()

	// Report and persist even when the run was cancelled partway; pages
	// already written deserve a record
	if err := writeRunReports(cfg, runReport, os.Stdout); err != nil {
		logger.Error("report failed", "url", cfg.BaseURL, "error", err)
	}
	if err := saveRunReport(context.WithoutCancel(ctx), db, runReport, logger); err != nil {
		logger.Error("failed to save run", "url", cfg.BaseURL, "error", err)
	}

	if pipeErr != nil && !errors.Is(pipeErr, context.Canceled) {
		return pipeErr
	}
	if runReport.Cancelled && runReport.Total == 0 {
		return fmt.Errorf("run cancelled before any pages were resolved: %w", context.Canceled)
	}
	if !runReport.AllArchived() {
		return fmt.Errorf("%w: %d of %d pages archived", errIncompleteArchive, runReport.Archived, runReport.Total)
	}

	return nil
}

// writeRunReports writes the run report everywhere it goes: report.json
// in the output directory, an optional markdown summary next to it, and
// the human-readable summary on stdout.
func writeRunReports(cfg *config.Config, runReport *model.RunReport, stdout io.Writer) error {
	// The output directory normally exists by now, but a run that failed
	// before the planning step never created it
	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Report files use 0600: a report can carry warnings and error text
	// about a site that page archives do not
	jsonFile, err := os.OpenFile(filepath.Join(cfg.OutputDir, reportFileName),
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", reportFileName, err)
	}
	defer jsonFile.Close()

	writers := []report.Writer{
		report.NewJSONWriter(jsonFile, report.WithPrettyPrint()),
		report.NewSimpleWriter(stdout, report.WithVerbose(cfg.Verbose)),
	}

	if cfg.MarkdownReport {
		mdFile, err := os.OpenFile(filepath.Join(cfg.OutputDir, markdownReportFileName),
			os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", markdownReportFileName, err)
		}
		defer mdFile.Close()
		writers = append(writers, report.NewMarkdownWriter(mdFile))
	}

	if _, err := report.NewMultiWriter(writers...).Write(runReport); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	return nil
}

// saveRunReport records the run in the history database.
// If db is nil, this function is a no-op.
func saveRunReport(ctx context.Context, db *database.RunDB, runReport *model.RunReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	id, err := db.SaveRun(ctx, runReport)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	logger.Info("run saved to history database", "id", id, "url", runReport.BaseURL)
	return nil
}
