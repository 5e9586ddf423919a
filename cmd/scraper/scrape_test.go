package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/database"
	"github.com/romcoding/scraper/internal/model"
)

// TestNewScrapeCmd tests the scrape command creation.
func TestNewScrapeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScrapeCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "scrape [base-url]" {
			t.Errorf("expected use 'scrape [base-url]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("accepts at most one argument", func(t *testing.T) {
		t.Parallel()
		if cmd.Args == nil {
			t.Error("expected Args validator")
		}
	})

	t.Run("has output flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("expected output flag")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
		}
		if flag.DefValue != config.DefaultOutputDir {
			t.Errorf("expected default %q, got %q", config.DefaultOutputDir, flag.DefValue)
		}
	})

	t.Run("has engine flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("engine")
		if flag == nil {
			t.Fatal("expected engine flag")
		}
		if flag.Shorthand != "e" {
			t.Errorf("expected shorthand 'e', got %q", flag.Shorthand)
		}
		if flag.DefValue != config.EngineChrome {
			t.Errorf("expected default %q, got %q", config.EngineChrome, flag.DefValue)
		}
	})

	t.Run("has concurrency flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("concurrency")
		if flag == nil {
			t.Fatal("expected concurrency flag")
		}
		if flag.Shorthand != "c" {
			t.Errorf("expected shorthand 'c', got %q", flag.Shorthand)
		}
		if flag.DefValue != "3" {
			t.Errorf("expected default '3', got %q", flag.DefValue)
		}
	})

	t.Run("has timeout flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("timeout")
		if flag == nil {
			t.Fatal("expected timeout flag")
		}
		if flag.Shorthand != "t" {
			t.Errorf("expected shorthand 't', got %q", flag.Shorthand)
		}
		if flag.DefValue != "30s" {
			t.Errorf("expected default '30s', got %q", flag.DefValue)
		}
	})

	t.Run("has max-pages flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("max-pages")
		if flag == nil {
			t.Fatal("expected max-pages flag")
		}
		if flag.Shorthand != "p" {
			t.Errorf("expected shorthand 'p', got %q", flag.Shorthand)
		}
	})

	t.Run("has rate flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("rate")
		if flag == nil {
			t.Fatal("expected rate flag")
		}
		if flag.Shorthand != "r" {
			t.Errorf("expected shorthand 'r', got %q", flag.Shorthand)
		}
	})

	t.Run("has exclude flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("exclude")
		if flag == nil {
			t.Fatal("expected exclude flag")
		}
		if flag.Shorthand != "x" {
			t.Errorf("expected shorthand 'x', got %q", flag.Shorthand)
		}
	})

	t.Run("has user-agent flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("user-agent")
		if flag == nil {
			t.Fatal("expected user-agent flag")
		}
		if flag.Shorthand != "u" {
			t.Errorf("expected shorthand 'u', got %q", flag.Shorthand)
		}
	})

	t.Run("has markdown flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("markdown")
		if flag == nil {
			t.Fatal("expected markdown flag")
		}
		if flag.Shorthand != "m" {
			t.Errorf("expected shorthand 'm', got %q", flag.Shorthand)
		}
	})

	t.Run("has config flag without shorthand", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("config")
		if flag == nil {
			t.Fatal("expected config flag")
		}
		if flag.Shorthand != "" {
			t.Errorf("expected no shorthand, got %q", flag.Shorthand)
		}
	})

	t.Run("has no-history flag without shorthand", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("no-history")
		if flag == nil {
			t.Fatal("expected no-history flag")
		}
		if flag.Shorthand != "" {
			t.Errorf("expected no shorthand, got %q", flag.Shorthand)
		}
	})

	t.Run("does not have db-dir flag (uses XDG)", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("db-dir")
		if flag != nil {
			t.Error("db-dir flag should not exist (always uses XDG data directory)")
		}
	})
}

// TestGetVerboseFlag tests the verbose flag retrieval.
func TestGetVerboseFlag(t *testing.T) {
	t.Run("returns false when flag not set", func(t *testing.T) {
		cmd := NewScrapeCmd()
		result := getVerboseFlag(cmd)
		if result {
			t.Error("expected false when flag not set")
		}
	})

	t.Run("returns value from parent verbose flag", func(t *testing.T) {
		root := NewRootCmd()
		// Set verbose flag to true
		_ = root.PersistentFlags().Set("verbose", "true")

		// Get scrape subcommand
		scrapeCmd, _, err := root.Find([]string{"scrape"})
		if err != nil {
			t.Fatalf("failed to find scrape command: %v", err)
		}

		result := getVerboseFlag(scrapeCmd)
		if !result {
			t.Error("expected true from parent verbose flag")
		}
	})
}

// TestBuildConfig tests configuration building from flags.
func TestBuildConfig(t *testing.T) {
	t.Run("builds config with default values", func(t *testing.T) {
		cmd := NewScrapeCmd()
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg == nil {
			t.Fatal("expected non-nil config")
		}
		if cfg.BaseURL != "https://example.com" {
			t.Errorf("expected base URL 'https://example.com', got %q", cfg.BaseURL)
		}
		if cfg.Engine != config.EngineChrome {
			t.Errorf("expected engine %q, got %q", config.EngineChrome, cfg.Engine)
		}
		if cfg.Concurrency != config.DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true by default")
		}
		if cfg.DBDir == "" {
			t.Error("expected DBDir to be set when saving is enabled")
		}
	})

	t.Run("builds config with static engine", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("engine", "static")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Engine != config.EngineStatic {
			t.Errorf("expected engine %q, got %q", config.EngineStatic, cfg.Engine)
		}
	})

	t.Run("builds config with custom concurrency", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("concurrency", "8")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Concurrency != 8 {
			t.Errorf("expected concurrency 8, got %d", cfg.Concurrency)
		}
	})

	t.Run("builds config with custom timeout", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("timeout", "5s")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.PageTimeout != 5*time.Second {
			t.Errorf("expected page timeout 5s, got %v", cfg.PageTimeout)
		}
	})

	t.Run("builds config with page cap and rate limit", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("max-pages", "100")
		_ = cmd.Flags().Set("rate", "2.5")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxPages != 100 {
			t.Errorf("expected max pages 100, got %d", cfg.MaxPages)
		}
		if cfg.RequestRate != 2.5 {
			t.Errorf("expected request rate 2.5, got %v", cfg.RequestRate)
		}
	})

	t.Run("builds config with exclude patterns", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("exclude", "/drafts/*")
		_ = cmd.Flags().Set("exclude", "*.pdf")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.ExcludePatterns) != 2 {
			t.Errorf("expected 2 exclude patterns, got %v", cfg.ExcludePatterns)
		}
	})

	t.Run("builds config with markdown report", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("markdown", "true")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !cfg.MarkdownReport {
			t.Error("expected MarkdownReport to be true")
		}
	})

	t.Run("disables history with no-history flag", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("no-history", "true")
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.SaveToDB {
			t.Error("expected SaveToDB to be false")
		}
		if cfg.DBDir != "" {
			t.Errorf("expected empty DBDir, got %q", cfg.DBDir)
		}
	})

	t.Run("builds config with valid config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "scraper.yaml")

		// Create a valid config file
		content := []byte(`
defaults:
  requestRate: 2
sites:
  example.com:
    cookie: session=xyz
    engine: static
`)
		if err := os.WriteFile(configPath, content, 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("config", configPath)
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.SiteConfigs == nil {
			t.Fatal("expected SiteConfigs to be loaded")
		}
		if cfg.SiteConfigs.Defaults.RequestRate != 2 {
			t.Errorf("expected default request rate 2, got %v", cfg.SiteConfigs.Defaults.RequestRate)
		}

		// The example.com entry should be overlaid onto the run config
		if cfg.Cookie != "session=xyz" {
			t.Errorf("expected cookie 'session=xyz', got %q", cfg.Cookie)
		}
		if cfg.Engine != config.EngineStatic {
			t.Errorf("expected site entry to switch engine to static, got %q", cfg.Engine)
		}
		if cfg.RequestRate != 2 {
			t.Errorf("expected defaults request rate 2, got %v", cfg.RequestRate)
		}
	})

	t.Run("returns error for invalid config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.yaml")

		// Create an invalid config file
		content := []byte(`{invalid yaml`)
		if err := os.WriteFile(configPath, content, 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("config", configPath)
		_, err := buildConfig(cmd, []string{"https://example.com"})
		if err == nil {
			t.Fatal("expected error for invalid config file")
		}
	})

	t.Run("returns error when explicit config file is missing", func(t *testing.T) {
		cmd := NewScrapeCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := buildConfig(cmd, []string{"https://example.com"})
		if err == nil {
			t.Fatal("expected error for missing config file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected 'not found' error, got %v", err)
		}
	})
}

// TestRunArchiveNoBaseURL tests that runArchive rejects an empty base URL.
func TestRunArchiveNoBaseURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := config.NewConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	err := runArchive(ctx, cfg, logger)
	if err == nil {
		t.Error("expected error for missing base URL")
	}
	if err.Error() != "no base URL provided (specify the site origin as an argument)" {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestWriteRunReports tests report writing to the output directory.
func TestWriteRunReports(t *testing.T) {
	t.Run("writes JSON report and stdout summary", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg := config.NewConfig()
		cfg.OutputDir = tmpDir

		runReport := model.NewRunReport("https://example.com")
		runReport.Pages = []model.PageResult{
			{URL: "https://example.com/", Path: "index.html", Status: model.StatusArchived, Size: 2048},
		}
		runReport.Finalize()

		var stdout bytes.Buffer
		if err := writeRunReports(cfg, runReport, &stdout); err != nil {
			t.Fatalf("writeRunReports() error = %v", err)
		}

		// Verify report.json content
		content, err := os.ReadFile(filepath.Join(tmpDir, reportFileName))
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}

		var decoded model.RunReport
		if err := json.Unmarshal(content, &decoded); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if decoded.BaseURL != "https://example.com" {
			t.Errorf("expected base url 'https://example.com', got %q", decoded.BaseURL)
		}
		if decoded.Archived != 1 {
			t.Errorf("expected 1 archived page, got %d", decoded.Archived)
		}

		// Verify stdout summary
		output := stdout.String()
		if !strings.Contains(output, "ARCHIVE REPORT") {
			t.Error("expected summary header on stdout")
		}
		if !strings.Contains(output, "https://example.com") {
			t.Error("expected base URL in stdout summary")
		}
	})

	t.Run("writes markdown report when enabled", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg := config.NewConfig()
		cfg.OutputDir = tmpDir
		cfg.MarkdownReport = true

		runReport := model.NewRunReport("https://example.com")
		runReport.Finalize()

		var stdout bytes.Buffer
		if err := writeRunReports(cfg, runReport, &stdout); err != nil {
			t.Fatalf("writeRunReports() error = %v", err)
		}

		content, err := os.ReadFile(filepath.Join(tmpDir, markdownReportFileName))
		if err != nil {
			t.Fatalf("failed to read markdown report: %v", err)
		}
		if len(content) == 0 {
			t.Error("expected non-empty markdown report")
		}
	})

	t.Run("creates output directory when missing", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg := config.NewConfig()
		cfg.OutputDir = filepath.Join(tmpDir, "subdir", "nested")

		runReport := model.NewRunReport("https://example.com")
		runReport.Finalize()

		var stdout bytes.Buffer
		if err := writeRunReports(cfg, runReport, &stdout); err != nil {
			t.Fatalf("writeRunReports() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(cfg.OutputDir, reportFileName)); os.IsNotExist(err) {
			t.Error("expected report to be created in nested directory")
		}
	})

	t.Run("report file has restrictive permissions", func(t *testing.T) {
		// Skip on Windows as it doesn't support Unix-style file permissions
		if runtime.GOOS == "windows" {
			t.Skip("skipping permission test on Windows")
		}

		tmpDir := t.TempDir()

		cfg := config.NewConfig()
		cfg.OutputDir = tmpDir

		runReport := model.NewRunReport("https://example.com")
		runReport.Finalize()

		var stdout bytes.Buffer
		if err := writeRunReports(cfg, runReport, &stdout); err != nil {
			t.Fatalf("writeRunReports() error = %v", err)
		}

		info, err := os.Stat(filepath.Join(tmpDir, reportFileName))
		if err != nil {
			t.Fatalf("failed to stat report: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected permissions 0600, got %o", perm)
		}
	})
}

// TestSaveRunReport tests the saveRunReport function.
func TestSaveRunReport(t *testing.T) {
	t.Parallel()

	// Create a logger for testing
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := context.Background()

	t.Run("returns nil when db is nil", func(t *testing.T) {
		t.Parallel()

		runReport := model.NewRunReport("https://example.com")
		err := saveRunReport(ctx, nil, runReport, logger)
		if err != nil {
			t.Errorf("expected nil error when db is nil, got %v", err)
		}
	})

	t.Run("saves run to database", func(t *testing.T) {
		t.Parallel()

		tmpDir := t.TempDir()
		db, err := database.Open(tmpDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runReport := model.NewRunReport("https://save-test.example.com")
		runReport.Pages = []model.PageResult{
			{URL: "https://save-test.example.com/", Path: "index.html", Status: model.StatusArchived, Checksum: "abc123"},
		}
		runReport.Finalize()

		err = saveRunReport(ctx, db, runReport, logger)
		if err != nil {
			t.Fatalf("saveRunReport() error = %v", err)
		}

		// Verify run was saved
		saved, err := db.GetLatestRun(ctx, "https://save-test.example.com")
		if err != nil {
			t.Fatalf("failed to get saved run: %v", err)
		}
		if saved == nil {
			t.Fatal("expected run to be saved")
		}
		if saved.Archived != 1 {
			t.Errorf("expected 1 archived page, got %d", saved.Archived)
		}
	})
}

// TestRunScrapeCmdNoArgs tests the scrape command with no arguments.
func TestRunScrapeCmdNoArgs(t *testing.T) {
	t.Parallel()

	// NewRootCmd already includes the scrape subcommand
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"scrape"})

	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected error for no arguments")
	}
	if !strings.Contains(err.Error(), "no base URL") {
		t.Errorf("expected 'no base URL' error, got: %v", err)
	}
}

// TestRunScrapeCmdInvalidEngine tests the scrape command with an unknown engine.
func TestRunScrapeCmdInvalidEngine(t *testing.T) {
	t.Parallel()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"scrape", "--engine", "gopher", "https://example.com"})

	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected error for unknown engine")
	}
	if !strings.Contains(err.Error(), "unknown engine") {
		t.Errorf("expected 'unknown engine' error, got: %v", err)
	}
}

// TestRunScrapeCmdInvalidBaseURL tests the scrape command with a schemeless URL.
func TestRunScrapeCmdInvalidBaseURL(t *testing.T) {
	t.Parallel()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"scrape", "example.com"})

	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected error for schemeless base URL")
	}
	if !strings.Contains(err.Error(), "invalid base URL") {
		t.Errorf("expected 'invalid base URL' error, got: %v", err)
	}
}
