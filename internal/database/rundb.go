package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/romcoding/scraper/internal/model"
)

// RunDB provides SQLite-based storage for archive run history.
// It manages connection pooling and provides methods for CRUD operations.
//
// Design decision: We use a single database file for all archived sites
// rather than one file per site. This simplifies cross-site queries
// (listing sites, comparing runs) and backup/restore operations.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB at the specified path.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, "scraper.db")

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		// Check if database file exists
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string
	// We use modernc.org/sqlite which uses a different connection string format.
	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	// When CreateIfNotExists is true, we use mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	// SQLite doesn't benefit from multiple connections for writes,
	// but multiple readers can improve performance
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	// Enable WAL mode if requested
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Create tables
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	-- Run records store one row per archive run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		sitemap_url TEXT,
		engine TEXT,
		output_dir TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		duration_ms INTEGER,
		total INTEGER,
		archived INTEGER,
		failed INTEGER,
		skipped INTEGER,
		cancelled INTEGER DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	-- Page records store per-URL outcomes for cross-run change detection
	CREATE TABLE IF NOT EXISTS run_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		checksum TEXT,
		size INTEGER,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON run_pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON run_pages(url);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a complete run report.
// The report is saved whole as JSON for exact retrieval, and each page
// outcome is additionally stored as a relational row for cross-run queries.
// Returns the database ID of the stored run.
func (rdb *RunDB) SaveRun(ctx context.Context, report *model.RunReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op once committed

	runQuery := `
	INSERT INTO runs (site, sitemap_url, engine, output_dir, duration_ms,
		total, archived, failed, skipped, cancelled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, runQuery,
		report.BaseURL,
		report.SitemapURL,
		report.Engine,
		report.OutputDir,
		report.DurationMS,
		report.Total,
		report.Archived,
		report.Failed,
		report.Skipped,
		report.Cancelled,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	pageQuery := `
	INSERT INTO run_pages (run_id, url, path, status, error, checksum, size)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for i := range report.Pages {
		page := &report.Pages[i]
		_, err := tx.ExecContext(ctx, pageQuery,
			runID,
			page.URL,
			page.Path,
			string(page.Status),
			page.Error,
			page.Checksum,
			page.Size,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save page record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// GetLatestRun retrieves the most recent run report for a site.
// Returns nil without error when the site has never been archived.
func (rdb *RunDB) GetLatestRun(ctx context.Context, site string) (*model.RunReport, error) {
	// Ordered by id: CURRENT_TIMESTAMP only has second resolution.
	query := `
	SELECT report_json FROM runs
	WHERE site = ?
	ORDER BY id DESC
	LIMIT 1
	`

	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, query, site).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// GetRunByID retrieves a run report by its database ID.
// Returns nil without error when no run has that ID.
func (rdb *RunDB) GetRunByID(ctx context.Context, id int64) (*model.RunReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE id = ?
	`

	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListArchivedSites returns the base URL of every site with at least one run.
func (rdb *RunDB) ListArchivedSites(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT site FROM runs
	ORDER BY site
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying run history without loading the full report.
type RunMetadata struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// Site is the base URL the run archived.
	Site string

	// Timestamp is when the run was stored.
	Timestamp time.Time

	// DurationMS is the total run time in milliseconds.
	DurationMS int64

	// Total, Archived, Failed, and Skipped are the run's outcome counts.
	Total    int
	Archived int
	Failed   int
	Skipped  int

	// Cancelled is true when the run was interrupted.
	Cancelled bool
}

// GetRunHistory retrieves run metadata for a site, newest first.
// This is more efficient than loading full reports when only the
// summary rows are needed.
func (rdb *RunDB) GetRunHistory(ctx context.Context, site string) ([]RunMetadata, error) {
	// Ordered by id: CURRENT_TIMESTAMP only has second resolution.
	query := `
	SELECT id, site, timestamp, duration_ms, total, archived, failed, skipped, cancelled
	FROM runs
	WHERE site = ?
	ORDER BY id DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var timestamp string

		err := rows.Scan(
			&meta.ID,
			&meta.Site,
			&timestamp,
			&meta.DurationMS,
			&meta.Total,
			&meta.Archived,
			&meta.Failed,
			&meta.Skipped,
			&meta.Cancelled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}

		// Parse timestamp (SQLite may return different formats depending on version/configuration)
		meta.Timestamp = parseTimestamp(timestamp)

		results = append(results, meta)
	}

	return results, rows.Err()
}

// Change classifications reported by ChangedPages.
const (
	// ChangeAdded means the URL is archived in the newer run only.
	ChangeAdded = "added"

	// ChangeRemoved means the URL is archived in the older run only.
	ChangeRemoved = "removed"

	// ChangeModified means the URL is archived in both runs with
	// different content checksums.
	ChangeModified = "modified"
)

// PageChange describes how one URL differs between two archive runs.
type PageChange struct {
	// URL is the page URL being compared.
	URL string

	// Change is one of ChangeAdded, ChangeRemoved, or ChangeModified.
	Change string

	// OldChecksum is the page checksum in the older run, when present.
	OldChecksum string

	// NewChecksum is the page checksum in the newer run, when present.
	NewChecksum string
}

// ChangedPages compares the archived pages of two runs by content checksum.
// Pages that failed or were skipped in a run are not considered part of it;
// there is no archived content to compare. Results are sorted by URL.
func (rdb *RunDB) ChangedPages(ctx context.Context, oldRunID, newRunID int64) ([]PageChange, error) {
	oldPages, err := rdb.pageChecksums(ctx, oldRunID)
	if err != nil {
		return nil, err
	}

	newPages, err := rdb.pageChecksums(ctx, newRunID)
	if err != nil {
		return nil, err
	}

	var changes []PageChange
	for url, newSum := range newPages {
		oldSum, ok := oldPages[url]
		switch {
		case !ok:
			changes = append(changes, PageChange{URL: url, Change: ChangeAdded, NewChecksum: newSum})
		case oldSum != newSum:
			changes = append(changes, PageChange{
				URL:         url,
				Change:      ChangeModified,
				OldChecksum: oldSum,
				NewChecksum: newSum,
			})
		}
	}
	for url, oldSum := range oldPages {
		if _, ok := newPages[url]; !ok {
			changes = append(changes, PageChange{URL: url, Change: ChangeRemoved, OldChecksum: oldSum})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].URL < changes[j].URL })

	return changes, nil
}

// pageChecksums loads the checksum of every archived page in a run.
func (rdb *RunDB) pageChecksums(ctx context.Context, runID int64) (map[string]string, error) {
	query := `
	SELECT url, checksum FROM run_pages
	WHERE run_id = ? AND status = ?
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID, string(model.StatusArchived))
	if err != nil {
		return nil, fmt.Errorf("failed to query run pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string]string)
	for rows.Next() {
		var url string
		var checksum sql.NullString

		if err := rows.Scan(&url, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan page record: %w", err)
		}
		pages[url] = checksum.String
	}

	return pages, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	// Return zero time if no format matches
	// This is a fallback to avoid breaking functionality for edge cases
	return time.Time{}
}
