package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are chosen for polite archiving of production websites.
// All of them can be overridden via CLI flags or the configuration file.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "scraper"

	// DefaultOutputDir is where archived pages are written when --output
	// is not given. A relative path keeps the archive next to the
	// invocation instead of hiding it in a system directory.
	DefaultOutputDir = "./output"

	// DefaultConcurrency is the number of archive workers running at once.
	// Three workers keep a typical site busy without hammering the origin
	// server. Values above four rarely help because page rendering,
	// not the network, dominates archive time.
	DefaultConcurrency = 3

	// MaxConcurrency caps the --concurrency flag. Each worker owns a
	// browser session, and dozens of simultaneous headless browsers
	// exhaust memory long before they improve throughput.
	MaxConcurrency = 64

	// DefaultPageTimeout bounds a single page end to end: navigation,
	// rendering, and resource inlining. 30 seconds is generous for
	// script-heavy pages while keeping one stuck page from stalling
	// a worker indefinitely.
	DefaultPageTimeout = 30 * time.Second

	// DefaultFetchTimeout bounds plain HTTP fetches of robots.txt and
	// sitemap documents. These are small files; a server that cannot
	// produce one in 30 seconds is effectively unreachable.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultUserAgent identifies the archiver in HTTP requests.
	// A descriptive User-Agent lets site operators identify archive
	// traffic in their logs.
	DefaultUserAgent = "Scraper/1.0 (+https://github.com/romcoding/scraper)"

	// DefaultMaxSitemapSize limits the size of a single sitemap document.
	// The sitemaps.org protocol caps uncompressed sitemaps at 50MB, so
	// anything larger is malformed and reading it would only risk
	// memory exhaustion.
	DefaultMaxSitemapSize = 50 * 1024 * 1024 // 50MB

	// DefaultMaxAssetSize limits the size of a single inlined resource
	// (stylesheet or image). Pages referencing larger assets keep the
	// original absolute URL instead of embedding the data.
	DefaultMaxAssetSize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxSitemaps caps how many sitemap documents one run fetches
	// while expanding nested sitemap index files. Fifty documents at the
	// protocol's 50,000 URLs each covers far larger sites than a single
	// archive run can handle anyway.
	DefaultMaxSitemaps = 50

	// DefaultMaxPages is the maximum number of pages to archive per run.
	// Zero means no limit: the run archives every URL the sitemap lists.
	DefaultMaxPages = 0

	// DefaultRequestRate is the limit on HTTP requests per second for
	// sitemap fetches and static-engine downloads. Zero disables
	// rate limiting.
	DefaultRequestRate = 0
)

// Engine names accepted by the --engine flag.
const (
	// EngineChrome archives through a headless Chrome browser and
	// captures the DOM after JavaScript execution.
	EngineChrome = "chrome"

	// EngineStatic archives with a plain HTTP client and inlines
	// resources by rewriting the raw HTML. It needs no browser binary
	// but does not execute JavaScript.
	EngineStatic = "static"
)

// Config holds all configuration options for an archive run.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., SitemapConfig, EngineConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
// If the configuration grows significantly, consider refactoring into sub-structs.
type Config struct {
	// BaseURL is the site origin to archive, e.g. "https://example.com".
	// The sitemap is discovered from this origin and only same-origin
	// URLs are archived.
	BaseURL string

	// OutputDir is the directory that receives the archived HTML tree
	// and the run report. It is created if it does not exist.
	OutputDir string

	// Concurrency is the number of archive workers running at once.
	// Each worker owns its own engine session.
	Concurrency int

	// PageTimeout bounds a single page: navigation, rendering, and
	// resource inlining together. A page exceeding it is recorded as
	// failed and the run moves on.
	PageTimeout time.Duration

	// FetchTimeout bounds each robots.txt and sitemap fetch.
	FetchTimeout time.Duration

	// Engine selects how pages are fetched and flattened.
	// Must be EngineChrome or EngineStatic.
	Engine string

	// UserAgent is the User-Agent header sent with every HTTP request,
	// including requests issued by the headless browser.
	UserAgent string

	// Cookie is sent as the Cookie header with every page request.
	// Populated from the per-site configuration file, never from flags,
	// so credentials stay out of shell history.
	Cookie string

	// Headers are extra HTTP headers sent with every page request.
	// Populated from the per-site configuration file.
	Headers map[string]string

	// MaxPages caps how many sitemap URLs are archived in one run.
	// URLs beyond the cap are reported as skipped. Zero means no cap.
	MaxPages int

	// MaxSitemaps caps how many sitemap documents are fetched while
	// expanding nested sitemap index files. Zero means no cap.
	MaxSitemaps int

	// MaxSitemapSize is the maximum size in bytes of one sitemap document.
	MaxSitemapSize int64

	// MaxAssetSize is the maximum size in bytes of one inlined resource.
	// Larger resources keep their absolute URL instead of being embedded.
	MaxAssetSize int64

	// RequestRate limits HTTP requests per second across the run.
	// Zero disables rate limiting.
	RequestRate float64

	// ExcludePatterns are path globs matched against each sitemap URL's
	// path. Matching URLs are not archived.
	ExcludePatterns []string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only info, warnings, and errors are logged.
	Verbose bool

	// MarkdownReport additionally writes a GitHub Flavored Markdown
	// report next to report.json in the output directory.
	MarkdownReport bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .scraper.yaml in the current
	// directory and then in the XDG config directory.
	ConfigFilePath string

	// SiteConfigs holds per-site settings loaded from the config file.
	// This is populated by LoadConfigFile and applied before a run starts.
	SiteConfigs *File

	// DBDir is the directory path for storing the SQLite run-history
	// database. When empty, runs are not persisted.
	// Defaults to the XDG data directory (~/.local/share/scraper on Linux).
	DBDir string

	// SaveToDB indicates whether to record the run in the history
	// database. Disabled by the --no-history flag.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeouts, limits).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		OutputDir:      DefaultOutputDir,
		Concurrency:    DefaultConcurrency,
		PageTimeout:    DefaultPageTimeout,
		FetchTimeout:   DefaultFetchTimeout,
		Engine:         EngineChrome,
		UserAgent:      DefaultUserAgent,
		MaxPages:       DefaultMaxPages,
		MaxSitemaps:    DefaultMaxSitemaps,
		MaxSitemapSize: DefaultMaxSitemapSize,
		MaxAssetSize:   DefaultMaxAssetSize,
		RequestRate:    DefaultRequestRate,
	}
}

// ApplySiteConfig overlays per-site settings onto the run configuration.
// Only fields the site entry actually sets are applied, so flag values
// survive unless the config file has an entry for this host.
func (c *Config) ApplySiteConfig(site SiteConfig) {
	if site.UserAgent != "" {
		c.UserAgent = site.UserAgent
	}
	if site.Cookie != "" {
		c.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(site.Headers))
		}
		for k, v := range site.Headers {
			c.Headers[k] = v
		}
	}
	if site.Engine != "" {
		c.Engine = site.Engine
	}
	if site.RequestRate != 0 {
		c.RequestRate = site.RequestRate
	}
	if len(site.ExcludePatterns) > 0 {
		c.ExcludePatterns = append(c.ExcludePatterns, site.ExcludePatterns...)
	}
}

// XDGDataDir returns the XDG data directory for the archiver.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/scraper
// On macOS: ~/Library/Application Support/scraper
// On Windows: %LOCALAPPDATA%\scraper
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the archiver.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.config/scraper
// On macOS: ~/Library/Application Support/scraper
// On Windows: %APPDATA%\scraper
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any archiving begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	// We must have an origin to archive
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}

	// The base URL must be absolute so an origin can be derived from it
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidBaseURL
	}

	// The archive has to land somewhere
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	// Concurrency must stay within the worker-pool bounds
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return ErrInvalidConcurrency
	}

	// Timeouts must be positive; zero would cause immediate failures
	if c.PageTimeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}

	// The engine name must be one the registry knows
	if c.Engine != EngineChrome && c.Engine != EngineStatic {
		return ErrUnknownEngine
	}

	// Page and sitemap caps must be non-negative; zero means unlimited
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxSitemaps < 0 {
		return ErrInvalidMaxSitemaps
	}

	// Size limits must be non-negative
	if c.MaxSitemapSize < 0 || c.MaxAssetSize < 0 {
		return ErrInvalidSizeLimit
	}

	// Rate must be non-negative; zero disables limiting
	if c.RequestRate < 0 {
		return ErrInvalidRequestRate
	}

	return nil
}

// Origin returns the scheme://host form of BaseURL with any path, query,
// or fragment stripped. Validate must have accepted the config first.
func (c *Config) Origin() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	return u.Scheme + "://" + u.Host
}
