package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoBaseURL is returned when no base URL is specified.
	// The scrape command requires a site origin as its positional argument.
	ErrNoBaseURL = errors.New("no base URL specified: provide a site origin such as https://example.com")

	// ErrInvalidBaseURL is returned when the base URL cannot be parsed
	// as an absolute http or https URL. An origin cannot be derived from
	// a relative or schemeless value.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrNoOutputDir is returned when the output directory is empty.
	ErrNoOutputDir = errors.New("no output directory specified")

	// ErrInvalidConcurrency is returned when concurrency is outside the
	// worker-pool bounds. Zero workers would archive nothing, and each
	// worker owns a browser session, so the upper bound is deliberate.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be between 1 and 64")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	// A timeout of zero or negative would cause immediate failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrUnknownEngine is returned when the engine name is not one the
	// engine registry provides.
	ErrUnknownEngine = errors.New(`unknown engine: must be "chrome" or "static"`)

	// ErrInvalidMaxPages is returned when the page cap is negative.
	// Use 0 to archive every URL the sitemap lists.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxSitemaps is returned when the sitemap cap is negative.
	// Use 0 to expand sitemap indexes without a cap.
	ErrInvalidMaxSitemaps = errors.New("invalid max sitemaps: must be non-negative")

	// ErrInvalidSizeLimit is returned when a size limit is negative.
	// Use 0 to disable the corresponding limit.
	ErrInvalidSizeLimit = errors.New("invalid size limit: must be non-negative")

	// ErrInvalidRequestRate is returned when the request rate is negative.
	// Use 0 to disable rate limiting.
	ErrInvalidRequestRate = errors.New("invalid request rate: must be non-negative")
)
