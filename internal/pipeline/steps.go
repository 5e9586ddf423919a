package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/romcoding/scraper/internal/archive"
	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/model"
	"github.com/romcoding/scraper/internal/pathmap"
	"github.com/romcoding/scraper/internal/sitemap"
	"golang.org/x/time/rate"
)

// LocateStep finds the sitemap URL for the run's base URL.
// It consults robots.txt and falls back to the conventional
// /sitemap.xml location.
//
// Design decision: Locating is a separate step because:
// 1. Its failure mode is distinct (an unreachable origin is fatal)
// 2. The sitemap URL is a reportable result on its own
// 3. A future flag could skip it when the user supplies the URL
type LocateStep struct {
	// cfg supplies the fetch timeout and user agent.
	cfg *config.Config

	// logger for structured logging.
	logger *slog.Logger
}

// LocateStepOption configures a LocateStep.
type LocateStepOption func(*LocateStep)

// WithLocateLogger sets a custom logger for the locate step.
func WithLocateLogger(logger *slog.Logger) LocateStepOption {
	return func(s *LocateStep) {
		s.logger = logger
	}
}

// NewLocateStep creates a new sitemap locating step.
func NewLocateStep(cfg *config.Config, opts ...LocateStepOption) *LocateStep {
	s := &LocateStep{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *LocateStep) Name() string {
	return "locate"
}

// Do executes the locate step.
func (s *LocateStep) Do(ctx context.Context, report *model.RunReport) error {
	opts := []sitemap.LocatorOption{
		sitemap.WithLocatorUserAgent(s.cfg.UserAgent),
		sitemap.WithLocatorLogger(s.logger),
	}
	if s.cfg.FetchTimeout > 0 {
		opts = append(opts, sitemap.WithLocatorClient(&http.Client{Timeout: s.cfg.FetchTimeout}))
	}

	locator := sitemap.NewLocator(opts...)

	sitemapURL, err := locator.Locate(ctx, report.BaseURL)
	if err != nil {
		return fmt.Errorf("locating sitemap: %w", err)
	}

	report.SitemapURL = sitemapURL
	s.logger.Info("sitemap located", "sitemap", sitemapURL)

	return nil
}

// ResolveStep expands the located sitemap into the ordered list of page
// URLs to archive. Sitemap indexes are resolved recursively; the URL
// list lands in the report for the planning and archiving steps.
//
// Design decision: Resolving is separate from locating because:
// 1. It has its own configuration (caps, exclude patterns, rate)
// 2. Its failure modes differ (root failure fatal, child failure warning)
// 3. It produces the data every later step works from
type ResolveStep struct {
	// cfg supplies caps, exclude patterns, and the page limit.
	cfg *config.Config

	// logger for structured logging.
	logger *slog.Logger
}

// ResolveStepOption configures a ResolveStep.
type ResolveStepOption func(*ResolveStep)

// WithResolveLogger sets a custom logger for the resolve step.
func WithResolveLogger(logger *slog.Logger) ResolveStepOption {
	return func(s *ResolveStep) {
		s.logger = logger
	}
}

// NewResolveStep creates a new sitemap resolving step.
func NewResolveStep(cfg *config.Config, opts ...ResolveStepOption) *ResolveStep {
	s := &ResolveStep{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return "resolve"
}

// Do executes the resolve step.
func (s *ResolveStep) Do(ctx context.Context, report *model.RunReport) error {
	if report.SitemapURL == "" {
		s.logger.Debug("skipping resolve, no sitemap located")
		return nil
	}

	opts := []sitemap.ParserOption{
		sitemap.WithParserUserAgent(s.cfg.UserAgent),
		sitemap.WithParserLogger(s.logger),
		sitemap.WithMaxSitemaps(s.cfg.MaxSitemaps),
		sitemap.WithMaxSitemapSize(s.cfg.MaxSitemapSize),
	}
	if s.cfg.FetchTimeout > 0 {
		opts = append(opts, sitemap.WithParserClient(&http.Client{Timeout: s.cfg.FetchTimeout}))
	}
	if len(s.cfg.ExcludePatterns) > 0 {
		opts = append(opts, sitemap.WithExcludePatterns(s.cfg.ExcludePatterns))
	}
	if s.cfg.RequestRate > 0 {
		opts = append(opts, sitemap.WithParserLimiter(
			rate.NewLimiter(rate.Limit(s.cfg.RequestRate), 1)))
	}

	parser, err := sitemap.NewParser(report.BaseURL, opts...)
	if err != nil {
		return fmt.Errorf("creating sitemap parser: %w", err)
	}

	discovery, err := parser.Discover(ctx, report.SitemapURL)
	if err != nil {
		return fmt.Errorf("resolving sitemap: %w", err)
	}

	for _, warning := range discovery.Warnings {
		report.AddWarning(warning)
	}

	urls := discovery.URLs
	if s.cfg.MaxPages > 0 && len(urls) > s.cfg.MaxPages {
		s.logger.Warn("page limit reached",
			"listed", len(urls),
			"limit", s.cfg.MaxPages,
		)
		report.AddWarning(fmt.Sprintf(
			"sitemap lists %d pages, archiving the first %d", len(urls), s.cfg.MaxPages))
		urls = urls[:s.cfg.MaxPages]
	}

	report.URLs = urls
	report.Total = len(urls)

	s.logger.Info("sitemap resolved",
		"pages", len(urls),
		"documents", discovery.Documents,
		"filtered", discovery.Filtered,
		"excluded", discovery.Excluded,
		"duplicates", discovery.Duplicates,
	)

	return nil
}

// PlanStep maps every resolved page URL to the file path its archive
// will be written to, and creates the output root.
//
// Design decision: Planning runs as its own step before any page is
// fetched because:
// 1. Collision suffixes depend on the whole URL list, not one URL
// 2. A path mapping failure should abort before network work starts
// 3. Workers can then write files without coordinating on names
type PlanStep struct {
	// cfg supplies the output directory.
	cfg *config.Config

	// logger for structured logging.
	logger *slog.Logger
}

// PlanStepOption configures a PlanStep.
type PlanStepOption func(*PlanStep)

// WithPlanLogger sets a custom logger for the plan step.
func WithPlanLogger(logger *slog.Logger) PlanStepOption {
	return func(s *PlanStep) {
		s.logger = logger
	}
}

// NewPlanStep creates a new path planning step.
func NewPlanStep(cfg *config.Config, opts ...PlanStepOption) *PlanStep {
	s := &PlanStep{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PlanStep) Name() string {
	return "plan"
}

// Do executes the plan step.
func (s *PlanStep) Do(_ context.Context, report *model.RunReport) error {
	if len(report.URLs) == 0 {
		s.logger.Debug("skipping plan, no pages resolved")
		return nil
	}

	paths, err := pathmap.Resolve(report.URLs)
	if err != nil {
		return fmt.Errorf("planning archive paths: %w", err)
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	report.Paths = paths
	report.OutputDir = s.cfg.OutputDir

	s.logger.Debug("archive paths planned",
		"pages", len(paths),
		"output_dir", s.cfg.OutputDir,
	)

	return nil
}

// ArchiveStep captures every planned page through the configured engine
// and writes the results under the output directory.
//
// Design decision: The engine is created inside Do rather than at step
// construction because:
// 1. A chrome engine holds a browser allocator; it should not exist
//    while the sitemap is still being resolved
// 2. Engine teardown belongs to the step that created it
// 3. A broken engine configuration surfaces where it is acted on
type ArchiveStep struct {
	// cfg selects the engine and supplies worker and timeout settings.
	cfg *config.Config

	// logger for structured logging.
	logger *slog.Logger
}

// ArchiveStepOption configures an ArchiveStep.
type ArchiveStepOption func(*ArchiveStep)

// WithArchiveLogger sets a custom logger for the archive step.
func WithArchiveLogger(logger *slog.Logger) ArchiveStepOption {
	return func(s *ArchiveStep) {
		s.logger = logger
	}
}

// NewArchiveStep creates a new page archiving step.
func NewArchiveStep(cfg *config.Config, opts ...ArchiveStepOption) *ArchiveStep {
	s := &ArchiveStep{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return "archive"
}

// Do executes the archive step.
func (s *ArchiveStep) Do(ctx context.Context, report *model.RunReport) error {
	if len(report.URLs) == 0 {
		s.logger.Debug("skipping archive, no pages resolved")
		return nil
	}
	if len(report.Paths) != len(report.URLs) {
		return fmt.Errorf("have %d pages but %d planned paths", len(report.URLs), len(report.Paths))
	}

	engine, err := archive.NewEngine(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("creating archive engine: %w", err)
	}
	defer engine.Close() //nolint:errcheck // Best effort cleanup

	report.Engine = engine.Name()

	tasks := make([]Task, len(report.URLs))
	for i := range report.URLs {
		tasks[i] = Task{URL: report.URLs[i], Path: report.Paths[i]}
	}

	pool := NewPool(engine, s.cfg.OutputDir,
		WithPoolConcurrency(s.cfg.Concurrency),
		WithPoolLogger(s.logger),
	)

	results, err := pool.Process(ctx, tasks)
	report.Pages = results

	// A cancelled run is not a step failure: partial results stand and
	// the report still gets written
	if ctx.Err() != nil {
		report.Cancelled = true
		s.logger.Warn("archiving cancelled", "url", report.BaseURL)
		return nil
	}
	if err != nil {
		return fmt.Errorf("archiving pages: %w", err)
	}

	return nil
}

// DefaultPipeline creates a pipeline with all archive steps configured.
// This is the standard pipeline for a full archive run.
//
// Design decision: We provide a default pipeline because:
// 1. Most runs want the full locate/resolve/plan/archive sequence
// 2. Reduces boilerplate in CLI
// 3. Ensures consistent ordering
func DefaultPipeline(cfg *config.Config, opts ...Option) *Pipeline {
	p := New(opts...)

	p.AddSteps(
		NewLocateStep(cfg, WithLocateLogger(p.logger)),
		NewResolveStep(cfg, WithResolveLogger(p.logger)),
		NewPlanStep(cfg, WithPlanLogger(p.logger)),
		NewArchiveStep(cfg, WithArchiveLogger(p.logger)),
	)

	return p
}
