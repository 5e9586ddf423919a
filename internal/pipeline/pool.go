package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/romcoding/scraper/internal/archive"
	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/model"
	"golang.org/x/sync/errgroup"
)

// Task pairs a page URL with the output-relative path its archive is
// written to.
type Task struct {
	// URL is the page to archive.
	URL string

	// Path is the file path for the archived page, relative to the
	// output directory.
	Path string
}

// Pool archives pages concurrently through a fixed set of workers.
//
// Design decision: Workers are spawned up front and each owns one
// engine session for its lifetime, rather than capping goroutines with
// errgroup.SetLimit, because:
// 1. A chrome session is a browser tab; opening one per page would pay
//    the setup cost for every single page
// 2. Session state (cookies, the asset cache) carries across the pages
//    one worker handles
// 3. An index-carrying job channel lands results in sitemap order
//    without locking
type Pool struct {
	// engine produces one archive session per worker.
	engine archive.Engine

	// outputDir is the root directory archived pages are written under.
	outputDir string

	// concurrency is the number of workers, and therefore the number
	// of live engine sessions.
	concurrency int

	// logger is used for per-page progress logging.
	logger *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of archive workers.
// Default is config.DefaultConcurrency if not specified.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPoolLogger sets a custom logger for the pool.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a Pool writing archived pages under outputDir.
func NewPool(engine archive.Engine, outputDir string, opts ...PoolOption) *Pool {
	p := &Pool{
		engine:      engine,
		outputDir:   outputDir,
		concurrency: config.DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Process archives every task and returns one result per task, aligned
// by index with the input. Page failures are recorded in the results
// rather than returned; the error covers session setup failures and
// run cancellation.
//
// On cancellation, dispatch stops, pages already being captured run to
// completion so no half-written file is left behind, and tasks never
// attempted come back with status skipped.
func (p *Pool) Process(ctx context.Context, tasks []Task) ([]model.PageResult, error) {
	results := make([]model.PageResult, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	workers := min(p.concurrency, len(tasks))

	p.logger.Info("starting archive workers",
		"total_pages", len(tasks),
		"workers", workers,
		"engine", p.engine.Name(),
	)

	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := range tasks {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			session, err := p.engine.NewSession(gctx)
			if err != nil {
				return fmt.Errorf("creating %s session: %w", p.engine.Name(), err)
			}
			defer session.Close() //nolint:errcheck // Best effort cleanup

			for i := range jobs {
				// Do not start new pages once the run is cancelled
				if gctx.Err() != nil {
					continue
				}

				// A page already started runs to completion under its
				// own page timeout, so cancellation cannot leave a
				// half-written file behind
				results[i] = p.archivePage(context.WithoutCancel(gctx), session, tasks[i])
			}
			return nil
		})
	}

	err := g.Wait()

	// Tasks never attempted still hold their zero value; report them
	// as skipped so every input URL has an outcome
	for i := range results {
		if results[i].Status == "" {
			results[i] = model.PageResult{
				URL:    tasks[i].URL,
				Path:   tasks[i].Path,
				Status: model.StatusSkipped,
			}
		}
	}

	p.logger.Info("archive workers finished",
		"total_pages", len(tasks),
		"elapsed", time.Since(startTime),
	)

	if err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// archivePage captures one page and writes it to disk, translating the
// outcome into a PageResult.
func (p *Pool) archivePage(ctx context.Context, session archive.Session, task Task) model.PageResult {
	p.logger.Info("archiving page", "url", task.URL)

	startTime := time.Now()

	result := model.PageResult{
		URL:  task.URL,
		Path: task.Path,
	}

	page, err := session.Archive(ctx, task.URL)
	if err != nil {
		result.Status = model.StatusFailed
		result.Error = err.Error()
		result.DurationMS = time.Since(startTime).Milliseconds()

		p.logger.Warn("page failed",
			"url", task.URL,
			"error", err,
		)
		return result
	}

	if err := p.writePage(task.Path, page.HTML); err != nil {
		result.Status = model.StatusFailed
		result.Error = err.Error()
		result.DurationMS = time.Since(startTime).Milliseconds()

		p.logger.Warn("page failed",
			"url", task.URL,
			"error", err,
		)
		return result
	}

	result.Status = model.StatusArchived
	result.Checksum = page.Checksum
	result.Size = int64(len(page.HTML))
	result.InlineFailures = page.InlineFailures
	result.DurationMS = time.Since(startTime).Milliseconds()

	p.logger.Info("page archived",
		"url", task.URL,
		"path", task.Path,
		"bytes", result.Size,
		"inline_failures", result.InlineFailures,
		"duration", time.Since(startTime).Round(time.Millisecond),
	)

	return result
}

// writePage writes archived HTML to its planned path, creating parent
// directories as needed. Archived pages are world-readable; they are
// the published artifact, unlike reports which may carry warnings
// about the site.
func (p *Pool) writePage(relPath string, html []byte) error {
	fullPath := filepath.Join(p.outputDir, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("creating page directory: %w", err)
	}

	if err := os.WriteFile(fullPath, html, 0644); err != nil { //nolint:gosec // published content
		return fmt.Errorf("writing page: %w", err)
	}

	return nil
}
