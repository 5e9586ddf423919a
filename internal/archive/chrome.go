package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/model"
)

// renderSettle is how long a page gets to finish lazy loads after the
// scroll pass before its DOM is captured.
const renderSettle = time.Second

// scrollScript walks the viewport down the page to trigger lazy-loaded
// content, then returns to the top so the capture starts from a clean
// scroll position.
const scrollScript = `
	const step = 300;
	let current = 0;
	const timer = setInterval(() => {
		window.scrollBy(0, step);
		current += step;
		if (current >= document.body.scrollHeight) {
			clearInterval(timer);
			window.scrollTo(0, 0);
		}
	}, 100);
`

// ChromeEngine archives pages through a headless Chrome browser, so pages
// that build their content with JavaScript are captured as rendered.
//
// The engine owns the browser allocator; every session gets its own
// browser context, which isolates page state between workers. Resource
// inlining runs outside the browser on the captured DOM, through the same
// Inliner the static engine uses.
type ChromeEngine struct {
	// allocCtx is the shared Chrome allocator all sessions derive from.
	allocCtx context.Context

	// allocCancel tears down the allocator and its browser processes.
	allocCancel context.CancelFunc

	// cfg carries the run settings sessions need.
	cfg *config.Config

	// limiter paces asset fetches across all sessions.
	limiter *rate.Limiter

	// logger records engine activity.
	logger *slog.Logger
}

// NewChromeEngine creates the headless-Chrome engine. The browser itself
// starts lazily with the first session.
func NewChromeEngine(cfg *config.Config, logger *slog.Logger) *ChromeEngine {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeEngine{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		cfg:         cfg,
		limiter:     newLimiter(cfg.RequestRate),
		logger:      logger,
	}
}

// Name returns the engine identifier.
func (e *ChromeEngine) Name() string {
	return config.EngineChrome
}

// NewSession starts a browser context for one worker.
func (e *ChromeEngine) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(e.allocCtx)

	// Run with no actions launches the browser now, so a broken Chrome
	// install surfaces at session creation rather than on the first page.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("starting chrome session: %w", err)
	}

	// Configured headers and cookie ride on every browser request
	if headers := e.extraHeaders(); len(headers) > 0 {
		if err := chromedp.Run(tabCtx, network.Enable(), network.SetExtraHTTPHeaders(headers)); err != nil {
			cancel()
			return nil, fmt.Errorf("configuring chrome session headers: %w", err)
		}
	}

	return &ChromeSession{
		tabCtx:      tabCtx,
		cancel:      cancel,
		inliner:     NewInliner(newHTTPClient(e.cfg), e.cfg.MaxAssetSize, e.limiter, e.logger),
		pageTimeout: e.cfg.PageTimeout,
		logger:      e.logger,
	}, nil
}

// extraHeaders collects the configured headers and cookie in the form
// network.SetExtraHTTPHeaders expects.
func (e *ChromeEngine) extraHeaders() network.Headers {
	headers := make(network.Headers, len(e.cfg.Headers)+1)
	for key, value := range e.cfg.Headers {
		headers[key] = value
	}
	if e.cfg.Cookie != "" {
		headers["Cookie"] = e.cfg.Cookie
	}
	return headers
}

// Close shuts down the browser and every remaining session.
func (e *ChromeEngine) Close() error {
	e.allocCancel()
	return nil
}

// ChromeSession drives one browser context. Not safe for concurrent use;
// each worker owns its session exclusively.
type ChromeSession struct {
	// tabCtx is the session's chromedp browser context.
	tabCtx context.Context

	// cancel releases the browser context.
	cancel context.CancelFunc

	// inliner embeds sub-resources into the captured DOM.
	inliner *Inliner

	// pageTimeout bounds one page's render plus inlining.
	pageTimeout time.Duration

	// logger records page-level progress.
	logger *slog.Logger
}

// Archive renders the page, captures its DOM, and inlines its resources.
func (s *ChromeSession) Archive(ctx context.Context, pageURL string) (*model.ArchivedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// One deadline covers rendering and inlining. chromedp actions must
	// run on the session's browser context, so the deadline is applied to
	// both context chains.
	deadline := time.Now().Add(s.pageTimeout)
	runCtx, cancelRun := context.WithDeadline(s.tabCtx, deadline)
	defer cancelRun()
	inlineCtx, cancelInline := context.WithDeadline(ctx, deadline)
	defer cancelInline()

	var rendered string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(scrollScript, nil),
		chromedp.Sleep(renderSettle),
		chromedp.OuterHTML("html", &rendered),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrPageLoadTimeout, pageURL)
		}
		return nil, fmt.Errorf("rendering page: %w", err)
	}

	html, failures, err := s.inliner.Inline(inlineCtx, pageURL, []byte(rendered))
	if err != nil {
		return nil, fmt.Errorf("inlining resources: %w", err)
	}

	page := &model.ArchivedPage{
		URL:            pageURL,
		HTML:           html,
		FetchedAt:      time.Now(),
		InlineFailures: failures,
	}
	page.ComputeChecksum()

	return page, nil
}

// Close releases the session's browser context.
func (s *ChromeSession) Close() error {
	s.cancel()
	return nil
}
