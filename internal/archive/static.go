package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/model"
)

// StaticEngine archives pages by fetching their served markup over plain
// HTTP. It sees no JavaScript-built content, which makes it the right
// engine for classic server-rendered sites: no browser install, far less
// memory, and pages archive in one round trip plus assets.
type StaticEngine struct {
	// cfg carries the run settings sessions need.
	cfg *config.Config

	// limiter paces page and asset fetches across all sessions.
	limiter *rate.Limiter

	// logger records engine activity.
	logger *slog.Logger
}

// NewStaticEngine creates the plain-HTTP engine.
func NewStaticEngine(cfg *config.Config, logger *slog.Logger) *StaticEngine {
	return &StaticEngine{
		cfg:     cfg,
		limiter: newLimiter(cfg.RequestRate),
		logger:  logger,
	}
}

// Name returns the engine identifier.
func (e *StaticEngine) Name() string {
	return config.EngineStatic
}

// NewSession creates a session with its own client and cookie state.
func (e *StaticEngine) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := newHTTPClient(e.cfg)

	return &StaticSession{
		client:      client,
		inliner:     NewInliner(client, e.cfg.MaxAssetSize, e.limiter, e.logger),
		pageTimeout: e.cfg.PageTimeout,
		limiter:     e.limiter,
		logger:      e.logger,
	}, nil
}

// Close releases engine resources. The static engine holds none.
func (e *StaticEngine) Close() error {
	return nil
}

// StaticSession archives pages over one HTTP client with its own cookie
// jar. Not safe for concurrent use; each worker owns its session
// exclusively.
type StaticSession struct {
	// client performs the page fetches.
	client *http.Client

	// inliner embeds sub-resources into the fetched markup.
	inliner *Inliner

	// pageTimeout bounds one page's fetch plus inlining.
	pageTimeout time.Duration

	// limiter paces page fetches. Shared with the inliner.
	limiter *rate.Limiter

	// logger records page-level progress.
	logger *slog.Logger
}

// Archive fetches the page and inlines its resources.
func (s *StaticSession) Archive(ctx context.Context, pageURL string) (*model.ArchivedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.pageTimeout)
	defer cancel()

	body, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrPageLoadTimeout, pageURL)
		}
		return nil, err
	}

	html, failures, err := s.inliner.Inline(ctx, pageURL, body)
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

// fetchPage retrieves the page markup, decoded to UTF-8.
func (s *StaticSession) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building page request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching page: unexpected status %d", resp.StatusCode)
	}

	// Decode to UTF-8 under the declared charset; the HTML parser and the
	// written archive both expect UTF-8
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading page: %w", err)
	}

	return body, nil
}

// Close releases the session. The HTTP client needs no teardown.
func (s *StaticSession) Close() error {
	return nil
}
