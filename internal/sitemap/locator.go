package sitemap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps how much of robots.txt is read. Google's crawler
// stops at 500KB, so nothing meaningful lives beyond that point.
const maxRobotsSize = 512 * 1024

// Locator discovers the sitemap URL for a site origin.
//
// Discovery follows the sitemaps.org convention: the robots.txt Sitemap
// directive is authoritative when present, and {origin}/sitemap.xml is
// the fallback location when it is not.
type Locator struct {
	// client performs the robots.txt fetch.
	client *http.Client

	// userAgent is the User-Agent header to use.
	userAgent string

	// logger records discovery progress.
	logger *slog.Logger
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithLocatorClient sets a custom HTTP client.
func WithLocatorClient(client *http.Client) LocatorOption {
	return func(l *Locator) {
		l.client = client
	}
}

// WithLocatorUserAgent sets a custom User-Agent header.
func WithLocatorUserAgent(ua string) LocatorOption {
	return func(l *Locator) {
		l.userAgent = ua
	}
}

// WithLocatorLogger sets the logger for discovery progress.
func WithLocatorLogger(logger *slog.Logger) LocatorOption {
	return func(l *Locator) {
		l.logger = logger
	}
}

// NewLocator creates a new Locator.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "Scraper/1.0 (+https://github.com/romcoding/scraper)",
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Locate returns the sitemap URL for the given origin.
//
// It fetches {origin}/robots.txt and returns the first usable Sitemap
// directive found there. When robots.txt is missing, unparseable, or
// silent about sitemaps, it falls back to {origin}/sitemap.xml without
// probing it; whether that document exists is the parser's problem.
//
// A transport-level failure fetching robots.txt means the origin itself
// is down, so Locate returns ErrOriginUnreachable rather than guessing.
func (l *Locator) Locate(ctx context.Context, origin string) (string, error) {
	origin = strings.TrimSuffix(origin, "/")
	robotsURL := origin + "/robots.txt"
	fallback := origin + "/sitemap.xml"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return "", fmt.Errorf("building robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		// Cancellation is not unreachability
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrOriginUnreachable, err)
	}
	defer resp.Body.Close()

	// Any HTTP error response means robots.txt has nothing to tell us,
	// not that the origin is down
	if resp.StatusCode != http.StatusOK {
		l.logger.Debug("robots.txt not available, using fallback",
			"status", resp.StatusCode,
			"sitemap", fallback)
		return fallback, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: reading robots.txt: %v", ErrOriginUnreachable, err)
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		l.logger.Debug("robots.txt unparseable, using fallback",
			"error", err,
			"sitemap", fallback)
		return fallback, nil
	}

	// Directives are returned in file order; the first usable one wins
	for _, directive := range robots.Sitemaps {
		resolved, ok := resolveSitemapURL(origin, directive)
		if !ok {
			l.logger.Warn("skipping malformed Sitemap directive", "value", directive)
			continue
		}
		l.logger.Debug("sitemap found in robots.txt", "sitemap", resolved)
		return resolved, nil
	}

	l.logger.Debug("no Sitemap directive in robots.txt, using fallback",
		"sitemap", fallback)
	return fallback, nil
}

// resolveSitemapURL validates a Sitemap directive value, resolving relative
// values against the origin. The protocol requires absolute URLs, but
// relative ones are common enough in the wild to tolerate.
func resolveSitemapURL(origin, value string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", false
	}

	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", false
		}
		return u.String(), true
	}

	base, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}
