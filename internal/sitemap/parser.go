package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Parser expands a sitemap tree into the ordered list of page URLs to
// archive. It fetches sitemap documents over HTTP, follows sitemap index
// references depth-first, and applies the same-origin rule relative to
// the origin the run was started for.
type Parser struct {
	// client performs sitemap fetches.
	client *http.Client

	// origin is the archived site's origin. Only URLs on its host
	// survive collection, no matter which document listed them.
	origin *url.URL

	// userAgent is the User-Agent header to use.
	userAgent string

	// logger records discovery progress.
	logger *slog.Logger

	// maxSize limits the size of a single sitemap document in bytes.
	// 0 means unlimited.
	maxSize int64

	// maxDocs limits how many sitemap documents one run fetches.
	// 0 means unlimited.
	maxDocs int

	// excludePatterns are URL path patterns to drop during collection.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	excludePatterns []string

	// limiter paces sitemap fetches when politeness is requested.
	limiter *rate.Limiter
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithParserClient sets a custom HTTP client.
func WithParserClient(client *http.Client) ParserOption {
	return func(p *Parser) {
		p.client = client
	}
}

// WithParserUserAgent sets a custom User-Agent header.
func WithParserUserAgent(ua string) ParserOption {
	return func(p *Parser) {
		p.userAgent = ua
	}
}

// WithParserLogger sets the logger for discovery progress.
func WithParserLogger(logger *slog.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithMaxSitemapSize sets the maximum size of a single sitemap document.
// 0 means unlimited.
func WithMaxSitemapSize(size int64) ParserOption {
	return func(p *Parser) {
		p.maxSize = size
	}
}

// WithMaxSitemaps sets the maximum number of sitemap documents to fetch
// while expanding index files. 0 means unlimited.
func WithMaxSitemaps(n int) ParserOption {
	return func(p *Parser) {
		p.maxDocs = n
	}
}

// WithExcludePatterns sets URL path patterns to drop during collection.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/drafts*").
func WithExcludePatterns(patterns []string) ParserOption {
	return func(p *Parser) {
		p.excludePatterns = patterns
	}
}

// WithParserLimiter sets a rate limiter applied before each sitemap fetch.
func WithParserLimiter(limiter *rate.Limiter) ParserOption {
	return func(p *Parser) {
		p.limiter = limiter
	}
}

// NewParser creates a Parser for the given site origin.
func NewParser(origin string, opts ...ParserOption) (*Parser, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: missing host", origin)
	}

	p := &Parser{
		client:    &http.Client{Timeout: 30 * time.Second},
		origin:    u,
		userAgent: "Scraper/1.0 (+https://github.com/romcoding/scraper)",
		logger:    slog.Default(),
		maxSize:   50 * 1024 * 1024, // 50MB, the sitemaps.org cap
		maxDocs:   50,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Discovery holds the outcome of expanding a sitemap tree.
type Discovery struct {
	// URLs are the same-origin page URLs to archive, in document order
	// with duplicates removed (first occurrence wins its position).
	URLs []string

	// Warnings records child sitemap failures and skipped references.
	// The run continues past these; they surface in the final report.
	Warnings []string

	// Documents counts sitemap documents successfully parsed.
	Documents int

	// Filtered counts URLs dropped by the same-origin rule or because
	// they could not be parsed.
	Filtered int

	// Excluded counts URLs dropped by exclude patterns.
	Excluded int

	// Duplicates counts URLs dropped by deduplication.
	Duplicates int

	// capWarned tracks that the document cap warning was already recorded.
	capWarned bool
}

// AddWarning records a non-fatal problem encountered during discovery.
func (d *Discovery) AddWarning(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

// Discover expands the sitemap tree rooted at rootURL and returns the
// ordered list of page URLs to archive.
//
// Ordering follows the documents: URLs appear in the order their sitemap
// lists them, with index children expanded depth-first in place.
// A failure on the root document is fatal and reported as
// ErrInvalidSitemap; failures on child documents become warnings and the
// rest of the tree still contributes.
func (p *Parser) Discover(ctx context.Context, rootURL string) (*Discovery, error) {
	d := &Discovery{}
	visited := make(map[string]bool)
	seen := make(map[string]bool)

	if err := p.walk(ctx, rootURL, true, visited, seen, d); err != nil {
		return nil, err
	}

	p.logger.Info("sitemap discovery complete",
		"documents", d.Documents,
		"urls", len(d.URLs),
		"filtered", d.Filtered,
		"excluded", d.Excluded,
		"duplicates", d.Duplicates,
		"warnings", len(d.Warnings))

	return d, nil
}

// walk fetches and processes one sitemap document, recursing into index
// children. The visited set breaks reference cycles between documents;
// the seen set deduplicates page URLs across documents.
func (p *Parser) walk(ctx context.Context, sitemapURL string, isRoot bool, visited, seen map[string]bool, d *Discovery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	norm := normalizeURL(sitemapURL)
	if visited[norm] {
		p.logger.Debug("sitemap already visited, skipping", "sitemap", sitemapURL)
		return nil
	}
	visited[norm] = true

	if p.maxDocs > 0 && d.Documents >= p.maxDocs {
		if !d.capWarned {
			d.capWarned = true
			d.AddWarning(fmt.Sprintf("sitemap cap of %d documents reached, remaining sitemaps skipped", p.maxDocs))
		}
		return nil
	}

	body, err := p.fetch(ctx, sitemapURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(isRoot, sitemapURL, err, d)
	}

	kind, locs, err := parseDocument(body)
	if err != nil {
		return p.fail(isRoot, sitemapURL, err, d)
	}
	d.Documents++

	switch kind {
	case kindURLSet:
		p.collect(sitemapURL, locs, seen, d)
	case kindIndex:
		p.logger.Debug("expanding sitemap index",
			"sitemap", sitemapURL,
			"children", len(locs))
		for _, child := range locs {
			childURL, ok := p.childURL(sitemapURL, child)
			if !ok {
				d.AddWarning(fmt.Sprintf("skipping child sitemap %s: not on origin host %s", child, p.origin.Host))
				continue
			}
			if err := p.walk(ctx, childURL, false, visited, seen, d); err != nil {
				return err
			}
		}
	}

	return nil
}

// fail converts a document failure into a fatal error for the root
// sitemap or a recorded warning for a child. Cancellation never reaches
// here; walk checks the context before calling.
func (p *Parser) fail(isRoot bool, sitemapURL string, err error, d *Discovery) error {
	if isRoot {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSitemap, sitemapURL, err)
	}
	p.logger.Warn("child sitemap failed, continuing",
		"sitemap", sitemapURL,
		"error", err)
	d.AddWarning(fmt.Sprintf("child sitemap %s: %v", sitemapURL, err))
	return nil
}

// collect applies the same-origin rule, exclude patterns, and
// first-occurrence deduplication to a urlset's entries.
func (p *Parser) collect(docURL string, locs []string, seen map[string]bool, d *Discovery) {
	base, _ := url.Parse(docURL)

	for _, loc := range locs {
		u, err := url.Parse(loc)
		if err != nil {
			p.logger.Debug("dropping malformed URL", "url", loc, "error", err)
			d.Filtered++
			continue
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		if !sameHost(u, p.origin) {
			p.logger.Debug("dropping cross-origin URL", "url", u.String())
			d.Filtered++
			continue
		}
		if p.excluded(u) {
			p.logger.Debug("dropping excluded URL", "url", u.String())
			d.Excluded++
			continue
		}

		key := normalizeURL(u.String())
		if seen[key] {
			d.Duplicates++
			continue
		}
		seen[key] = true
		d.URLs = append(d.URLs, u.String())
	}
}

// childURL resolves a sitemap index entry and enforces the same-origin
// rule for child sitemaps. Following references to other hosts would turn
// one site's archive run into a crawl of arbitrary servers.
func (p *Parser) childURL(docURL, loc string) (string, bool) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		base, err := url.Parse(docURL)
		if err != nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if !sameHost(u, p.origin) {
		return "", false
	}
	return u.String(), true
}

// excluded reports whether the URL's path matches any exclude pattern.
func (p *Parser) excluded(u *url.URL) bool {
	if len(p.excludePatterns) == 0 {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, pattern := range p.excludePatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// fetch retrieves one sitemap document, honoring the rate limiter, the
// size cap, and transparent gzip decompression.
func (p *Parser) fetch(ctx context.Context, sitemapURL string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building sitemap request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,application/gzip;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching sitemap: unexpected status %d", resp.StatusCode)
	}

	body, err := p.readCapped(resp.Body)
	if err != nil {
		return nil, err
	}

	// Compressed sitemaps usually carry a .gz suffix or a gzip content
	// type, but sniffing the magic number also catches mislabeled servers
	if isGzipData(body) {
		body, err = p.gunzip(body)
		if err != nil {
			return nil, fmt.Errorf("decompressing sitemap: %w", err)
		}
	}

	return body, nil
}

// readCapped reads r fully, failing with ErrSitemapTooLarge when the
// content exceeds the configured limit.
func (p *Parser) readCapped(r io.Reader) ([]byte, error) {
	if p.maxSize <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, p.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading sitemap: %w", err)
	}
	if int64(len(data)) > p.maxSize {
		return nil, fmt.Errorf("%w: above %d bytes", ErrSitemapTooLarge, p.maxSize)
	}
	return data, nil
}

// gunzip decompresses data, applying the size cap to the decompressed
// content as well.
func (p *Parser) gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return p.readCapped(zr)
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	// For patterns like "/admin/*", match the whole subtree
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	// Handle extension patterns like "*.pdf"
	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	// Use filepath.Match for standard glob matching
	// Note: filepath.Match doesn't support ** for recursive matching,
	// but it handles * and ? well for single-segment patterns
	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Also try matching just the filename for patterns like "*.pdf"
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		filename := filepath.Base(path)
		matched, err := filepath.Match(pattern, filename)
		if err == nil && matched {
			return true
		}
	}

	return false
}
