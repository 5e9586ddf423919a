package archive

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// cssURLPattern finds url(...) references inside stylesheet text.
var cssURLPattern = regexp.MustCompile(`url\(['"]?(.*?)['"]?\)`)

// maxCSSDepth bounds recursion through stylesheets that reference further
// stylesheets, so a self-importing CSS file cannot loop the inliner.
const maxCSSDepth = 3

// Inliner rewrites a captured page so it renders without any network
// fetch: <link rel="stylesheet"> becomes an inline <style> block, <img>
// sources become base64 data URIs, and url(...) references inside the
// inlined CSS are embedded the same way.
//
// A sub-resource that cannot be fetched degrades instead of failing the
// page: its original reference stays in place and the failure is counted,
// so the page is reported as archived with gaps.
//
// An Inliner belongs to one session and must not be shared between
// goroutines; its asset cache is unsynchronized.
type Inliner struct {
	// client fetches sub-resources. Shared with the owning session so
	// cookies and headers match the page fetch.
	client *http.Client

	// maxAssetSize caps one sub-resource's size in bytes. Larger assets
	// keep their external reference. 0 means unlimited.
	maxAssetSize int64

	// limiter paces asset fetches together with page fetches.
	limiter *rate.Limiter

	// logger records per-asset failures at debug level.
	logger *slog.Logger

	// cache holds fetch outcomes for the session's lifetime, keyed by
	// absolute URL. Pages on one site share most of their assets, and a
	// dead asset referenced everywhere is only tried once.
	cache map[string]fetchedAsset
}

// fetchedAsset is one cached sub-resource fetch outcome.
type fetchedAsset struct {
	data []byte
	mime string
	ok   bool
}

// NewInliner creates an Inliner fetching through the given client.
func NewInliner(client *http.Client, maxAssetSize int64, limiter *rate.Limiter, logger *slog.Logger) *Inliner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Inliner{
		client:       client,
		maxAssetSize: maxAssetSize,
		limiter:      limiter,
		logger:       logger,
		cache:        make(map[string]fetchedAsset),
	}
}

// Inline rewrites doc's external stylesheet and image references into
// embedded content. It returns the rewritten document and the number of
// sub-resources left as external references because they could not be
// inlined.
func (in *Inliner) Inline(ctx context.Context, pageURL string, doc []byte) ([]byte, int, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, 0, fmt.Errorf("parsing page HTML: %w", err)
	}

	// A <base href> rebases every relative reference on the page
	if href, ok := gq.Find("base[href]").First().Attr("href"); ok {
		if rebased, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(rebased)
		}
	}

	failures := 0

	gq.Find("link[rel='stylesheet']").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || skippableRef(href) {
			return
		}

		css, cssFailures, err := in.stylesheet(ctx, base, href)
		failures += cssFailures
		if err != nil {
			in.logger.Debug("leaving stylesheet external", "href", href, "error", err)
			failures++
			return
		}

		var style strings.Builder
		style.WriteString("<style")
		if media, ok := s.Attr("media"); ok && media != "" {
			style.WriteString(` media="` + html.EscapeString(media) + `"`)
		}
		style.WriteString(">\n")
		// A literal </style inside the CSS would end the element early
		style.WriteString(strings.ReplaceAll(css, "</style", `<\/style`))
		style.WriteString("\n</style>")
		s.ReplaceWithHtml(style.String())
	})

	gq.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || skippableRef(src) {
			// Lazy-loading markup keeps the real image in data-src
			lazy, lok := s.Attr("data-src")
			if !lok || skippableRef(lazy) {
				return
			}
			src = lazy
		}

		uri, nested, err := in.dataURI(ctx, base, src, 0)
		failures += nested
		if err != nil {
			in.logger.Debug("leaving image external", "src", src, "error", err)
			failures++
			return
		}
		s.SetAttr("src", uri)
		// srcset and data-src would reintroduce network fetches
		s.RemoveAttr("srcset")
		s.RemoveAttr("data-src")
	})

	out, err := gq.Html()
	if err != nil {
		return nil, failures, fmt.Errorf("serializing page HTML: %w", err)
	}

	return []byte(out), failures, nil
}

// stylesheet fetches one stylesheet and inlines its url(...) references.
// The returned count covers failed references inside the CSS.
func (in *Inliner) stylesheet(ctx context.Context, base *url.URL, href string) (string, int, error) {
	cssURL := resolveRef(base, href)
	if cssURL == nil {
		return "", 0, fmt.Errorf("unresolvable stylesheet reference %q", href)
	}

	asset, err := in.fetch(ctx, cssURL.String())
	if err != nil {
		return "", 0, err
	}

	css, failures := in.processCSS(ctx, cssURL, string(asset.data), 0)
	return css, failures, nil
}

// processCSS replaces url(...) references inside CSS text with data URIs.
// References that cannot be fetched stay as they are and are counted.
func (in *Inliner) processCSS(ctx context.Context, cssURL *url.URL, css string, depth int) (string, int) {
	failures := 0

	rewritten := cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		parts := cssURLPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		ref := strings.TrimSpace(parts[1])
		if skippableRef(ref) {
			return match
		}

		uri, nested, err := in.dataURI(ctx, cssURL, ref, depth)
		failures += nested
		if err != nil {
			in.logger.Debug("leaving CSS reference external",
				"stylesheet", cssURL.String(),
				"ref", ref,
				"error", err)
			failures++
			return match
		}
		return fmt.Sprintf("url('%s')", uri)
	})

	return rewritten, failures
}

// dataURI fetches one asset and encodes it as a base64 data URI.
// Stylesheet assets are themselves inlined first, up to maxCSSDepth; the
// returned count covers failed references inside such nested CSS.
func (in *Inliner) dataURI(ctx context.Context, base *url.URL, ref string, depth int) (string, int, error) {
	target := resolveRef(base, ref)
	if target == nil {
		return "", 0, fmt.Errorf("unresolvable reference %q", ref)
	}

	asset, err := in.fetch(ctx, target.String())
	if err != nil {
		return "", 0, err
	}

	data, mimeType := asset.data, asset.mime
	failures := 0
	if isCSSAsset(target, mimeType) {
		mimeType = "text/css"
		if depth < maxCSSDepth {
			var css string
			css, failures = in.processCSS(ctx, target, string(data), depth+1)
			data = []byte(css)
		}
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), failures, nil
}

// fetch retrieves one asset, consulting the session cache first.
func (in *Inliner) fetch(ctx context.Context, assetURL string) (fetchedAsset, error) {
	if asset, cached := in.cache[assetURL]; cached {
		if !asset.ok {
			return fetchedAsset{}, fmt.Errorf("fetch already failed for %s", assetURL)
		}
		return asset, nil
	}

	asset, err := in.fetchRemote(ctx, assetURL)
	if err != nil {
		// Cache permanent failures only. A fetch cut short by the page
		// deadline may well succeed for the next page.
		if ctx.Err() == nil {
			in.cache[assetURL] = fetchedAsset{}
		}
		return fetchedAsset{}, err
	}

	in.cache[assetURL] = asset
	return asset, nil
}

// fetchRemote performs the actual asset fetch with the size cap applied.
func (in *Inliner) fetchRemote(ctx context.Context, assetURL string) (fetchedAsset, error) {
	if in.limiter != nil {
		if err := in.limiter.Wait(ctx); err != nil {
			return fetchedAsset{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return fetchedAsset{}, fmt.Errorf("building asset request: %w", err)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return fetchedAsset{}, fmt.Errorf("fetching asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fetchedAsset{}, fmt.Errorf("fetching asset: unexpected status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if in.maxAssetSize > 0 {
		reader = io.LimitReader(resp.Body, in.maxAssetSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fetchedAsset{}, fmt.Errorf("reading asset: %w", err)
	}
	if in.maxAssetSize > 0 && int64(len(data)) > in.maxAssetSize {
		return fetchedAsset{}, fmt.Errorf("asset above %d bytes", in.maxAssetSize)
	}

	return fetchedAsset{
		data: data,
		mime: assetMIME(resp.Header.Get("Content-Type"), data),
		ok:   true,
	}, nil
}

// assetMIME settles the MIME type recorded in a data URI, preferring the
// response header and falling back to content sniffing.
func assetMIME(contentType string, data []byte) string {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType
		}
	}

	if mediaType, _, err := mime.ParseMediaType(http.DetectContentType(data)); err == nil {
		return mediaType
	}
	return "application/octet-stream"
}

// isCSSAsset reports whether an asset should be treated as a stylesheet.
// Servers frequently mislabel CSS as text/plain, so the path extension
// counts too.
func isCSSAsset(u *url.URL, mimeType string) bool {
	return mimeType == "text/css" || strings.HasSuffix(strings.ToLower(u.Path), ".css")
}

// skippableRef reports references that are already self-contained or not
// fetchable: empty values, data URIs, and fragments.
func skippableRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "#")
}

// resolveRef resolves ref against base, accepting absolute, relative, and
// protocol-relative forms. It returns nil when ref does not parse or
// resolves outside HTTP.
func resolveRef(base *url.URL, ref string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil
	}

	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil
	}
	return resolved
}
