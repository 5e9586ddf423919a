package sitemap

import "errors"

// Sitemap discovery errors.
// These errors separate the two fatal failure classes a run can hit before
// any page is archived, so the CLI can map them to distinct exit behavior.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances at each return site. This allows callers
// to use errors.Is() for programmatic error handling while still wrapping
// the underlying cause with fmt.Errorf and %w at the point of failure.
var (
	// ErrOriginUnreachable is returned when the origin server cannot be
	// reached at the transport level (DNS failure, connection refused,
	// or timeout) while probing robots.txt. An HTTP error response is
	// not unreachability; only transport failures count.
	ErrOriginUnreachable = errors.New("origin unreachable")

	// ErrInvalidSitemap is returned when the root sitemap cannot be
	// fetched or parsed. Failures in child sitemaps referenced by a
	// sitemap index are downgraded to warnings instead.
	ErrInvalidSitemap = errors.New("invalid sitemap")

	// ErrSitemapTooLarge is returned when a sitemap document exceeds the
	// configured size limit. The sitemaps.org protocol caps documents at
	// 50MB uncompressed, so a larger response is malformed.
	ErrSitemapTooLarge = errors.New("sitemap document too large")
)
