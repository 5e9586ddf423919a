package archive

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/romcoding/scraper/internal/config"
)

// newHTTPClient builds the HTTP client used for page and asset fetches.
//
// Design decisions:
// - Cookies live in a jar so sessions established during a run (consent
//   banners, load balancer affinity) carry across the run's requests
// - A configured cookie and extra headers are injected at the transport
//   so every request carries them, including redirects and asset fetches
// - The redirect limit is 10 to stop loops while allowing normal chains
// - No client-level timeout: deadlines come from request contexts, where
//   page and asset fetches can be budgeted individually
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := &http.Transport{
		// The run hammers a single origin, so allow a deeper idle pool
		// per host than the default
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	headers := map[string]string{"User-Agent": cfg.UserAgent}
	for key, value := range cfg.Headers {
		headers[key] = value
	}

	return &http.Client{
		Transport: &headerTransport{
			base:    transport,
			cookie:  cfg.Cookie,
			headers: headers,
		},
		Jar: jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// headerTransport wraps an http.RoundTripper to inject the configured
// cookie and headers into every request.
type headerTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clone := req.Clone(req.Context())

	// Append to an existing Cookie header rather than replacing it, so
	// jar-managed cookies survive
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
