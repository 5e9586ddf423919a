package config

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing archive behavior per website, including
// credentials for sites that gate content behind a session cookie.
type SiteConfig struct {
	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is an HTTP cookie to send when archiving this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Engine overrides the global engine for this site.
	// Accepts the same names as the --engine flag.
	Engine string `yaml:"engine,omitempty"`

	// ExcludePatterns are path globs; sitemap URLs whose path matches
	// any pattern are not archived.
	ExcludePatterns []string `yaml:"excludePatterns,omitempty"`

	// RequestRate overrides the global requests-per-second limit.
	// If zero, the global RequestRate is used.
	RequestRate float64 `yaml:"requestRate,omitempty"`
}

// File represents the structure of the .scraper.yaml configuration file.
type File struct {
	// Sites maps hostnames to their site-specific configurations.
	// Keys are bare hostnames without a scheme (e.g., "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific hostname.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	// Start with defaults
	result := cf.Defaults

	// Override with site-specific configuration if present
	if siteConfig, ok := cf.Sites[host]; ok {
		if siteConfig.UserAgent != "" {
			result.UserAgent = siteConfig.UserAgent
		}
		if siteConfig.Cookie != "" {
			result.Cookie = siteConfig.Cookie
		}
		if len(siteConfig.Headers) > 0 {
			if result.Headers == nil {
				result.Headers = make(map[string]string)
			}
			for k, v := range siteConfig.Headers {
				result.Headers[k] = v
			}
		}
		if siteConfig.Engine != "" {
			result.Engine = siteConfig.Engine
		}
		if len(siteConfig.ExcludePatterns) > 0 {
			result.ExcludePatterns = siteConfig.ExcludePatterns
		}
		if siteConfig.RequestRate != 0 {
			result.RequestRate = siteConfig.RequestRate
		}
	}

	return result
}
