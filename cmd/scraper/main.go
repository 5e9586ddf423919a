// Package main provides the entry point for the scraper CLI.
//
// Scraper archives websites through their sitemaps. Every page listed in
// the sitemap is captured as a single self-contained HTML file with its
// stylesheets and images inlined, laid out on disk to mirror the site's
// URL structure.
//
// Usage:
//
//	scraper scrape <base-url>
//	scraper history <base-url>
//
// See --help for all available options.
package main

// main is the entry point for the scraper CLI.
func main() {
	Execute()
}
