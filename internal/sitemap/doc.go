// Package sitemap discovers which pages a site wants archived.
//
// The Locator finds the sitemap URL for an origin by reading the
// robots.txt Sitemap directive, falling back to /sitemap.xml. The Parser
// then expands the sitemap tree (plain urlsets, nested sitemap indexes,
// gzip-compressed documents) into an ordered, deduplicated list of
// same-origin page URLs.
//
// Failures are split by blast radius: an unreachable origin or an
// unusable root sitemap aborts the run, while a broken child sitemap
// only costs its own URLs and is recorded as a warning.
package sitemap
