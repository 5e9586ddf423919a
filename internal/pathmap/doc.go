// Package pathmap turns page URLs into the relative file paths their
// archived copies live at. The mapping mirrors the URL's path structure:
// path segments become directories, directory-style URLs become
// index.html, and every file ends in .html or .htm. Sanitization keeps
// every result inside the output root no matter what the sitemap listed.
package pathmap
