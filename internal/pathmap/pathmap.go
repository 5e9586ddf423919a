package pathmap

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/kennygrant/sanitize"
)

// indexFile is the filename that stands in for directory-style URLs.
const indexFile = "index.html"

// Map converts a page URL into the relative file path its archived copy is
// written to. Path segments become directories, directory-style URLs
// (empty path or trailing slash) become index.html, and pages without an
// .html or .htm extension get .html appended. Each segment is sanitized so
// the result never escapes the output root.
//
// Map ignores the query string, so URLs differing only in their query map
// to the same path. Resolve disambiguates such collisions.
func Map(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", rawURL, err)
	}

	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += indexFile
	}

	// A rooted Clean resolves "." and ".." and collapses repeated slashes;
	// with the leading slash pinned the result cannot climb above the root.
	p = path.Clean("/" + p)
	if p == "/" {
		p = "/" + indexFile
	}

	if ext := strings.ToLower(path.Ext(p)); ext != ".html" && ext != ".htm" {
		p += ".html"
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	last := len(segments) - 1
	for i, seg := range segments {
		if i == last {
			segments[i] = sanitizeFileName(seg)
		} else {
			segments[i] = sanitizeDir(seg)
		}
	}

	return path.Join(segments...), nil
}

// Resolve maps every URL in order and disambiguates path collisions by
// suffixing -2, -3, ... before the extension. The first URL to claim a
// path keeps it unchanged; later URLs mapping to the same file get the
// suffixed variants. Collision checks are case-insensitive so the layout
// also survives case-folding filesystems.
func Resolve(urls []string) ([]string, error) {
	paths := make([]string, len(urls))
	taken := make(map[string]bool, len(urls))

	for i, rawURL := range urls {
		p, err := Map(rawURL)
		if err != nil {
			return nil, err
		}
		p = disambiguate(p, taken)
		taken[strings.ToLower(p)] = true
		paths[i] = p
	}

	return paths, nil
}

// disambiguate returns p unchanged when free, otherwise the first suffixed
// variant not yet taken.
func disambiguate(p string, taken map[string]bool) string {
	if !taken[strings.ToLower(p)] {
		return p
	}

	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if !taken[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

// sanitizeDir cleans one directory segment.
func sanitizeDir(seg string) string {
	clean := sanitize.BaseName(stripControl(seg))
	if clean == "" {
		// Keep the directory level even when nothing of the name survives,
		// so sibling paths do not fold into each other.
		return "_"
	}
	return clean
}

// sanitizeFileName cleans the final segment while preserving its
// extension. The extension is split off first because BaseName folds dots
// into dashes.
func sanitizeFileName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	cleanStem := sanitize.BaseName(stripControl(stem))
	if cleanStem == "" {
		cleanStem = "index"
	}
	cleanExt := sanitize.BaseName(ext)
	return cleanStem + "." + strings.TrimPrefix(cleanExt, "-")
}

// stripControl removes control bytes, which have no place in a file name.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
