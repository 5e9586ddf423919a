package sitemap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
)

// docKind identifies the root element of a sitemap document.
type docKind int

const (
	// kindURLSet is a <urlset> document listing page URLs.
	kindURLSet docKind = iota

	// kindIndex is a <sitemapindex> document listing child sitemaps.
	kindIndex
)

// parseDocument streams one sitemap XML document and returns the loc
// values it lists: page URLs for a urlset, child sitemap URLs for a
// sitemap index.
//
// Element names are matched by local name only, so documents with the
// canonical sitemaps.org namespace, a prefixed namespace, or no
// namespace at all are all accepted. Extension elements such as
// <image:loc> sit deeper than direct children of <url> and are ignored
// by depth tracking.
func parseDocument(data []byte) (docKind, []string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	kind, err := rootKind(dec)
	if err != nil {
		return 0, nil, err
	}

	var (
		locs       []string
		depth      int
		entryDepth int
		inEntry    bool
		inLoc      bool
		text       strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("malformed sitemap XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch strings.ToLower(t.Name.Local) {
			case "url", "sitemap":
				inEntry = true
				entryDepth = depth
			case "loc":
				if inEntry && depth == entryDepth+1 {
					inLoc = true
					text.Reset()
				}
			}
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			switch strings.ToLower(t.Name.Local) {
			case "loc":
				if inLoc {
					inLoc = false
					if loc := strings.TrimSpace(text.String()); loc != "" {
						locs = append(locs, loc)
					}
				}
			case "url", "sitemap":
				if depth == entryDepth {
					inEntry = false
				}
			}
			depth--
		}
	}

	return kind, locs, nil
}

// rootKind consumes tokens until the document's root element and
// classifies it. Anything other than <urlset> or <sitemapindex> is not
// a sitemap.
func rootKind(dec *xml.Decoder) (docKind, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, errors.New("empty sitemap document")
			}
			return 0, fmt.Errorf("malformed sitemap XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			// XML prolog, comments, and whitespace before the root
			continue
		}

		switch strings.ToLower(start.Name.Local) {
		case "urlset":
			return kindURLSet, nil
		case "sitemapindex":
			return kindIndex, nil
		default:
			return 0, fmt.Errorf("unexpected root element <%s>", start.Name.Local)
		}
	}
}

// isGzipData reports whether data starts with the gzip magic number.
func isGzipData(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// sameHost reports whether u points at the same host and port as the
// origin. The scheme is deliberately ignored: sites that list http://
// URLs in their sitemap while serving over https are common, and the
// content is the same either way.
func sameHost(u, origin *url.URL) bool {
	return strings.EqualFold(u.Host, origin.Host)
}

// normalizeURL normalizes a URL for deduplication and cycle detection.
//
// Design decision: We normalize URLs because:
//  1. The same document can be referenced with different URL spellings
//  2. Fragment (#anchor) doesn't change content
//  3. An empty path and "/" are the same location
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
