package crawler

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ResourcePageURL returns the page listing an entry's releases.
func ResourcePageURL(baseURL, entryID string) (string, error) {
	return ResolveURL(baseURL, "/Home/Bangumi/"+url.PathEscape(entryID))
}

// ResolveURL resolves a reference found in page content against the base host.
func ResolveURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	rel, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return base.ResolveReference(rel).String(), nil
}

// DestinationPath joins the last two segments of the URL path with an
// underscore and places the result under dir. Query strings and fragments are
// ignored. Paths with fewer than two non-empty segments return ErrPathTooShort.
func DestinationPath(rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", fmt.Errorf("%w: %q", ErrPathTooShort, rawURL)
	}
	n := len(segments)
	return filepath.Join(dir, segments[n-2]+"_"+segments[n-1]), nil
}
