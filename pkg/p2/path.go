package p2

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
)

// JoinPath joins segments with exactly one slash between neighbours. A
// leading slash on the first segment and a trailing slash on the last one are
// kept; empty segments are skipped.
func JoinPath(segments ...string) string {
	var out string
	for _, s := range segments {
		switch {
		case s == "":
			continue
		case out == "":
			out = s
		default:
			out = strings.TrimSuffix(out, "/") + "/" + strings.TrimPrefix(s, "/")
		}
	}
	return out
}

// ParseLocation turns a URL or a local path into a normalized repository
// location. Strings without a scheme are treated as filesystem paths.
func ParseLocation(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty repository location: %w", errors.ErrInvalidPath)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// a one-letter scheme is a Windows drive
		abs, absErr := filepath.Abs(raw)
		if absErr != nil {
			return nil, fmt.Errorf("repository location %q: %w", raw, errors.ErrInvalidPath)
		}
		return normalize(fetch.FileURL(abs)), nil
	}
	return normalize(u), nil
}

// normalize returns a copy of u whose path ends in a slash and that carries
// no fragment.
func normalize(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Opaque != "" {
		if !strings.HasSuffix(c.Opaque, "/") {
			c.Opaque += "/"
		}
		return &c
	}
	if !strings.HasSuffix(c.Path, "/") {
		c.Path += "/"
		if c.RawPath != "" {
			c.RawPath += "/"
		}
	}
	return &c
}

func descriptorURL(base *url.URL, name string) *url.URL {
	return base.ResolveReference(&url.URL{Path: name})
}
