// Package osgi implements the parts of the OSGi bundle model needed to read p2
// bundles: versions, version ranges, manifest header clauses, and localized
// manifest lookup.
package osgi

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/p2maven/pkg/errors"
	goversion "github.com/hashicorp/go-version"
)

// Version is an OSGi version: major.minor.micro plus an optional qualifier.
// Missing numeric segments are zero. The qualifier orders lexically.
type Version struct {
	numeric   *goversion.Version
	qualifier string
	raw       string
}

var zeroNumeric = goversion.Must(goversion.NewVersion("0.0.0"))

// ParseVersion parses s. The qualifier may be separated by '.' (OSGi) or '-'
// (as found in some hand-written manifests). An empty string is 0.0.0.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{numeric: zeroNumeric}, nil
	}

	numericPart, qualifier := splitQualifier(raw)
	if numericPart == "" {
		return Version{}, fmt.Errorf("%q: %w", s, errors.ErrInvalidVersion)
	}
	if strings.Count(numericPart, ".") > 2 {
		return Version{}, fmt.Errorf("%q has more than three numeric segments: %w", s, errors.ErrInvalidVersion)
	}
	numeric, err := goversion.NewVersion(numericPart)
	if err != nil {
		return Version{}, fmt.Errorf("%q: %w: %w", s, errors.ErrInvalidVersion, err)
	}
	return Version{numeric: numeric, qualifier: qualifier, raw: raw}, nil
}

// splitQualifier separates the leading dotted-digit run from the qualifier.
func splitQualifier(s string) (string, string) {
	segments := 0
	i := 0
	for i < len(s) && segments < 3 {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			// "1.0.v2020": the non-numeric remainder is the qualifier
			if segments == 0 {
				return "", s
			}
			return s[:start-1], s[start:]
		}
		segments++
		if i == len(s) {
			return s, ""
		}
		switch s[i] {
		case '.':
			if segments == 3 {
				return s[:i], s[i+1:]
			}
			i++
			if i == len(s) {
				return s[:i-1], ""
			}
		case '-':
			return s[:i], s[i+1:]
		default:
			return "", s
		}
	}
	return s[:i], s[i:]
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) segments() []int {
	n := v.numeric
	if n == nil {
		n = zeroNumeric
	}
	return n.Segments()
}

// Major returns the major segment.
func (v Version) Major() int { return v.segments()[0] }

// Minor returns the minor segment.
func (v Version) Minor() int { return v.segments()[1] }

// Micro returns the micro segment.
func (v Version) Micro() int { return v.segments()[2] }

// Qualifier returns the qualifier, possibly empty.
func (v Version) Qualifier() string { return v.qualifier }

// Raw returns the string the version was parsed from.
func (v Version) Raw() string { return v.raw }

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a, b := v.numeric, o.numeric
	if a == nil {
		a = zeroNumeric
	}
	if b == nil {
		b = zeroNumeric
	}
	if c := a.Compare(b); c != 0 {
		return c
	}
	return strings.Compare(v.qualifier, o.qualifier)
}

// String returns the normalized form major.minor.micro[.qualifier].
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Micro())
	if v.qualifier != "" {
		s += "." + v.qualifier
	}
	return s
}

// CompareStrings orders two version strings. Unparsable strings sort below
// every parsable one and lexically among themselves.
func CompareStrings(a, b string) int {
	va, errA := ParseVersion(a)
	vb, errB := ParseVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

// MaxString returns the greatest of the given version strings, or "" when empty.
func MaxString(versions []string) string {
	best := ""
	for i, v := range versions {
		if i == 0 || CompareStrings(v, best) > 0 {
			best = v
		}
	}
	return best
}
