package osgi

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/p2maven/pkg/errors"
)

// Range is an OSGi version range. A bare version "v" is the half-open range
// v <= x with no ceiling. Interval notation uses '[' / ']' for inclusive and
// '(' / ')' for exclusive bounds.
type Range struct {
	Floor            Version
	FloorInclusive   bool
	Ceiling          *Version
	CeilingInclusive bool
}

// AnyVersion matches every version.
var AnyVersion = Range{FloorInclusive: true}

// ParseRange parses s. An empty string yields AnyVersion.
func ParseRange(s string) (Range, error) {
	raw := strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
	if raw == "" {
		return AnyVersion, nil
	}

	lo, hi := raw[0], raw[len(raw)-1]
	if lo != '[' && lo != '(' {
		floor, err := ParseVersion(raw)
		if err != nil {
			return Range{}, fmt.Errorf("%q: %w: %w", s, errors.ErrInvalidRange, err)
		}
		return Range{Floor: floor, FloorInclusive: true}, nil
	}
	if hi != ']' && hi != ')' {
		return Range{}, fmt.Errorf("%q: missing closing bound: %w", s, errors.ErrInvalidRange)
	}

	bounds := strings.Split(raw[1:len(raw)-1], ",")
	if len(bounds) != 2 {
		return Range{}, fmt.Errorf("%q: expected two bounds: %w", s, errors.ErrInvalidRange)
	}
	floor, err := ParseVersion(bounds[0])
	if err != nil {
		return Range{}, fmt.Errorf("%q: %w: %w", s, errors.ErrInvalidRange, err)
	}
	ceiling, err := ParseVersion(bounds[1])
	if err != nil {
		return Range{}, fmt.Errorf("%q: %w: %w", s, errors.ErrInvalidRange, err)
	}
	// an inverted range is legal and simply includes nothing
	return Range{
		Floor:            floor,
		FloorInclusive:   lo == '[',
		Ceiling:          &ceiling,
		CeilingInclusive: hi == ']',
	}, nil
}

// Includes reports whether v lies within the range.
func (r Range) Includes(v Version) bool {
	c := v.Compare(r.Floor)
	if c < 0 || (c == 0 && !r.FloorInclusive) {
		return false
	}
	if r.Ceiling == nil {
		return true
	}
	c = v.Compare(*r.Ceiling)
	return c < 0 || (c == 0 && r.CeilingInclusive)
}

// IncludesString parses v and reports whether it lies within the range.
// Unparsable versions are never included.
func (r Range) IncludesString(v string) bool {
	parsed, err := ParseVersion(v)
	if err != nil {
		return false
	}
	return r.Includes(parsed)
}

func (r Range) String() string {
	if r.Ceiling == nil {
		return r.Floor.String()
	}
	lo, hi := "(", ")"
	if r.FloorInclusive {
		lo = "["
	}
	if r.CeilingInclusive {
		hi = "]"
	}
	return lo + r.Floor.String() + "," + r.Ceiling.String() + hi
}
