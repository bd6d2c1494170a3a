package osgi

import (
	"strings"
)

// Clause is one comma-separated element of a manifest header such as
// Require-Bundle or Bundle-ClassPath.
//
//	org.eclipse.core.runtime;bundle-version="[3.2.0,4.0.0)";visibility:=reexport
//
// parses into Values ["org.eclipse.core.runtime"], Attributes
// {"bundle-version": "[3.2.0,4.0.0)"} and Directives {"visibility": "reexport"}.
type Clause struct {
	Values     []string
	Attributes map[string]string
	Directives map[string]string
}

// Value returns the first value of the clause.
func (c Clause) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

// Attribute returns the named attribute, or "".
func (c Clause) Attribute(name string) string {
	return c.Attributes[name]
}

// Directive returns the named directive, or "".
func (c Clause) Directive(name string) string {
	return c.Directives[name]
}

// ParseHeader splits a header value into clauses. Separators inside double
// quotes are ignored and quotes are stripped from attribute and directive
// values. Empty clauses are dropped.
func ParseHeader(value string) []Clause {
	var clauses []Clause
	for _, element := range splitUnquoted(value, ',') {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}
		c := Clause{Attributes: map[string]string{}, Directives: map[string]string{}}
		for _, part := range splitUnquoted(element, ';') {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if idx := strings.Index(part, ":="); idx > 0 && !quotedAt(part, idx) {
				c.Directives[strings.TrimSpace(part[:idx])] = unquote(part[idx+2:])
				continue
			}
			if idx := strings.Index(part, "="); idx > 0 && !quotedAt(part, idx) {
				c.Attributes[strings.TrimSpace(part[:idx])] = unquote(part[idx+1:])
				continue
			}
			c.Values = append(c.Values, unquote(part))
		}
		if len(c.Values) > 0 {
			clauses = append(clauses, c)
		}
	}
	return clauses
}

func splitUnquoted(s string, sep byte) []string {
	var parts []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func quotedAt(s string, idx int) bool {
	return strings.Count(s[:idx], `"`)%2 == 1
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
