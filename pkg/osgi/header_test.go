package osgi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		expect []Clause
	}{
		{
			name:   "require bundle",
			header: `org.eclipse.core.runtime;bundle-version="[3.2.0,4.0.0)";visibility:=reexport, org.junit`,
			expect: []Clause{
				{
					Values:     []string{"org.eclipse.core.runtime"},
					Attributes: map[string]string{"bundle-version": "[3.2.0,4.0.0)"},
					Directives: map[string]string{"visibility": "reexport"},
				},
				{
					Values:     []string{"org.junit"},
					Attributes: map[string]string{},
					Directives: map[string]string{},
				},
			},
		},
		{
			name:   "bundle classpath",
			header: ".,lib/foo.jar, lib/nested/bar.jar",
			expect: []Clause{
				{Values: []string{"."}, Attributes: map[string]string{}, Directives: map[string]string{}},
				{Values: []string{"lib/foo.jar"}, Attributes: map[string]string{}, Directives: map[string]string{}},
				{Values: []string{"lib/nested/bar.jar"}, Attributes: map[string]string{}, Directives: map[string]string{}},
			},
		},
		{
			name:   "multiple values and resolution directive",
			header: `a;b;resolution:=optional`,
			expect: []Clause{
				{Values: []string{"a", "b"}, Attributes: map[string]string{}, Directives: map[string]string{"resolution": "optional"}},
			},
		},
		{
			name:   "empty clauses dropped",
			header: " , x ,",
			expect: []Clause{
				{Values: []string{"x"}, Attributes: map[string]string{}, Directives: map[string]string{}},
			},
		},
		{
			name:   "empty header",
			header: "",
			expect: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ParseHeader(tt.header))
		})
	}
}

func TestParseHeader_QuotedSeparators(t *testing.T) {
	clauses := ParseHeader(`scm:git:https://example.org/repo.git;path="bundles/a;b",other`)
	require.Len(t, clauses, 2)
	assert.Equal(t, "scm:git:https://example.org/repo.git", clauses[0].Value())
	assert.Equal(t, "bundles/a;b", clauses[0].Attribute("path"))
	assert.Equal(t, "other", clauses[1].Value())
	assert.Empty(t, clauses[1].Directive("missing"))
}
