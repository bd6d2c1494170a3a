package maven

import (
	stderrors "errors"
	"testing"

	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArtifact(t *testing.T) {
	tests := []struct {
		input  string
		expect Artifact
	}{
		{
			input:  "org.example:bundle:1.0.0",
			expect: Artifact{GroupID: "org.example", ArtifactID: "bundle", Version: "1.0.0", Extension: "jar"},
		},
		{
			input:  "org.example:bundle:pom:1.0.0",
			expect: Artifact{GroupID: "org.example", ArtifactID: "bundle", Version: "1.0.0", Extension: "pom"},
		},
		{
			input:  "org.example:bundle:txt:docs$html:1.0.0.v2024",
			expect: Artifact{GroupID: "org.example", ArtifactID: "bundle", Version: "1.0.0.v2024", Extension: "txt", Classifier: "docs$html"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseArtifact(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
			assert.Equal(t, got, mustParse(t, got.String()), "String round trip")
		})
	}
}

func mustParse(t *testing.T, s string) Artifact {
	t.Helper()
	a, err := ParseArtifact(s)
	require.NoError(t, err)
	return a
}

func TestParseArtifact_Invalid(t *testing.T) {
	for _, input := range []string{"", "a:b", "a::1.0", "a:b:c:d:e:f"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseArtifact(input)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidCoordinate))
		})
	}
}

func TestArtifactPaths(t *testing.T) {
	a := Artifact{GroupID: "org.example.p2", ArtifactID: "bundle", Version: "1.0.0", Extension: "jar", Classifier: "sources"}
	assert.Equal(t, "bundle-1.0.0-sources.jar", a.FileName())
	assert.Equal(t, "org/example/p2/bundle/1.0.0/bundle-1.0.0-sources.jar", a.Path())
	assert.Equal(t, "bundle-1.0.0.pom", a.WithExtension(ExtensionPom).FileName())

	m := Metadata{GroupID: "org.example.p2", ArtifactID: "bundle"}
	assert.Equal(t, "org/example/p2/bundle/maven-metadata.xml", m.Path())
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		file       string
		classifier string
		extension  string
		ok         bool
	}{
		{"bundle-1.0.0.jar", "", "jar", true},
		{"bundle-1.0.0.pom", "", "pom", true},
		{"bundle-1.0.0-sources.jar", "sources", "jar", true},
		{"bundle-1.0.0-docs$html.txt", "docs$html", "txt", true},
		{"bundle-1.0.0-lib$a.b.jar", "lib$a.b", "jar", true},
		{"bundle-1.0.0", "", "", false},
		{"bundle-1.0.0.", "", "", false},
		{"bundle-1.0.0x.jar", "", "", false},
		{"bundle-1.0.0-.jar", "", "", false},
		{"other-1.0.0.jar", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			classifier, extension, ok := ParseFileName("bundle", "1.0.0", tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.classifier, classifier)
			assert.Equal(t, tt.extension, extension)
		})
	}
}
