package maven

import (
	"bytes"
	"encoding/xml"
	"io"
	"time"

	"github.com/glorpus-work/p2maven/pkg/osgi"
)

const lastUpdatedLayout = "20060102150405"

// RepositoryMetadata is an artifact-level maven-metadata.xml document.
type RepositoryMetadata struct {
	XMLName    xml.Name   `xml:"metadata"`
	GroupID    string     `xml:"groupId"`
	ArtifactID string     `xml:"artifactId"`
	Versioning Versioning `xml:"versioning"`
}

// Versioning lists the known versions of an artifact.
type Versioning struct {
	Latest      string   `xml:"latest,omitempty"`
	Release     string   `xml:"release,omitempty"`
	Versions    []string `xml:"versions>version"`
	LastUpdated string   `xml:"lastUpdated,omitempty"`
}

// NewRepositoryMetadata builds metadata from the raw version strings of the
// matching bundles. Duplicates are dropped, first-seen order is kept, and
// latest / release both name the highest OSGi version in its raw form.
func NewRepositoryMetadata(groupID, artifactID string, versions []string, updated time.Time) *RepositoryMetadata {
	seen := make(map[string]struct{}, len(versions))
	unique := make([]string, 0, len(versions))
	for _, v := range versions {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}

	md := &RepositoryMetadata{
		GroupID:    groupID,
		ArtifactID: artifactID,
		Versioning: Versioning{Versions: unique},
	}
	if latest := osgi.MaxString(unique); latest != "" {
		md.Versioning.Latest = latest
		md.Versioning.Release = latest
	}
	if !updated.IsZero() {
		md.Versioning.LastUpdated = updated.UTC().Format(lastUpdatedLayout)
	}
	return md
}

// Encode writes the document with an XML declaration and provenance comments.
func (m *RepositoryMetadata) Encode(w io.Writer, pv Provenance) error {
	return encodeDocument(w, m, pv)
}

// Bytes is Encode into memory.
func (m *RepositoryMetadata) Bytes(pv Provenance) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := m.Encode(buf, pv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
