// Package maven holds the Maven side of the translation: coordinates,
// repository paths, and the POM / maven-metadata.xml documents p2maven
// synthesizes.
package maven

import (
	"fmt"
	"path"
	"strings"

	"github.com/glorpus-work/p2maven/pkg/errors"
)

// Common extensions and classifiers.
const (
	ExtensionJar       = "jar"
	ExtensionPom       = "pom"
	ClassifierSources  = "sources"
	ClassifierJavadoc  = "javadoc"
	MetadataFileName   = "maven-metadata.xml"
	DefaultPOMVersion  = "4.0.0"
	coordinateDivider  = ":"
	classifierDivider  = "-"
	extensionSeparator = "."
)

// Artifact is a Maven coordinate.
type Artifact struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Extension  string
}

// ParseArtifact parses <groupId>:<artifactId>[:<extension>[:<classifier>]]:<version>.
// The extension defaults to jar.
func ParseArtifact(s string) (Artifact, error) {
	parts := strings.Split(strings.TrimSpace(s), coordinateDivider)
	for _, p := range parts {
		if p == "" {
			return Artifact{}, fmt.Errorf("%q has an empty segment: %w", s, errors.ErrInvalidCoordinate)
		}
	}
	a := Artifact{Extension: ExtensionJar}
	switch len(parts) {
	case 3:
		a.GroupID, a.ArtifactID, a.Version = parts[0], parts[1], parts[2]
	case 4:
		a.GroupID, a.ArtifactID, a.Extension, a.Version = parts[0], parts[1], parts[2], parts[3]
	case 5:
		a.GroupID, a.ArtifactID, a.Extension, a.Classifier, a.Version = parts[0], parts[1], parts[2], parts[3], parts[4]
	default:
		return Artifact{}, fmt.Errorf("%q: expected groupId:artifactId[:extension[:classifier]]:version: %w", s, errors.ErrInvalidCoordinate)
	}
	return a, nil
}

// String renders the coordinate in the form ParseArtifact accepts.
func (a Artifact) String() string {
	ext := a.Extension
	if ext == "" {
		ext = ExtensionJar
	}
	parts := []string{a.GroupID, a.ArtifactID, ext}
	if a.Classifier != "" {
		parts = append(parts, a.Classifier)
	}
	return strings.Join(append(parts, a.Version), coordinateDivider)
}

// WithExtension returns a copy with a different extension and no classifier.
func (a Artifact) WithExtension(ext string) Artifact {
	a.Extension = ext
	a.Classifier = ""
	return a
}

// FileName is the Maven repository file name: artifactId-version[-classifier].extension.
func (a Artifact) FileName() string {
	name := a.ArtifactID + classifierDivider + a.Version
	if a.Classifier != "" {
		name += classifierDivider + a.Classifier
	}
	return name + extensionSeparator + a.Extension
}

// Path is the repository-relative path of the artifact file.
func (a Artifact) Path() string {
	return path.Join(GroupPath(a.GroupID), a.ArtifactID, a.Version, a.FileName())
}

// Metadata addresses a maven-metadata.xml document. Version is empty for
// artifact-level metadata, which is the only kind p2maven synthesizes.
type Metadata struct {
	GroupID    string
	ArtifactID string
	Version    string
}

// Path is the repository-relative path of the metadata file.
func (m Metadata) Path() string {
	parts := []string{GroupPath(m.GroupID)}
	if m.ArtifactID != "" {
		parts = append(parts, m.ArtifactID)
	}
	if m.Version != "" {
		parts = append(parts, m.Version)
	}
	return path.Join(append(parts, MetadataFileName)...)
}

func (m Metadata) String() string {
	return strings.Join([]string{m.GroupID, m.ArtifactID, m.Version}, coordinateDivider)
}

// GroupPath turns a dotted group id into a slash-separated path.
func GroupPath(groupID string) string {
	return strings.ReplaceAll(groupID, ".", "/")
}

// ParseFileName splits a repository file name belonging to artifactID and
// version into its classifier and extension. The extension is everything
// after the last dot.
func ParseFileName(artifactID, version, fileName string) (classifier, extension string, ok bool) {
	prefix := artifactID + classifierDivider + version
	if !strings.HasPrefix(fileName, prefix) {
		return "", "", false
	}
	rest := fileName[len(prefix):]
	dot := strings.LastIndex(rest, extensionSeparator)
	if dot < 0 || dot == len(rest)-1 {
		return "", "", false
	}
	extension = rest[dot+1:]
	head := rest[:dot]
	switch {
	case head == "":
		return "", extension, true
	case strings.HasPrefix(head, classifierDivider) && len(head) > 1:
		return head[1:], extension, true
	default:
		return "", "", false
	}
}
