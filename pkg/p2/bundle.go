package p2

import (
	"net/url"
	"sort"
	"strings"
)

const (
	// ClassifierBundle marks artifacts that are OSGi bundles.
	ClassifierBundle = "osgi.bundle"
	// ChecksumPropertyPrefix prefixes the checksum properties of an artifact.
	ChecksumPropertyPrefix = "download.checksum."
	// PluginsDir is where a repository keeps its bundle jars.
	PluginsDir = "plugins"

	classifierSources = "sources"
	suffixSource      = "source"
)

// Bundle is one osgi.bundle artifact of a repository.
type Bundle struct {
	ID         string
	Version    string
	Properties map[string]string
	// Location is the base of the repository that declared the bundle.
	Location *url.URL
}

// Checksum is a digest declared by a bundle's properties.
type Checksum struct {
	Algorithm string
	Value     string
}

// FileName is the jar name for a classifier: sources maps to the .source
// suffix, any other non-empty classifier is appended as-is.
func (b *Bundle) FileName(classifier string) string {
	var sb strings.Builder
	sb.WriteString(b.ID)
	switch classifier {
	case "":
	case classifierSources:
		sb.WriteString("." + suffixSource)
	default:
		sb.WriteString("." + classifier)
	}
	sb.WriteString("_" + b.Version + ".jar")
	return sb.String()
}

// URI is the download location of the bundle jar or one of its variants.
func (b *Bundle) URI(classifier string) *url.URL {
	return b.Location.ResolveReference(&url.URL{Path: JoinPath(PluginsDir, b.FileName(classifier))})
}

// Checksums lists the download.checksum.* properties, sorted by algorithm.
func (b *Bundle) Checksums() []Checksum {
	var out []Checksum
	for k, v := range b.Properties {
		if algo, ok := strings.CutPrefix(k, ChecksumPropertyPrefix); ok && algo != "" {
			out = append(out, Checksum{Algorithm: algo, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Algorithm < out[j].Algorithm })
	return out
}

func (b *Bundle) String() string {
	return b.ID + ":" + b.Version
}
