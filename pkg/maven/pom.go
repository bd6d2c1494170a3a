package maven

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	pomNamespace      = "http://maven.apache.org/POM/4.0.0"
	xsiNamespace      = "http://www.w3.org/2001/XMLSchema-instance"
	pomSchemaLocation = "http://maven.apache.org/POM/4.0.0 http://maven.apache.org/xsd/maven-4.0.0.xsd"
	xmlIndent         = "  "
)

// Project is the subset of a POM that p2maven synthesizes. Field order is the
// element order of the written document.
type Project struct {
	XMLName        xml.Name `xml:"project"`
	Xmlns          string   `xml:"xmlns,attr"`
	XmlnsXsi       string   `xml:"xmlns:xsi,attr"`
	SchemaLocation string   `xml:"xsi:schemaLocation,attr"`

	ModelVersion string        `xml:"modelVersion"`
	GroupID      string        `xml:"groupId"`
	ArtifactID   string        `xml:"artifactId"`
	Version      string        `xml:"version"`
	Name         string        `xml:"name,omitempty"`
	Description  string        `xml:"description,omitempty"`
	Licenses     *Licenses     `xml:"licenses,omitempty"`
	Organization *Organization `xml:"organization,omitempty"`
	Copyright    xml.Comment   `xml:",comment"`
	URL          string        `xml:"url,omitempty"`
	SCM          *SCM          `xml:"scm,omitempty"`
	Dependencies *Dependencies `xml:"dependencies,omitempty"`
}

// Licenses wraps the license list.
type Licenses struct {
	License []License `xml:"license"`
}

// License is one POM license entry.
type License struct {
	Name string `xml:"name,omitempty"`
	URL  string `xml:"url,omitempty"`
}

// Organization is the POM organization element.
type Organization struct {
	Name string `xml:"name"`
}

// SCM is the POM scm element.
type SCM struct {
	URL string `xml:"url"`
}

// Dependencies wraps the dependency list. An empty, non-nil list is written
// as an empty element.
type Dependencies struct {
	Dependency []Dependency `xml:"dependency"`
}

// Dependency is one POM dependency.
type Dependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Classifier string `xml:"classifier,omitempty"`
	Optional   bool   `xml:"optional,omitempty"`
}

// NewProject returns a POM skeleton for the coordinate.
func NewProject(groupID, artifactID, version string) *Project {
	return &Project{
		Xmlns:          pomNamespace,
		XmlnsXsi:       xsiNamespace,
		SchemaLocation: pomSchemaLocation,
		ModelVersion:   DefaultPOMVersion,
		GroupID:        groupID,
		ArtifactID:     artifactID,
		Version:        version,
	}
}

// SetCopyright stores text as a comment; XML comments cannot contain "--".
func (p *Project) SetCopyright(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		p.Copyright = nil
		return
	}
	for strings.Contains(text, "--") {
		text = strings.ReplaceAll(text, "--", "- -")
	}
	p.Copyright = xml.Comment(" " + text + " ")
}

// AddDependency appends a dependency, creating the list on first use.
func (p *Project) AddDependency(d Dependency) {
	p.EnsureDependencies()
	p.Dependencies.Dependency = append(p.Dependencies.Dependency, d)
}

// EnsureDependencies makes the dependencies element present even if empty.
func (p *Project) EnsureDependencies() {
	if p.Dependencies == nil {
		p.Dependencies = &Dependencies{}
	}
}

// Provenance is written as leading comments of a synthesized document.
type Provenance struct {
	Generator string
	Generated time.Time
	Source    string
}

func (pv Provenance) comments() []xml.Comment {
	var out []xml.Comment
	if pv.Generator != "" {
		out = append(out, xml.Comment(fmt.Sprintf(" Generated by %s at %s ", pv.Generator, pv.Generated.UTC().Format(time.RFC3339))))
	}
	if pv.Source != "" {
		out = append(out, xml.Comment(" Source: "+strings.ReplaceAll(pv.Source, "--", "%2D%2D")+" "))
	}
	return out
}

// Encode writes the POM with an XML declaration and provenance comments.
func (p *Project) Encode(w io.Writer, pv Provenance) error {
	return encodeDocument(w, p, pv)
}

// Bytes is Encode into memory.
func (p *Project) Bytes(pv Provenance) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := p.Encode(buf, pv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeDocument(w io.Writer, doc any, pv Provenance) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", xmlIndent)
	// the encoder's indentation puts each top-level token on its own line
	for _, c := range pv.comments() {
		if err := enc.EncodeToken(c); err != nil {
			return fmt.Errorf("encode comment: %w", err)
		}
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
