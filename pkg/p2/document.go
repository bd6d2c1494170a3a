package p2

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/glorpus-work/p2maven/pkg/errors"
)

type artifactsDocument struct {
	XMLName   xml.Name          `xml:"repository"`
	Artifacts []artifactElement `xml:"artifacts>artifact"`
}

type artifactElement struct {
	ID         string             `xml:"id,attr"`
	Version    string             `xml:"version,attr"`
	Classifier string             `xml:"classifier,attr"`
	Properties []propertyElement  `xml:"properties>property"`
	Processing *processingElement `xml:"processing"`
}

type propertyElement struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type processingElement struct{}

type compositeDocument struct {
	XMLName  xml.Name       `xml:"repository"`
	Children []childElement `xml:"children>child"`
}

type childElement struct {
	Location string `xml:"location,attr"`
}

// ParseArtifacts reads an artifacts.xml document and returns its installable
// bundles: entries classified osgi.bundle that carry no processing step.
func ParseArtifacts(r io.Reader, base *url.URL) ([]*Bundle, error) {
	var doc artifactsDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("artifacts descriptor: %w: %w", errors.ErrMalformedDocument, err)
	}

	bundles := make([]*Bundle, 0, len(doc.Artifacts))
	for _, a := range doc.Artifacts {
		if a.Classifier != ClassifierBundle || a.Processing != nil {
			continue
		}
		props := make(map[string]string, len(a.Properties))
		for _, p := range a.Properties {
			props[p.Name] = p.Value
		}
		bundles = append(bundles, &Bundle{
			ID:         a.ID,
			Version:    a.Version,
			Properties: props,
			Location:   base,
		})
	}
	return bundles, nil
}

// ParseComposite reads a compositeArtifacts.xml document and returns the child
// locations resolved against base, in declaration order.
func ParseComposite(r io.Reader, base *url.URL) ([]*url.URL, error) {
	var doc compositeDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("composite descriptor: %w: %w", errors.ErrMalformedDocument, err)
	}

	children := make([]*url.URL, 0, len(doc.Children))
	for _, c := range doc.Children {
		loc := strings.TrimSpace(c.Location)
		if loc == "" {
			continue
		}
		ref, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("child location %q: %w: %w", loc, errors.ErrMalformedDocument, err)
		}
		children = append(children, normalize(base.ResolveReference(ref)))
	}
	return children, nil
}
