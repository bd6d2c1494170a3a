package layout

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/fsutil"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"github.com/glorpus-work/p2maven/pkg/osgi"
	"github.com/glorpus-work/p2maven/pkg/p2"
	"github.com/mholt/archives"
)

const (
	classPathSelf       = "."
	jarSuffix           = ".jar"
	classifierSeparator = "$"
	pathSeparator       = "/"
	resolutionDirective = "resolution"
	resolutionOptional  = "optional"
	licenseLinkAttr     = "link"
)

func (s *Session) locatePOM(ctx context.Context, a maven.Artifact) (*url.URL, error) {
	if a.GroupID != s.groupID {
		return s.placeholder(), nil
	}
	u, err := s.poms.get(ctx, a.ArtifactID+":"+a.Version, func(ctx context.Context) (*url.URL, error) {
		data, err := s.SynthesizePOM(ctx, a.ArtifactID, a.Version)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(s.scratch, sanitize(a.ArtifactID+"-"+a.Version+"."+maven.ExtensionPom))
		if err := fsutil.WriteFileAtomic(path, data, fsutil.FileModeDefault); err != nil {
			return nil, errors.Wrapf(err, "write pom %s", path)
		}
		s.track(path)
		return fetch.FileURL(path), nil
	})
	if stderrors.Is(err, errAbsent) {
		return s.placeholder(), nil
	}
	return u, err
}

// SynthesizePOM builds the POM of a bundle, failing with errors.ErrNotFound
// when the repository has no such bundle. Name, licensing, organization and
// dependency information come from the bundle manifest when the jar can be
// downloaded; otherwise the POM carries the coordinate only.
func (s *Session) SynthesizePOM(ctx context.Context, artifactID, version string) ([]byte, error) {
	bundle, ok, err := s.findBundle(ctx, artifactID, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errAbsent
	}

	project := maven.NewProject(s.groupID, artifactID, version)
	jar, ok, err := s.localJar(ctx, artifactID, version)
	if err != nil {
		return nil, err
	}
	if ok {
		manifest, err := osgi.ReadManifest(ctx, jar, s.locale)
		if err != nil {
			logger.Warn("Cannot read bundle manifest", logger.Fields{"bundle": bundle.String(), "error": err.Error()})
		} else {
			addBundleMetadata(project, manifest)
			if err := s.addBundleDependencies(ctx, project, artifactID, version, manifest); err != nil {
				return nil, err
			}
		}
	}

	return project.Bytes(maven.Provenance{
		Generator: Generator,
		Generated: s.now(),
		Source:    bundle.URI("").String(),
	})
}

func addBundleMetadata(project *maven.Project, m *osgi.Manifest) {
	project.Name = m.Get(osgi.HeaderBundleName)
	project.Description = m.Get(osgi.HeaderBundleDescription)
	if license := m.Get(osgi.HeaderBundleLicense); license != "" {
		project.Licenses = &maven.Licenses{License: licenses(license)}
	}
	if vendor := m.Get(osgi.HeaderBundleVendor); vendor != "" {
		project.Organization = &maven.Organization{Name: vendor}
	}
	project.SetCopyright(m.Get(osgi.HeaderBundleCopyright))
	project.URL = m.Get(osgi.HeaderBundleDocURL)
	if refs := osgi.ParseHeader(m.Get(osgi.HeaderEclipseSourceRefs)); len(refs) > 0 {
		project.SCM = &maven.SCM{URL: refs[0].Value()}
	}
}

// licenses maps Bundle-License. Clauses with a link attribute become named
// licenses; anything else is kept verbatim as a single license URL.
func licenses(header string) []maven.License {
	var out []maven.License
	for _, c := range osgi.ParseHeader(header) {
		link := c.Attribute(licenseLinkAttr)
		if link == "" {
			return []maven.License{{URL: header}}
		}
		out = append(out, maven.License{Name: c.Value(), URL: link})
	}
	if len(out) == 0 {
		return []maven.License{{URL: header}}
	}
	return out
}

func (s *Session) addBundleDependencies(ctx context.Context, project *maven.Project, artifactID, version string, m *osgi.Manifest) error {
	if raw, _ := m.Raw(osgi.HeaderRequireBundle); raw != "" {
		project.EnsureDependencies()
		bundles, err := s.repo.Bundles(ctx)
		if err != nil {
			return err
		}
		for _, clause := range m.Clauses(osgi.HeaderRequireBundle) {
			dep, ok := matchRequirement(bundles, clause)
			if !ok {
				logger.Debug("Required bundle not in repository", logger.Fields{"bundle": artifactID, "requires": clause.Value()})
				continue
			}
			project.AddDependency(maven.Dependency{
				GroupID:    s.groupID,
				ArtifactID: dep.ID,
				Version:    dep.Version,
				Optional:   clause.Directive(resolutionDirective) == resolutionOptional,
			})
		}
	}

	if raw, _ := m.Raw(osgi.HeaderBundleClassPath); raw != "" {
		project.EnsureDependencies()
		for _, clause := range m.Clauses(osgi.HeaderBundleClassPath) {
			for _, entry := range clause.Values {
				if entry == "" || entry == classPathSelf {
					continue
				}
				if strings.HasSuffix(strings.ToLower(entry), jarSuffix) {
					entry = entry[:len(entry)-len(jarSuffix)]
				}
				project.AddDependency(maven.Dependency{
					GroupID:    s.groupID,
					ArtifactID: artifactID,
					Version:    version,
					Classifier: EncodeClassifier(entry),
				})
			}
		}
	}
	return nil
}

// matchRequirement finds the first bundle named by a Require-Bundle clause
// whose version lies in the clause's bundle-version range.
func matchRequirement(bundles []*p2.Bundle, clause osgi.Clause) (*p2.Bundle, bool) {
	rng, err := osgi.ParseRange(clause.Attribute(osgi.AttributeBundleVersion))
	if err != nil {
		logger.Warn("Ignoring requirement with invalid version range", logger.Fields{
			"requires": clause.Value(),
			"error":    err.Error(),
		})
		return nil, false
	}
	name := clause.Value()
	for _, b := range bundles {
		if b.ID == name && rng.IncludesString(b.Version) {
			return b, true
		}
	}
	return nil, false
}

// EncodeClassifier turns an embedded jar path into a classifier token.
func EncodeClassifier(entry string) string {
	return strings.ReplaceAll(entry, pathSeparator, classifierSeparator)
}

// DecodeClassifier is the inverse of EncodeClassifier.
func DecodeClassifier(classifier string) string {
	return strings.ReplaceAll(classifier, classifierSeparator, pathSeparator)
}

// LocateMetadata returns a synthesized maven-metadata.xml listing every
// version of the artifact. Without matching bundles the placeholder is
// returned and nothing is written.
func (s *Session) LocateMetadata(ctx context.Context, md maven.Metadata) (*url.URL, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	logger.Debug("Locating metadata", logger.Fields{"repository": s.id, "metadata": md.String()})
	if s.Inert() {
		return nil, nil
	}
	if md.GroupID != s.groupID || md.ArtifactID == "" || md.Version != "" {
		return s.placeholder(), nil
	}

	u, err := s.metadata.get(ctx, md.ArtifactID, func(ctx context.Context) (*url.URL, error) {
		data, err := s.SynthesizeMetadata(ctx, md.ArtifactID)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(s.scratch, sanitize(fmt.Sprintf(metadataFilePattern, md.ArtifactID)))
		if err := fsutil.WriteFileAtomic(path, data, fsutil.FileModeDefault); err != nil {
			return nil, errors.Wrapf(err, "write metadata %s", path)
		}
		s.track(path)
		return fetch.FileURL(path), nil
	})
	if stderrors.Is(err, errAbsent) {
		return s.placeholder(), nil
	}
	return u, err
}

// SynthesizeMetadata renders maven-metadata.xml for an artifact id, failing
// with errors.ErrNotFound when no bundle carries that id.
func (s *Session) SynthesizeMetadata(ctx context.Context, artifactID string) ([]byte, error) {
	bundles, err := s.findBundles(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if len(bundles) == 0 {
		return nil, errAbsent
	}
	versions := make([]string, 0, len(bundles))
	for _, b := range bundles {
		versions = append(versions, b.Version)
	}
	return maven.NewRepositoryMetadata(s.groupID, artifactID, versions, s.now()).Bytes(maven.Provenance{})
}

// locateEmbedded addresses a file inside the default jar: classifier
// "docs$html" with extension "txt" names the entry docs/html.txt.
func (s *Session) locateEmbedded(ctx context.Context, a maven.Artifact) (*url.URL, error) {
	jar, ok, err := s.localJar(ctx, a.ArtifactID, a.Version)
	if err != nil || !ok {
		return s.placeholder(), err
	}

	fsys, err := archives.FileSystem(ctx, jar, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open bundle jar %s", jar)
	}
	if closer, ok := fsys.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	candidates := []string{
		a.Classifier + "." + a.Extension,
		DecodeClassifier(a.Classifier) + "." + a.Extension,
		EncodeClassifier(a.Classifier) + "." + a.Extension,
	}
	for _, name := range candidates {
		if !fs.ValidPath(name) {
			continue
		}
		st, err := fs.Stat(fsys, name)
		if err != nil || st.IsDir() {
			continue
		}
		return fetch.JarURL(fetch.FileURL(jar), name), nil
	}
	return s.placeholder(), nil
}
