// Package layout answers Maven coordinate lookups against one p2 repository,
// synthesizing the POMs, maven-metadata.xml documents and checksum side-files
// the p2 repository does not publish.
package layout

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/fsutil"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"github.com/glorpus-work/p2maven/pkg/p2"
	"github.com/google/uuid"
)

const (
	// Generator names the tool in synthesized document comments.
	Generator = "p2maven"

	placeholderPrefix   = "missing-"
	unresolvedVariable  = "${"
	metadataFilePattern = "maven-metadata-%s.xml"
)

// errAbsent marks a computation whose answer is "no such artifact". It is
// never cached, so a later lookup tries again.
var errAbsent = fmt.Errorf("artifact %w", errors.ErrNotFound)

// Checksum advertises a side-file holding the declared digest of an artifact.
type Checksum struct {
	Algorithm string
	Location  *url.URL
}

// Option configures a Session.
type Option func(*Session)

// WithScratchRoot overrides fsutil.GetScratchRoot as the parent of the
// session's scratch directory.
func WithScratchRoot(dir string) Option {
	return func(s *Session) {
		if dir != "" {
			s.scratchRoot = dir
		}
	}
}

// WithLocale selects the manifest localization used for POM fields.
func WithLocale(locale string) Option {
	return func(s *Session) { s.locale = locale }
}

// WithClock replaces time.Now for generation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGroupID overrides the Maven group the repository is published under.
// It defaults to the session id.
func WithGroupID(groupID string) Option {
	return func(s *Session) {
		if groupID != "" {
			s.groupID = groupID
		}
	}
}

// Session maps Maven coordinates onto one p2 repository. Every file it
// synthesizes or downloads lives in its own scratch directory, which Close
// removes.
type Session struct {
	id          string
	groupID     string
	registry    *p2.Registry
	repo        *p2.Repository
	scratchRoot string
	scratch     string
	locale      string
	now         func() time.Time

	poms      memo[*url.URL]
	metadata  memo[*url.URL]
	jars      memo[string]
	checksums memo[[]Checksum]

	mu     sync.Mutex
	files  []string
	closed bool
}

// NewSession creates a session for the repository at rawURL, registered under
// id. A URL that still contains an unresolved ${...} placeholder, or that does
// not parse, yields an inert session whose lookups all return nil.
func NewSession(registry *p2.Registry, id, rawURL string, opts ...Option) (*Session, error) {
	s := &Session{
		id:          id,
		groupID:     id,
		registry:    registry,
		scratchRoot: fsutil.GetScratchRoot(),
		locale:      "",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	repo, err := resolveLocation(registry, rawURL)
	if err != nil {
		logger.Warn("Skipping initialization of repository with uninterpretable URL", logger.Fields{
			"id":    id,
			"url":   rawURL,
			"error": err.Error(),
		})
		return s, nil
	}

	if err := fsutil.EnsureDir(s.scratchRoot); err != nil {
		return nil, errors.Wrapf(err, "create scratch root %s", s.scratchRoot)
	}
	s.scratch = filepath.Join(s.scratchRoot, fsutil.ScratchPrefix+sanitize(id)+"-"+uuid.NewString())
	if err := os.Mkdir(s.scratch, fsutil.DirModePrivate); err != nil {
		return nil, errors.Wrapf(err, "create scratch directory %s", s.scratch)
	}
	s.repo = repo
	logger.Debug("Opened session", logger.Fields{"id": id, "repository": repo.String(), "scratch": s.scratch})
	return s, nil
}

func resolveLocation(registry *p2.Registry, rawURL string) (*p2.Repository, error) {
	if strings.Contains(rawURL, unresolvedVariable) {
		return nil, fmt.Errorf("%q: %w", rawURL, errors.ErrUnresolvedPlaceholder)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("%q: %w: %w", rawURL, errors.ErrInvalidPath, err)
	}
	return registry.Lookup(rawURL)
}

// sanitize keeps names inside a single path segment.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

// ID is the repository identifier the session was created for.
func (s *Session) ID() string { return s.id }

// GroupID is the Maven group bundles are published under.
func (s *Session) GroupID() string { return s.groupID }

// Inert reports whether the repository URL could not be used.
func (s *Session) Inert() bool { return s.repo == nil }

// Repository is the backing p2 repository, nil when inert.
func (s *Session) Repository() *p2.Repository { return s.repo }

// ScratchDir is the directory holding the session's files.
func (s *Session) ScratchDir() string { return s.scratch }

// Bundles returns the flattened bundle list of the repository.
func (s *Session) Bundles(ctx context.Context) ([]*p2.Bundle, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.Inert() {
		return nil, nil
	}
	return s.repo.Bundles(ctx)
}

// Locate returns where the artifact can be read from: a remote bundle URL, a
// local file in the scratch directory, or a jar: URL into a downloaded bundle.
// A missing artifact yields a placeholder file URL that never exists. Inert
// sessions and extensions the repository cannot serve return nil.
func (s *Session) Locate(ctx context.Context, a maven.Artifact) (*url.URL, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	logger.Debug("Locating artifact", logger.Fields{"repository": s.id, "artifact": a.String()})
	if s.Inert() {
		return nil, nil
	}

	switch {
	case a.Extension == maven.ExtensionPom:
		return s.locatePOM(ctx, a)
	case a.Extension == maven.ExtensionJar && a.Classifier == "":
		return s.locateJar(ctx, a)
	case a.Extension == maven.ExtensionJar && (a.Classifier == maven.ClassifierSources || a.Classifier == maven.ClassifierJavadoc):
		return s.locateVariant(ctx, a)
	case a.Classifier != "":
		return s.locateEmbedded(ctx, a)
	default:
		return nil, nil
	}
}

func (s *Session) locateJar(ctx context.Context, a maven.Artifact) (*url.URL, error) {
	path, ok, err := s.localJar(ctx, a.ArtifactID, a.Version)
	if err != nil || !ok {
		return s.placeholder(), err
	}
	return fetch.FileURL(path), nil
}

func (s *Session) locateVariant(ctx context.Context, a maven.Artifact) (*url.URL, error) {
	bundle, ok, err := s.findBundle(ctx, a.ArtifactID, a.Version)
	if err != nil || !ok {
		return s.placeholder(), err
	}
	return bundle.URI(a.Classifier), nil
}

// findBundle returns the first bundle with the id and version.
func (s *Session) findBundle(ctx context.Context, id, version string) (*p2.Bundle, bool, error) {
	bundles, err := s.repo.Bundles(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, b := range bundles {
		if b.ID == id && b.Version == version {
			return b, true, nil
		}
	}
	return nil, false, nil
}

func (s *Session) findBundles(ctx context.Context, id string) ([]*p2.Bundle, error) {
	bundles, err := s.repo.Bundles(ctx)
	if err != nil {
		return nil, err
	}
	var out []*p2.Bundle
	for _, b := range bundles {
		if b.ID == id {
			out = append(out, b)
		}
	}
	return out, nil
}

// localJar downloads the default jar of a bundle into the scratch directory
// once per session.
func (s *Session) localJar(ctx context.Context, id, version string) (string, bool, error) {
	bundle, ok, err := s.findBundle(ctx, id, version)
	if err != nil || !ok {
		return "", false, err
	}
	path, err := s.jars.get(ctx, bundle.String(), func(ctx context.Context) (string, error) {
		return s.download(ctx, bundle)
	})
	if stderrors.Is(err, errAbsent) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

func (s *Session) download(ctx context.Context, bundle *p2.Bundle) (string, error) {
	src := bundle.URI("")
	rc, ok, err := s.registry.Opener().Open(ctx, src)
	if err != nil {
		return "", err
	}
	if !ok {
		logger.Debug("Bundle jar not found", logger.Fields{"url": src.String()})
		return "", errAbsent
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp(s.scratch, ".dl-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("GET %s: %w: %w", src, errors.ErrTransfer, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Wrap(err, "close temp file")
	}

	dest := filepath.Join(s.scratch, sanitize(bundle.FileName("")))
	if err := fsutil.Move(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Wrapf(err, "store %s", dest)
	}
	s.track(dest)
	logger.Debug("Downloaded bundle", logger.Fields{"url": src.String(), "path": dest})
	return dest, nil
}

// Checksums materializes the download.checksum.* properties of a plain jar
// artifact as side-files. Other artifacts advertise none.
func (s *Session) Checksums(ctx context.Context, a maven.Artifact) ([]Checksum, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.Inert() || a.Extension != maven.ExtensionJar || a.Classifier != "" {
		return nil, nil
	}
	return s.checksums.get(ctx, a.String(), func(ctx context.Context) ([]Checksum, error) {
		bundle, ok, err := s.findBundle(ctx, a.ArtifactID, a.Version)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		var out []Checksum
		for _, c := range bundle.Checksums() {
			path := filepath.Join(s.scratch, sanitize(bundle.FileName("")+"."+maven.ChecksumExtension(c.Algorithm)))
			if err := fsutil.WriteFileAtomic(path, []byte(c.Value), fsutil.FileModeDefault); err != nil {
				return nil, errors.Wrapf(err, "write checksum %s", path)
			}
			s.track(path)
			out = append(out, Checksum{Algorithm: c.Algorithm, Location: fetch.FileURL(path)})
		}
		return out, nil
	})
}

// placeholder is a location inside the scratch directory that is never created.
func (s *Session) placeholder() *url.URL {
	return fetch.FileURL(filepath.Join(s.scratch, placeholderPrefix+uuid.NewString()))
}

// IsPlaceholder reports whether u is a placeholder handed out by a session.
func IsPlaceholder(u *url.URL) bool {
	path, ok := fetch.LocalPath(u)
	return ok && strings.HasPrefix(filepath.Base(path), placeholderPrefix)
}

func (s *Session) track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, path)
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s: %w", s.id, errors.ErrClosed)
	}
	return nil
}

// Close deletes every file the session created and its scratch directory.
// Failures are ignored and repeated calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	files := s.files
	s.files = nil
	s.mu.Unlock()

	removed := fsutil.RemoveQuietly(files...)
	if s.scratch != "" {
		_ = os.RemoveAll(s.scratch)
	}
	logger.Debug("Closed session", logger.Fields{"id": s.id, "removed": removed})
	return nil
}
