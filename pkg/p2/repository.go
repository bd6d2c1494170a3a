// Package p2 indexes the bundles of p2 artifact repositories, following
// composite repositories into their children.
package p2

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"sync"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/mholt/archives"
	"golang.org/x/sync/singleflight"
)

// Descriptor base names.
const (
	ArtifactsName          = "artifacts"
	CompositeArtifactsName = "compositeArtifacts"
)

// Registry shares one Repository per normalized location. Concurrent first
// resolutions of the same location are coalesced into a single fetch.
type Registry struct {
	opener fetch.Opener

	mu     sync.Mutex
	repos  map[string]*Repository
	flight singleflight.Group
}

// NewRegistry creates a new Registry reading descriptors through opener.
func NewRegistry(opener fetch.Opener) *Registry {
	return &Registry{
		opener: opener,
		repos:  make(map[string]*Repository),
	}
}

// Get returns the Repository for location, creating it on first use.
func (r *Registry) Get(location *url.URL) *Repository {
	loc := normalize(location)
	key := loc.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if repo, ok := r.repos[key]; ok {
		return repo
	}
	repo := &Repository{location: loc, key: key, registry: r, descriptors: map[string]interface{}{}}
	r.repos[key] = repo
	return repo
}

// Lookup parses raw with ParseLocation and returns its Repository.
func (r *Registry) Lookup(raw string) (*Repository, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	return r.Get(loc), nil
}

// Opener is the opener descriptors are read through.
func (r *Registry) Opener() fetch.Opener {
	return r.opener
}

// Len reports how many repositories the registry knows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.repos)
}

// Repository is one p2 repository location. Its bundle list is resolved at
// most once and never refreshed.
type Repository struct {
	location *url.URL
	key      string
	registry *Registry

	mu          sync.RWMutex
	resolved    bool
	bundles     []*Bundle
	descriptors map[string]interface{} // parsed descriptor content by base name
}

// Location returns the normalized base URL, always ending in a slash.
func (r *Repository) Location() *url.URL {
	c := *r.location
	return &c
}

func (r *Repository) String() string {
	return r.key
}

// Resolved reports whether the bundle list has been loaded.
func (r *Repository) Resolved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved
}

// Bundles returns the flattened bundle list: bundles of composite children in
// declaration order, followed by the repository's own bundles. Absent or
// malformed descriptors contribute nothing; a transfer error is returned and
// leaves the repository unresolved so a later call can retry.
//
// The shared resolution is not bound to any one caller: cancelling ctx only
// stops this caller from waiting for it.
func (r *Repository) Bundles(ctx context.Context) ([]*Bundle, error) {
	if bundles, ok := r.cached(); ok {
		return bundles, nil
	}
	ch := r.registry.flight.DoChan(r.key, func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), map[string]struct{}{})
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]*Bundle)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Repository) cached() ([]*Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.resolved {
		return nil, false
	}
	return clone(r.bundles), true
}

// resolve assembles the bundle list. Children are resolved through here
// directly, since two flights waiting on each other's children would deadlock
// in a cycle; their descriptor fetches are still shared through descriptor.
func (r *Repository) resolve(ctx context.Context, chain map[string]struct{}) ([]*Bundle, error) {
	if bundles, ok := r.cached(); ok {
		return bundles, nil
	}
	chain[r.key] = struct{}{}
	defer delete(chain, r.key)

	var bundles []*Bundle

	children, err := r.compositeChildren(ctx)
	if err != nil {
		return nil, err
	}
	for _, loc := range children {
		child := r.registry.Get(loc)
		if _, seen := chain[child.key]; seen {
			logger.Warn("Composite repository cycle, skipping child", logger.Fields{
				"repository": r.key,
				"child":      child.key,
			})
			continue
		}
		childBundles, err := child.resolve(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("child %s of %s: %w", child.key, r.key, err)
		}
		bundles = append(bundles, childBundles...)
	}

	own, err := r.ownBundles(ctx)
	if err != nil {
		return nil, err
	}
	bundles = append(bundles, own...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolved {
		r.bundles = bundles
		r.resolved = true
		logger.Debug("Resolved repository", logger.Fields{"repository": r.key, "bundles": len(bundles)})
	}
	return clone(r.bundles), nil
}

// descriptor returns the parsed content of the named descriptor, loading it
// at most once per repository. Concurrent loads of the same descriptor share
// one fetch; failed loads are not kept.
func (r *Repository) descriptor(ctx context.Context, name string, load func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := r.loadedDescriptor(name); ok {
		return v, nil
	}
	v, err, _ := r.registry.flight.Do(r.key+"#"+name, func() (interface{}, error) {
		if v, ok := r.loadedDescriptor(name); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.descriptors[name] = v
		r.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (r *Repository) loadedDescriptor(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.descriptors[name]
	return v, ok
}

func (r *Repository) compositeChildren(ctx context.Context) ([]*url.URL, error) {
	v, err := r.descriptor(ctx, CompositeArtifactsName, func(ctx context.Context) (interface{}, error) {
		data, source, ok, err := r.registry.findDescriptor(ctx, r.location, CompositeArtifactsName)
		if err != nil || !ok {
			return []*url.URL(nil), softError(err, r.key, CompositeArtifactsName)
		}
		children, err := ParseComposite(bytes.NewReader(data), r.location)
		if err != nil {
			return []*url.URL(nil), softError(err, source, CompositeArtifactsName)
		}
		return children, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*url.URL), nil
}

func (r *Repository) ownBundles(ctx context.Context) ([]*Bundle, error) {
	v, err := r.descriptor(ctx, ArtifactsName, func(ctx context.Context) (interface{}, error) {
		data, source, ok, err := r.registry.findDescriptor(ctx, r.location, ArtifactsName)
		if err != nil || !ok {
			return []*Bundle(nil), softError(err, r.key, ArtifactsName)
		}
		bundles, err := ParseArtifacts(bytes.NewReader(data), r.location)
		if err != nil {
			return []*Bundle(nil), softError(err, source, ArtifactsName)
		}
		return bundles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Bundle), nil
}

// softError logs malformed descriptors and drops them; other errors pass through.
func softError(err error, source, name string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, errors.ErrMalformedDocument) {
		logger.Warn("Ignoring malformed descriptor", logger.Fields{
			"source":     source,
			"descriptor": name,
			"error":      err.Error(),
		})
		return nil
	}
	return err
}

type lookup func(ctx context.Context) ([]byte, bool, error)

// firstOf runs lookups in order and returns the first present result. An
// error stops the chain.
func firstOf(ctx context.Context, lookups ...lookup) ([]byte, int, bool, error) {
	for i, l := range lookups {
		data, ok, err := l(ctx)
		if err != nil {
			return nil, i, false, err
		}
		if ok {
			return data, i, true, nil
		}
	}
	return nil, -1, false, nil
}

// findDescriptor reads <name>.xml, <name>.xml.xz or <name>.jar under base,
// whichever exists first, and returns the XML bytes and the URL they came from.
func (r *Registry) findDescriptor(ctx context.Context, base *url.URL, name string) ([]byte, string, bool, error) {
	candidates := []*url.URL{
		descriptorURL(base, name+".xml"),
		descriptorURL(base, name+".xml.xz"),
		descriptorURL(base, name+".jar"),
	}
	data, idx, ok, err := firstOf(ctx,
		r.readPlain(candidates[0]),
		r.readXZ(candidates[1]),
		r.readJar(candidates[2]),
	)
	if idx < 0 {
		logger.Debug("No descriptor found", logger.Fields{"base": base.String(), "descriptor": name})
		return nil, "", false, nil
	}
	source := candidates[idx].String()
	if err != nil {
		return nil, source, false, err
	}
	return data, source, ok, nil
}

func (r *Registry) readPlain(u *url.URL) lookup {
	return func(ctx context.Context) ([]byte, bool, error) {
		return fetch.ReadAll(ctx, r.opener, u)
	}
}

func (r *Registry) readXZ(u *url.URL) lookup {
	return func(ctx context.Context) ([]byte, bool, error) {
		raw, ok, err := fetch.ReadAll(ctx, r.opener, u)
		if err != nil || !ok {
			return nil, ok, err
		}
		rc, err := archives.Xz{}.OpenReader(bytes.NewReader(raw))
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w: %w", u, errors.ErrMalformedDocument, err)
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w: %w", u, errors.ErrMalformedDocument, err)
		}
		return data, true, nil
	}
}

// readJar returns the first regular entry outside META-INF.
func (r *Registry) readJar(u *url.URL) lookup {
	return func(ctx context.Context) ([]byte, bool, error) {
		raw, ok, err := fetch.ReadAll(ctx, r.opener, u)
		if err != nil || !ok {
			return nil, ok, err
		}
		var data []byte
		found := false
		err = archives.Zip{}.Extract(ctx, bytes.NewReader(raw), func(_ context.Context, info archives.FileInfo) error {
			if info.IsDir() || strings.HasPrefix(strings.ToUpper(info.NameInArchive), "META-INF/") {
				return nil
			}
			f, err := info.Open()
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			data, err = io.ReadAll(f)
			if err != nil {
				return err
			}
			found = true
			return fs.SkipAll
		})
		if err != nil && !stderrors.Is(err, fs.SkipAll) {
			return nil, false, fmt.Errorf("%s: %w: %w", u, errors.ErrMalformedDocument, err)
		}
		if !found {
			return nil, false, fmt.Errorf("%s has no descriptor entry: %w", u, errors.ErrMalformedDocument)
		}
		return data, true, nil
	}
}

func clone(in []*Bundle) []*Bundle {
	if in == nil {
		return []*Bundle{}
	}
	out := make([]*Bundle, len(in))
	copy(out, in)
	return out
}
