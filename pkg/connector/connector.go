// Package connector performs batch transfers of Maven artifacts and metadata
// against a p2 repository session. Every request records its own outcome.
package connector

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/download"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/layout"
	"github.com/glorpus-work/p2maven/pkg/maven"
	"golang.org/x/sync/errgroup"
)

// Locator is the part of layout.Session the connector needs.
type Locator interface {
	ID() string
	Locate(ctx context.Context, a maven.Artifact) (*url.URL, error)
	LocateMetadata(ctx context.Context, md maven.Metadata) (*url.URL, error)
	Checksums(ctx context.Context, a maven.Artifact) ([]layout.Checksum, error)
	Close() error
}

// ArtifactDownload requests one artifact copied to Dest. Err is set by Get.
type ArtifactDownload struct {
	Artifact maven.Artifact
	Dest     string
	Err      error
}

// MetadataDownload requests one maven-metadata.xml copied to Dest.
type MetadataDownload struct {
	Metadata maven.Metadata
	Dest     string
	Err      error
}

// ArtifactUpload and MetadataUpload describe uploads, which p2 repositories
// cannot accept.
type ArtifactUpload struct {
	Artifact maven.Artifact
	Source   string
}

// MetadataUpload is a metadata upload request.
type MetadataUpload struct {
	Metadata maven.Metadata
	Source   string
}

// Option configures a Connector.
type Option func(*Connector)

// WithConcurrency bounds the number of parallel resolutions and transfers.
func WithConcurrency(n int) Option {
	return func(c *Connector) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// Connector transfers artifacts out of one repository session.
type Connector struct {
	session     Locator
	downloads   download.Manager
	opener      fetch.Opener
	concurrency int

	mu     sync.Mutex
	closed bool
}

// New creates a connector over session. Side-files are read through opener;
// copies run through downloads.
func New(session Locator, downloads download.Manager, opener fetch.Opener, opts ...Option) *Connector {
	c := &Connector{
		session:     session,
		downloads:   downloads,
		opener:      opener,
		concurrency: download.DefaultConcurrency(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// plan is the resolved form of one request.
type plan struct {
	main  download.Item
	sides []download.Item
	fail  func(error)
	ready bool
}

// Get downloads every request. Failures are recorded on the requests; the
// returned error reports a closed connector or cancellation.
func (c *Connector) Get(ctx context.Context, artifacts []*ArtifactDownload, metadata []*MetadataDownload) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	plans := make([]*plan, 0, len(artifacts)+len(metadata))
	var jobs []func(context.Context, *plan)
	for _, a := range artifacts {
		plans = append(plans, &plan{fail: func(err error) { a.Err = err }})
		jobs = append(jobs, func(ctx context.Context, p *plan) { c.planArtifact(ctx, a, p) })
	}
	for _, md := range metadata {
		plans = append(plans, &plan{fail: func(err error) { md.Err = err }})
		jobs = append(jobs, func(ctx context.Context, p *plan) { c.planMetadata(ctx, md, p) })
	}

	c.resolve(ctx, plans, jobs)
	c.transfer(ctx, plans)
	return ctx.Err()
}

// resolve runs the planning jobs on a bounded pool. Requests not yet
// scheduled when ctx is cancelled fail with ctx.Err().
func (c *Connector) resolve(ctx context.Context, plans []*plan, jobs []func(context.Context, *plan)) {
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	var inFlight atomic.Int64

	scheduled := 0
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		p := plans[i]
		inFlight.Add(1)
		g.Go(func() error {
			defer inFlight.Add(-1)
			job(ctx, p)
			return nil
		})
		scheduled++
	}
	if scheduled < len(jobs) {
		logger.Warn("Transfer interrupted", logger.Fields{
			"repository": c.session.ID(),
			"in_flight":  inFlight.Load(),
			"skipped":    len(jobs) - scheduled,
		})
		for _, p := range plans[scheduled:] {
			p.fail(ctx.Err())
		}
	}
	_ = g.Wait()
}

func (c *Connector) planArtifact(ctx context.Context, req *ArtifactDownload, p *plan) {
	dest, err := absolute(req.Dest)
	if err != nil {
		p.fail(err)
		return
	}
	u, err := c.session.Locate(ctx, req.Artifact)
	if err != nil {
		p.fail(err)
		return
	}
	if u == nil {
		p.fail(fmt.Errorf("artifact %s: %w", req.Artifact, errors.ErrNotFound))
		return
	}

	sums, err := c.session.Checksums(ctx, req.Artifact)
	if err != nil {
		p.fail(err)
		return
	}
	p.main = download.Item{ID: req.Artifact.String(), URL: u, Dest: dest}
	for _, sum := range sums {
		declared, ok, err := fetch.ReadAll(ctx, c.opener, sum.Location)
		if err != nil {
			p.fail(err)
			return
		}
		if !ok {
			logger.Debug("Checksum side-file vanished", logger.Fields{"url": sum.Location.String()})
			continue
		}
		p.main.Checksums = append(p.main.Checksums, download.Checksum{
			Algorithm: sum.Algorithm,
			Value:     strings.TrimSpace(string(declared)),
		})
		p.sides = append(p.sides, download.Item{
			ID:   req.Artifact.String() + "." + maven.ChecksumExtension(sum.Algorithm),
			URL:  sum.Location,
			Dest: dest + "." + maven.ChecksumExtension(sum.Algorithm),
		})
	}
	p.ready = true
}

func (c *Connector) planMetadata(ctx context.Context, req *MetadataDownload, p *plan) {
	dest, err := absolute(req.Dest)
	if err != nil {
		p.fail(err)
		return
	}
	u, err := c.session.LocateMetadata(ctx, req.Metadata)
	if err != nil {
		p.fail(err)
		return
	}
	if u == nil {
		p.fail(fmt.Errorf("metadata %s: %w", req.Metadata, errors.ErrNotFound))
		return
	}
	p.main = download.Item{ID: req.Metadata.String(), URL: u, Dest: dest}
	p.ready = true
}

// transfer copies the main files first and writes checksum side-files only
// next to verified downloads.
func (c *Connector) transfer(ctx context.Context, plans []*plan) {
	var ready []*plan
	items := make([]download.Item, 0, len(plans))
	for _, p := range plans {
		if p.ready {
			ready = append(ready, p)
			items = append(items, p.main)
		}
	}
	if len(items) == 0 {
		return
	}
	opts := download.Options{Concurrency: c.concurrency}

	results, _ := c.downloads.FetchAll(ctx, items, opts)
	var sides []download.Item
	var owners []*plan
	for i, p := range ready {
		if err := resultErr(results, i); err != nil {
			p.fail(err)
			continue
		}
		for _, side := range p.sides {
			sides = append(sides, side)
			owners = append(owners, p)
		}
	}
	if len(sides) == 0 {
		return
	}

	results, _ = c.downloads.FetchAll(ctx, sides, opts)
	for i, p := range owners {
		if err := resultErr(results, i); err != nil {
			p.fail(err)
		}
	}
}

func resultErr(results []download.Result, i int) error {
	if i >= len(results) {
		return fmt.Errorf("no transfer result: %w", errors.ErrTransfer)
	}
	return results[i].Err
}

func absolute(dest string) (string, error) {
	if dest == "" {
		return "", fmt.Errorf("empty destination: %w", errors.ErrInvalidPath)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", dest, errors.ErrInvalidPath, err)
	}
	return abs, nil
}

// Put accepts upload requests and does nothing: p2 repositories are read-only.
func (c *Connector) Put(_ context.Context, artifacts []*ArtifactUpload, metadata []*MetadataUpload) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	logger.Debug("Ignoring upload request", logger.Fields{
		"repository": c.session.ID(),
		"artifacts":  len(artifacts),
		"metadata":   len(metadata),
		"reason":     errors.ErrUnsupported.Error(),
	})
	return nil
}

func (c *Connector) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connector %s: %w", c.session.ID(), errors.ErrClosed)
	}
	return nil
}

// Close closes the session. Repeated calls are no-ops.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.session.Close()
}
