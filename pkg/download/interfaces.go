//go:generate mockgen -destination=mocks/download.go . Manager
package download

import (
	"context"
	"net/url"
)

// Manager copies located artifacts to their destinations. Every source is
// read through a fetch.Opener, so remote bundles, session scratch files and
// jar: entries are all handled alike.
type Manager interface {
	// FetchAll downloads every item with bounded concurrency. The returned
	// results are index-aligned with items and carry per-item errors; the
	// error return is reserved for invalid options and cancellation.
	FetchAll(ctx context.Context, items []Item, opts Options) ([]Result, error)

	// Fetch downloads a single item and returns the absolute local path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)
}

// Checksum is a declared digest the downloaded content must match.
type Checksum struct {
	Algorithm string // e.g. "sha-256"
	Value     string // hex
}

// Item represents one resource to download.
type Item struct {
	ID        string     // caller's identifier, used in logs
	URL       *url.URL   // source location
	Dest      string     // absolute destination; derived under Options.Dir when empty
	Checksums []Checksum // verified after the transfer; unknown algorithms are skipped
}

// Result is the outcome of one item.
type Result struct {
	Item Item
	Path string
	Err  error
}

// Options control the behavior of the download manager.
type Options struct {
	Dir         string // directory for items without Dest. Must be absolute when used.
	Concurrency int    // number of parallel downloads; if <=0, a sane default is used
}
