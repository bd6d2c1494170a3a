package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/glorpus-work/p2maven/internal/logger"
	pkgerrors "github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fetch"
	"github.com/glorpus-work/p2maven/pkg/fsutil"
	"github.com/glorpus-work/p2maven/pkg/maven"
)

// ManagerImpl reads sources through an Opener and writes them atomically,
// verifying declared checksums before the destination is replaced.
type ManagerImpl struct {
	opener fetch.Opener
}

// NewManager creates a new download manager reading through opener.
func NewManager(opener fetch.Opener) *ManagerImpl {
	return &ManagerImpl{opener: opener}
}

// DefaultConcurrency is used when Options.Concurrency is not positive.
func DefaultConcurrency() int {
	return max(2, runtime.NumCPU()/2)
}

// FetchAll downloads multiple items concurrently. Items sharing a source and
// destination are transferred once.
func (m *ManagerImpl) FetchAll(ctx context.Context, items []Item, opts Options) ([]Result, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency()
	}

	results := make([]Result, len(items))
	byKey := make(map[string][]int)
	var keys []string
	for i, it := range items {
		results[i].Item = it
		dest, err := destination(it, opts)
		if err != nil {
			results[i].Err = err
			continue
		}
		key := it.URL.String() + "\x00" + dest
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], i)
	}

	m.runDownloadWorkers(ctx, items, results, keys, byKey, opts)
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Fetch downloads a single item and returns the path to the downloaded file.
func (m *ManagerImpl) Fetch(ctx context.Context, item Item, opts Options) (string, error) {
	if _, err := destination(item, opts); err != nil {
		return "", err
	}
	return m.fetchOne(ctx, item, opts)
}

func (m *ManagerImpl) runDownloadWorkers(ctx context.Context, items []Item, results []Result, keys []string, byKey map[string][]int, opts Options) {
	var mu sync.Mutex
	tasks := make(chan string)
	var wg sync.WaitGroup

	for w := 0; w < opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range tasks {
				idx := byKey[key][0]
				path, err := m.fetchOne(ctx, items[idx], opts)
				mu.Lock()
				for _, i := range byKey[key] {
					results[i].Path = path
					results[i].Err = err
				}
				mu.Unlock()
			}
		}()
	}

	sent := 0
feed:
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		select {
		case tasks <- key:
			sent++
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()

	if sent < len(keys) {
		logger.Warn("Download batch interrupted", logger.Fields{
			"started": sent,
			"skipped": len(keys) - sent,
		})
		for _, key := range keys[sent:] {
			for _, i := range byKey[key] {
				results[i].Err = fmt.Errorf("%s: %w", items[i].URL, ctx.Err())
			}
		}
	}
}

func destination(item Item, opts Options) (string, error) {
	if item.URL == nil {
		return "", fmt.Errorf("item %q has no URL: %w", item.ID, pkgerrors.ErrInvalidPath)
	}
	if item.Dest != "" {
		if !filepath.IsAbs(item.Dest) {
			return "", fmt.Errorf("destination must be absolute: %s: %w", item.Dest, pkgerrors.ErrInvalidPath)
		}
		return item.Dest, nil
	}
	if opts.Dir == "" || !filepath.IsAbs(opts.Dir) {
		return "", fmt.Errorf("download dir must be absolute: %s: %w", opts.Dir, pkgerrors.ErrInvalidPath)
	}
	return filepath.Join(opts.Dir, derivedName(item)), nil
}

func derivedName(item Item) string {
	if base := filepath.Base(item.URL.Path); base != "." && base != "/" && base != "" {
		return base
	}
	h := sha256.Sum256([]byte(item.URL.String()))
	return hex.EncodeToString(h[:])
}

func (m *ManagerImpl) fetchOne(ctx context.Context, item Item, opts Options) (string, error) {
	absPath, err := destination(item, opts)
	if err != nil {
		return "", err
	}
	if reuse, ok := tryReuseExisting(absPath, item.Checksums); ok {
		logger.Debug("Reusing verified file", logger.Fields{"id": item.ID, "path": reuse})
		return reuse, nil
	}

	rc, ok, err := m.opener.Open(ctx, item.URL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", item.URL, pkgerrors.ErrNotFound)
	}
	defer func() { _ = rc.Close() }()

	tmpPath, err := writeBodyToTemp(rc, absPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", item.URL, pkgerrors.ErrTransfer, err)
	}
	if err := verifyChecksums(tmpPath, item.Checksums); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%s: %w", item.URL, err)
	}
	if err := finalizeFile(tmpPath, absPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	logger.Debug("Downloaded", logger.Fields{"id": item.ID, "url": item.URL.String(), "path": absPath})
	return absPath, nil
}

// tryReuseExisting keeps a present destination only when declared checksums
// prove it current.
func tryReuseExisting(absPath string, checksums []Checksum) (string, bool) {
	if len(checksums) == 0 {
		return "", false
	}
	st, err := os.Stat(absPath)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	verified := 0
	for _, c := range checksums {
		got, known, err := maven.DigestFile(absPath, c.Algorithm)
		if err != nil {
			return "", false
		}
		if !known {
			continue
		}
		if !maven.EqualChecksum(c.Value, got) {
			return "", false
		}
		verified++
	}
	return absPath, verified > 0
}

func writeBodyToTemp(body io.Reader, absPath string) (string, error) {
	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return "", pkgerrors.Wrap(err, "could not create download dir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".dl-*.tmp")
	if err != nil {
		return "", pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", pkgerrors.Wrap(err, "could not write file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", pkgerrors.Wrap(err, "could not sync file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", pkgerrors.Wrap(err, "could not close file")
	}
	return tmpPath, nil
}

func finalizeFile(tmpPath, absPath string) error {
	if err := fsutil.Move(tmpPath, absPath); err != nil {
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	if err := os.Chmod(absPath, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrap(err, "could not set permissions")
	}
	return nil
}

func verifyChecksums(path string, checksums []Checksum) error {
	for _, c := range checksums {
		got, known, err := maven.DigestFile(path, c.Algorithm)
		if err != nil {
			return pkgerrors.Wrap(err, "hashing")
		}
		if !known {
			logger.Warn("Skipping unknown checksum algorithm", logger.Fields{"algorithm": c.Algorithm})
			continue
		}
		if !maven.EqualChecksum(c.Value, got) {
			return fmt.Errorf("%s declared %s, computed %s: %w", c.Algorithm, c.Value, got, pkgerrors.ErrChecksumMismatch)
		}
	}
	return nil
}
