// Package cache inspects and cleans the scratch root. Sessions delete their
// own directories on close; what remains here was left behind by processes
// that exited without closing.
package cache

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/p2maven/internal/logger"
	"github.com/glorpus-work/p2maven/pkg/errors"
	"github.com/glorpus-work/p2maven/pkg/fsutil"
)

// DefaultManager implements the Manager interface over one scratch root.
type DefaultManager struct {
	directory string
	now       func() time.Time
}

// NewManager creates a new cache manager.
func NewManager(directory string) *DefaultManager {
	return &DefaultManager{
		directory: directory,
		now:       time.Now,
	}
}

// NewDefaultManager creates a cache manager for the default scratch root.
func NewDefaultManager() (*DefaultManager, error) {
	root := fsutil.GetScratchRoot()
	if err := os.MkdirAll(root, ScratchRootPerm); err != nil {
		return nil, errors.Wrapf(err, "failed to create scratch root")
	}
	return NewManager(root), nil
}

type sessionDir struct {
	path    string
	modTime time.Time
	size    int64
	files   int
}

// Clean removes session directories older than options.OlderThan.
func (cm *DefaultManager) Clean(options CleanOptions) (*CleanResult, error) {
	dirs, err := cm.sessionDirs()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCacheClean, err.Error())
	}

	result := &CleanResult{}
	cutoff := cm.now().Add(-options.OlderThan)
	for _, d := range dirs {
		if options.OlderThan > 0 && d.modTime.After(cutoff) {
			result.Kept++
			continue
		}
		if err := os.RemoveAll(d.path); err != nil {
			return result, errors.Wrapf(errors.ErrCacheClean, "failed to remove %s: %v", d.path, err)
		}
		logger.Debug("Removed scratch directory", logger.Fields{"path": d.path, "size": d.size})
		result.Removed++
		result.TotalFreed += d.size
	}
	return result, nil
}

// GetInfo returns information about the scratch root.
func (cm *DefaultManager) GetInfo() (*Info, error) {
	dirs, err := cm.sessionDirs()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCacheInfo, err.Error())
	}

	info := &Info{Directory: cm.directory}
	for _, d := range dirs {
		info.Sessions++
		info.TotalSize += d.size
		info.Files += d.files
		if info.Oldest.IsZero() || d.modTime.Before(info.Oldest) {
			info.Oldest = d.modTime
		}
	}
	return info, nil
}

// GetDirectory returns the scratch root.
func (cm *DefaultManager) GetDirectory() string {
	return cm.directory
}

// SetDirectory sets the scratch root.
func (cm *DefaultManager) SetDirectory(dir string) error {
	if dir == "" {
		return errors.ErrCacheDirectory
	}
	cm.directory = dir
	return nil
}

// sessionDirs lists the session directories directly under the root.
// A missing root has none.
func (cm *DefaultManager) sessionDirs() ([]sessionDir, error) {
	entries, err := os.ReadDir(cm.directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []sessionDir
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), fsutil.ScratchPrefix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		d := sessionDir{path: filepath.Join(cm.directory, entry.Name()), modTime: fi.ModTime()}
		d.size, d.files, err = getDirSizeAndFiles(d.path)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// getDirSizeAndFiles calculates directory size and file count.
func getDirSizeAndFiles(dir string) (size int64, count int, err error) {
	err = filepath.Walk(dir, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if !info.IsDir() {
			size += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "error walking directory %s", dir)
	}
	return size, count, err
}
