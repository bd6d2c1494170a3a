package cache

import "time"

// Manager defines the interface for scratch cache maintenance.
type Manager interface {
	Clean(options CleanOptions) (*CleanResult, error)
	GetInfo() (*Info, error)
	GetDirectory() string
	SetDirectory(dir string) error
}

// CleanOptions specifies which session directories to remove.
type CleanOptions struct {
	// Only directories last modified at least this long ago are removed.
	// Zero removes every session directory.
	OlderThan time.Duration
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	TotalFreed int64
	Removed    int
	Kept       int
}

// Info describes the session directories under the scratch root.
type Info struct {
	Directory string
	TotalSize int64
	Sessions  int
	Files     int
	Oldest    time.Time
}
