package cache

import (
	"fmt"
	"time"

	"github.com/glorpus-work/p2maven/internal/logger"
)

// Operation renders cache maintenance results for the command line.
type Operation struct {
	manager Manager
}

// NewOperation creates a new cache operation instance.
func NewOperation(manager Manager) *Operation {
	return &Operation{
		manager: manager,
	}
}

// Clean removes session directories older than olderThan.
func (op *Operation) Clean(olderThan time.Duration) (string, error) {
	logger.Debug("Cleaning scratch directories", logger.Fields{
		"directory":  op.manager.GetDirectory(),
		"older_than": olderThan.String(),
	})

	result, err := op.manager.Clean(CleanOptions{OlderThan: olderThan})
	if err != nil {
		return "", fmt.Errorf("failed to clean cache: %w", err)
	}

	if result.Removed == 0 {
		msg := "No scratch directories were removed."
		if result.Kept > 0 {
			msg += fmt.Sprintf(" %d newer than %s kept.", result.Kept, olderThan)
		}
		return msg, nil
	}

	msg := fmt.Sprintf("Removed %d scratch directories. Freed %s of disk space.",
		result.Removed, formatBytes(result.TotalFreed))
	if result.Kept > 0 {
		msg += fmt.Sprintf("\n- Kept: %d", result.Kept)
	}
	return msg, nil
}

// GetInfo returns information about the scratch root.
func (op *Operation) GetInfo() (string, error) {
	info, err := op.manager.GetInfo()
	if err != nil {
		return "", fmt.Errorf("failed to get cache info: %w", err)
	}

	oldest := "n/a"
	if !info.Oldest.IsZero() {
		oldest = info.Oldest.Format(time.RFC1123)
	}

	return fmt.Sprintf(`Cache Information:
  Directory:  %s
  Total Size: %s
  Sessions:   %d (%d files)
  Oldest:     %s`,
		info.Directory,
		formatBytes(info.TotalSize),
		info.Sessions,
		info.Files,
		oldest,
	), nil
}

// GetDirectory returns the scratch root.
func (op *Operation) GetDirectory() string {
	return op.manager.GetDirectory()
}

// SetDirectory points the operation at another scratch root.
func (op *Operation) SetDirectory(dir string) error {
	logger.Debug("Setting scratch directory", logger.Fields{"directory": dir})
	return op.manager.SetDirectory(dir)
}

// formatBytes converts bytes to a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T", "P", "E"}
	if exp < len(units) {
		return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
	}
	return fmt.Sprintf("%d B", bytes)
}
