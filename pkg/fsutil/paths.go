package fsutil

import (
	"os"
	"path/filepath"
)

// GetScratchRoot returns the directory under which sessions create their scratch directories.
// On Linux: ~/.cache/p2maven/scratch
// Falls back to the system temp directory when no user cache directory is available.
func GetScratchRoot() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(cacheDir, AppName, "scratch")
}

// GetConfigDir returns the platform-specific config directory for the application.
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// EnsureDir creates a directory and all necessary parents with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path if it doesn't exist.
func EnsureFileDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}
