package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename config file")
	ErrConfigMarshal     = fmt.Errorf("failed to marshal config")
	ErrConfigFileExists  = fmt.Errorf("config file already exists")

	// Repository configuration errors.
	ErrRepositoryIDEmpty    = fmt.Errorf("repository id cannot be empty")
	ErrRepositoryURLEmpty   = fmt.Errorf("repository url cannot be empty")
	ErrRepositoryExists     = fmt.Errorf("repository already exists")
	ErrHTTPTimeoutNegative  = fmt.Errorf("http_timeout cannot be negative")
	ErrMaxConcurrentInvalid = fmt.Errorf("max_concurrent must be at least 1")
	ErrInvalidLogLevel      = fmt.Errorf("invalid log level")

	// Resolution errors.
	ErrNotFound              = fmt.Errorf("not found")
	ErrMalformedDocument     = fmt.Errorf("malformed repository document")
	ErrTransfer              = fmt.Errorf("transfer failed")
	ErrChecksumMismatch      = fmt.Errorf("checksum mismatch")
	ErrUnresolvedPlaceholder = fmt.Errorf("repository url contains an unresolved placeholder")
	ErrUnsupported           = fmt.Errorf("operation not supported")
	ErrClosed                = fmt.Errorf("connector is closed")
	ErrInvalidPath           = fmt.Errorf("invalid path")
	ErrInvalidCoordinate     = fmt.Errorf("invalid coordinate")
	ErrInvalidVersion        = fmt.Errorf("invalid version")
	ErrInvalidRange          = fmt.Errorf("invalid version range")

	// Cache errors.
	ErrCacheClean     = fmt.Errorf("failed to clean cache")
	ErrCacheInfo      = fmt.Errorf("failed to get cache info")
	ErrCacheDirectory = fmt.Errorf("cache directory cannot be empty")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrRepositoryExistsWithID returns ErrRepositoryExists annotated with the repository id.
func ErrRepositoryExistsWithID(id string) error {
	return fmt.Errorf("%w: %s", ErrRepositoryExists, id)
}

// ErrRepositoryURLEmptyWithID returns ErrRepositoryURLEmpty annotated with the repository id.
func ErrRepositoryURLEmptyWithID(id string) error {
	return fmt.Errorf("%w: %s", ErrRepositoryURLEmpty, id)
}

// ErrRepositoryIDEmptyAt returns ErrRepositoryIDEmpty annotated with the position in the list.
func ErrRepositoryIDEmptyAt(index int) error {
	return fmt.Errorf("%w (repository #%d)", ErrRepositoryIDEmpty, index)
}

// ErrInvalidLogLevelWithDetails returns ErrInvalidLogLevel annotated with the offending value.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: %s (must be one of debug, info, warn, error)", ErrInvalidLogLevel, level)
}
