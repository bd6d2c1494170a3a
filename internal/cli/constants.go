package cli

// Default values for CLI flags and formatted output.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// DefaultDownloadDir is where get writes artifacts unless --dir is given.
	DefaultDownloadDir = "."
	// DefaultCleanAge is the age past which cache clean removes scratch directories.
	DefaultCleanAge = "24h"
)
