package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--: synthesized and downloaded files
	FileModeSecure  = 0o640 // -rw-r-----: config files carrying credentials

	DirModeDefault = 0o755 // drwxr-xr-x
	DirModeSecure  = 0o750 // drwxr-x---
	DirModePrivate = 0o700 // drwx------: session scratch directories
)

// AppName is the name of the application used in paths.
const AppName = "p2maven"

// ScratchPrefix prefixes every session scratch directory created under the scratch root.
const ScratchPrefix = AppName + "-"
