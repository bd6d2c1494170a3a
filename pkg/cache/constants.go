package cache

import "github.com/glorpus-work/p2maven/pkg/fsutil"

// ScratchRootPerm is the permission mode for the scratch root (rwx------).
const ScratchRootPerm = fsutil.DirModePrivate
