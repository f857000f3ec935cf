// Package segment implements the backing resource of a shared store.
//
// Two backends exist behind the ISegment interface:
//
//   - Native: a SysV shared memory segment keyed by the segment key. It has a fixed
//     capacity chosen by the process that creates it; writes that do not fit fail
//     with ErrNoSpace.
//
//   - File: <dir>/shmkv-<key>.seg, read and rewritten as a whole on every operation.
//     Used when SysV shared memory is unavailable or when requested explicitly.
//
// Segments are not synchronised. Every call must happen while holding the named mutex
// of the owning store.
package segment

import "github.com/lni/dragonboat/v4/logger"

var log = logger.GetLogger("segment")
