package segment

import (
	"errors"

	"github.com/ValentinKolb/shmkv/lib/common"
)

// VarKey identifies one variable inside a segment.
type VarKey uint32

// ISegment is the backing resource of a shared store: a flat key/value table visible to
// every process that opens the same segment key.
//
// Implementations are not synchronised in any way; callers must hold the mutex that guards
// the segment for every call, including reads.
type ISegment interface {
	// Has reports whether an entry exists for key.
	Has(key VarKey) (found bool, err error)
	// Get returns a copy of the payload stored under key.
	Get(key VarKey) (payload []byte, found bool, err error)
	// Put inserts or replaces the payload stored under key.
	// It returns ErrNoSpace if the table would not fit into the segment.
	Put(key VarKey, payload []byte) (err error)
	// Remove deletes the entry for key and reports whether it existed.
	Remove(key VarKey) (removed bool, err error)
	// Refresh re-opens the resource if it was destroyed (and possibly re-created) by another
	// process after this instance opened it.
	Refresh() (err error)
	// Destroy removes the resource from the system. The instance is closed afterwards.
	Destroy() (err error)
	// Close drops the local handle, the resource itself stays in place.
	Close() (err error)
	// Size returns the capacity of the resource in bytes (0 = unbounded).
	Size() (size int)
	// Backend returns the concrete backend of this segment.
	Backend() (backend common.Backend)
}

// Options configures Open.
type Options struct {
	Backend common.Backend // Requested backend (auto = probe)
	Dir     string         // Directory for segment files of the file backend ("" = common.DefaultDir())
}

var (
	// ErrNoSpace is returned by Put when the entry table does not fit into the segment.
	ErrNoSpace = errors.New("segment: not enough space")
	// ErrNotAvailable is returned by Open when the native backend was requested but
	// SysV shared memory is not usable in this process.
	ErrNotAvailable = errors.New("segment: native shared memory unavailable")
	// ErrClosed is returned by every operation on a closed segment.
	ErrClosed = errors.New("segment: closed")
	// ErrCorrupt is returned when the stored table cannot be decoded.
	ErrCorrupt = errors.New("segment: corrupt table")
)
