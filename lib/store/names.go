package store

import (
	"hash/crc32"
	"sync/atomic"

	"github.com/ValentinKolb/shmkv/lib/store/segment"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	procCountName = "__proc_count"
	varCountName  = "__var_count"
)

// isReserved reports whether name is one of the bookkeeping entries.
func isReserved(name string) bool {
	return name == procCountName || name == varCountName
}

// NameRegistry maps variable names to the VarKeys used inside segments. All stores of a
// process share one registry so they agree on the mapping.
type NameRegistry struct {
	names *xsync.MapOf[segment.VarKey, string]
}

// NewNameRegistry creates an empty registry.
func NewNameRegistry() *NameRegistry {
	return &NameRegistry{names: xsync.NewMapOf[segment.VarKey, string]()}
}

var defaultNames atomic.Pointer[NameRegistry]

// DefaultNameRegistry returns the registry of the current process, creating it on first use.
func DefaultNameRegistry() *NameRegistry {
	if r := defaultNames.Load(); r != nil {
		return r
	}
	defaultNames.CompareAndSwap(nil, NewNameRegistry())
	return defaultNames.Load()
}

// ResetDefaultNameRegistry replaces the process registry with an empty one.
func ResetDefaultNameRegistry() {
	defaultNames.Store(NewNameRegistry())
}

// Resolve returns the VarKey of name and records the mapping. It fails with RetCKeyCollision
// if another name with the same VarKey was resolved before.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *NameRegistry) Resolve(name string) (segment.VarKey, error) {
	key := segment.VarKey(crc32.ChecksumIEEE([]byte(name)))
	actual, loaded := r.names.LoadOrStore(key, name)
	if loaded && actual != name {
		return 0, wrapError(RetCKeyCollision, nil, "variable %q collides with %q (key %08x)", name, actual, uint32(key))
	}
	return key, nil
}

// Len returns the number of resolved names.
func (r *NameRegistry) Len() int {
	return r.names.Size()
}
