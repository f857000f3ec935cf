package mutex

import "github.com/ValentinKolb/shmkv/lib/common"

// INamedMutex is a process-wide advisory lock identified by a LockKey.
// Two instances constructed with the same key, in the same or in different processes,
// exclude each other.
//
// An instance is meant to have a single logical owner; it must not be used from
// several goroutines at the same time.
type INamedMutex interface {
	// Acquire blocks until the lock is obtained. There is no timeout and no cancellation.
	Acquire() (err error)
	// TryAcquire obtains the lock only if it is free right now.
	// It returns false (and no error) if the lock is held by someone else.
	TryAcquire() (ok bool, err error)
	// Release releases a lock held by this instance.
	Release() (err error)
	// IsAcquired reports whether this instance holds the lock.
	// It says nothing about other instances or other processes.
	IsAcquired() (held bool)
	// LockKey returns the integer identity of the lock.
	LockKey() (key LockKey)
	// Mode returns how the LockKey was derived.
	Mode() (mode KeyMode)
	// Backend returns the concrete backend used by this instance.
	Backend() (backend common.Backend)
	// Close releases the lock if it is held and drops the OS handle.
	// Calling Close more than once is a no-op.
	Close() (err error)
}

// Namer can be implemented by values passed to NewNamedMutex to supply a stable name.
type Namer interface {
	MutexName() string
}

// Options configures NewNamedMutex.
type Options struct {
	Backend  common.Backend // Requested backend (auto = probe)
	Dir      string         // Directory for lock files of the file backend ("" = common.DefaultDir())
	Registry *Registry      // Key registry (nil = DefaultRegistry())
}

// DefaultOptions returns the options used when nil is passed to NewNamedMutex.
func DefaultOptions() *Options {
	return &Options{
		Backend: common.BackendAuto,
		Dir:     common.DefaultDir(),
	}
}
