package mutex

import (
	"errors"
	"os"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is the process-wide state of this package: which mode every LockKey was
// registered with and which lock files this process created.
//
// All mutexes of a process normally share DefaultRegistry(). Tests can swap it with
// ResetDefaultRegistry or pass their own Registry via Options.
type Registry struct {
	modes     *xsync.MapOf[LockKey, KeyMode]
	artifacts *xsync.MapOf[string, struct{}]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modes:     xsync.NewMapOf[LockKey, KeyMode](),
		artifacts: xsync.NewMapOf[string, struct{}](),
	}
}

var defaultRegistry atomic.Pointer[Registry]

// DefaultRegistry returns the registry of the current process, creating it on first use.
func DefaultRegistry() *Registry {
	if r := defaultRegistry.Load(); r != nil {
		return r
	}
	defaultRegistry.CompareAndSwap(nil, NewRegistry())
	return defaultRegistry.Load()
}

// ResetDefaultRegistry replaces the process registry with an empty one.
// Lock files tracked by the old registry are forgotten, not deleted.
func ResetDefaultRegistry() {
	defaultRegistry.Store(NewRegistry())
}

// Register records the mode of a key. Registering a key again with the same mode is a no-op;
// registering it with the other mode fails with a MutexConflict error.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Register(key LockKey, mode KeyMode) error {
	_, err := r.register(key, mode)
	return err
}

// register is Register that also reports whether key was added by this call.
func (r *Registry) register(key LockKey, mode KeyMode) (bool, error) {
	actual, loaded := r.modes.LoadOrStore(key, mode)
	if loaded && actual != mode {
		return false, newError(RetCConflict, nil,
			"lock key %s is already registered as %s and cannot be used as %s", key, actual, mode)
	}
	return !loaded, nil
}

// unregister removes a key added by a construction that failed afterwards.
func (r *Registry) unregister(key LockKey) {
	r.modes.Delete(key)
}

// Mode returns the registered mode of a key.
func (r *Registry) Mode(key LockKey) (KeyMode, bool) {
	return r.modes.Load(key)
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	return r.modes.Size()
}

// trackArtifact remembers a lock file created by this process.
func (r *Registry) trackArtifact(path string) {
	r.artifacts.Store(path, struct{}{})
}

// Artifacts returns the lock files created by this process that were not cleaned up yet.
func (r *Registry) Artifacts() []string {
	paths := make([]string, 0, r.artifacts.Size())
	r.artifacts.Range(func(path string, _ struct{}) bool {
		paths = append(paths, path)
		return true
	})
	return paths
}

// Cleanup deletes every lock file created by this process. Native semaphores are never touched.
// Files that are already gone are ignored; all other failures are joined and returned.
func (r *Registry) Cleanup() error {
	var errs []error
	for _, path := range r.Artifacts() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		r.artifacts.Delete(path)
		log.Debugf("removed lock file %s", path)
	}
	if len(errs) > 0 {
		return newError(RetCMutexError, errors.Join(errs...), "cleanup of lock files failed")
	}
	return nil
}

// Cleanup deletes the lock files created by this process (see Registry.Cleanup).
func Cleanup() error {
	return DefaultRegistry().Cleanup()
}
