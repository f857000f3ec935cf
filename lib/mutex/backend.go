package mutex

import (
	"sync"

	"github.com/ValentinKolb/shmkv/lib/common"
)

// handle is the OS object behind one NamedMutex instance.
type handle interface {
	lock() error
	tryLock() (bool, error)
	unlock() error
	close() error
}

var (
	probeOnce sync.Once
	probed    bool
)

// HasNativeBackend reports whether SysV semaphores work in this process.
// The probe runs once per process and its result is cached.
func HasNativeBackend() bool {
	probeOnce.Do(func() {
		probed = probeSemaphores()
		if !probed {
			log.Infof("native semaphores unavailable, using lock files")
		}
	})
	return probed
}

// openHandle creates or opens the OS object for key with the resolved backend.
func openHandle(key LockKey, backend common.Backend, opts *Options, reg *Registry) (handle, error) {
	switch backend {
	case common.BackendNative:
		return openSemaphore(key)
	case common.BackendFile:
		return openLockFile(key, opts.Dir, reg)
	default:
		return nil, newError(RetCMutexError, nil, "unknown backend %q", backend)
	}
}
