// Package mutex provides named mutexes that exclude each other across processes on the
// same host. A mutex is identified by a 32-bit LockKey; every process that constructs a
// mutex with the same key contends for the same lock.
//
// Key Components:
//
//   - INamedMutex Interface: Acquire, TryAcquire, Release and IsAcquired on one lock.
//     IsAcquired only reports the state of the local instance, never the state of
//     other instances or processes. Close releases a held lock and drops the OS handle.
//
//   - Key Derivation: A lock parameter is either an integer (manual mode) or a name
//     (derived mode, CRC32 of the name). See ResolveKey and HashName. Key 0 is reserved.
//
//   - Registry: Process-wide table of which key was used in which mode. A key that was
//     registered as manual cannot be used as derived (and vice versa); this turns hash
//     collisions between names and explicit integers into a MutexConflict error instead
//     of silent sharing. The registry also remembers lock files created by this process,
//     which Cleanup deletes.
//
// Backends:
//
//	- Native: a SysV semaphore set with one semaphore, keyed by the LockKey and
//	  initialised to 1 by its creator. All operations use SEM_UNDO, so a lock held by a
//	  crashed process is given back by the kernel. Semaphore sets are never removed
//	  implicitly; use Destroy for maintenance.
//
//	- File: an exclusive flock(2) on <dir>/shmkv-<key>.lock. Used when the capability
//	  probe (HasNativeBackend) fails, or when requested explicitly.
//
// Usage:
//
//	m, err := mutex.NewNamedMutex("jobs", nil)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	if err := m.Acquire(); err != nil {
//	    return err
//	}
//	defer m.Release()
//
// An instance must not be shared between goroutines that use it concurrently; create one
// instance per goroutine instead (instances in one process exclude each other as well).
package mutex

import "github.com/lni/dragonboat/v4/logger"

var log = logger.GetLogger("mutex")
