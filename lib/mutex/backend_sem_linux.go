//go:build linux && (amd64 || arm64)

package mutex

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// values from <sys/sem.h>, not exported by x/sys/unix
const (
	semUndo   = 0x1000
	semGetVal = 12
	semSetVal = 16
)

// sembuf mirrors struct sembuf.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// semHandle is a SysV semaphore set with a single semaphore used as a binary lock.
// All operations use SEM_UNDO so the kernel gives the lock back if the holder dies.
type semHandle struct {
	id int
}

func semget(key int, flags int) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(flags))
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

func semctl(id, cmd, arg int) (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(cmd), uintptr(arg), 0, 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

func semop(id int, op int16, flags int16) error {
	ops := [1]sembuf{{num: 0, op: op, flg: flags}}
	for {
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&ops[0])), 1)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			// interrupted by a signal (e.g. goroutine preemption), the operation was not applied
			continue
		default:
			return errno
		}
	}
}

// openSemaphore opens the semaphore set for key, creating and initialising it to 1 if needed.
// A process that opens a set created concurrently by another process blocks in Acquire
// until the creator has set the initial value.
func openSemaphore(key LockKey) (handle, error) {
	sysvKey := int(int32(key))

	id, err := semget(sysvKey, unix.IPC_CREAT|unix.IPC_EXCL|0o666)
	switch {
	case err == nil:
		if _, err := semctl(id, semSetVal, 1); err != nil {
			_, _ = semctl(id, unix.IPC_RMID, 0)
			return nil, newError(RetCMutexError, err, "semctl(SETVAL) for key %s", key)
		}
		log.Debugf("created semaphore %d for key %s", id, key)
	case errors.Is(err, unix.EEXIST):
		if id, err = semget(sysvKey, 0o666); err != nil {
			return nil, newError(RetCMutexError, err, "semget for key %s", key)
		}
	default:
		return nil, newError(RetCMutexError, err, "semget for key %s", key)
	}

	return &semHandle{id: id}, nil
}

func (h *semHandle) lock() error {
	if err := semop(h.id, -1, semUndo); err != nil {
		return newError(RetCMutexError, err, "semop(acquire)")
	}
	return nil
}

func (h *semHandle) tryLock() (bool, error) {
	err := semop(h.id, -1, semUndo|unix.IPC_NOWAIT)
	if errors.Is(err, unix.EAGAIN) {
		return false, nil
	}
	if err != nil {
		return false, newError(RetCMutexError, err, "semop(try acquire)")
	}
	return true, nil
}

func (h *semHandle) unlock() error {
	if err := semop(h.id, 1, semUndo); err != nil {
		return newError(RetCMutexError, err, "semop(release)")
	}
	return nil
}

// close is a no-op: semaphore ids are not per-process handles and the set must outlive
// this instance for other processes.
func (h *semHandle) close() error {
	return nil
}

// probeSemaphores creates and removes a private semaphore set.
func probeSemaphores() bool {
	id, err := semget(unix.IPC_PRIVATE, unix.IPC_CREAT|0o600)
	if err != nil {
		return false
	}
	_, err = semctl(id, unix.IPC_RMID, 0)
	return err == nil
}

// Destroy removes the native semaphore set of key from the system.
// Processes blocked on it get an error. This is a maintenance operation; it is never
// called by the mutex itself.
func Destroy(key LockKey) error {
	id, err := semget(int(int32(key)), 0)
	if errors.Is(err, unix.ENOENT) {
		return nil
	}
	if err != nil {
		return newError(RetCMutexError, err, "semget for key %s", key)
	}
	if _, err := semctl(id, unix.IPC_RMID, 0); err != nil {
		return newError(RetCMutexError, err, "semctl(IPC_RMID) for key %s", key)
	}
	return nil
}

// semaphoreValue returns the current value of the semaphore of key.
func semaphoreValue(key LockKey) (int, error) {
	id, err := semget(int(int32(key)), 0)
	if err != nil {
		return 0, err
	}
	return semctl(id, semGetVal, 0)
}
