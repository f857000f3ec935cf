//go:build unix

package mutex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/shmkv/lib/common"
	"golang.org/x/sys/unix"
)

// fileHandle is an exclusive flock(2) on a lock file. flock locks belong to the open
// file description, so two instances in the same process exclude each other as well.
type fileHandle struct {
	path string
	file *os.File
}

// LockFilePath returns the lock file used by the file backend for key.
func LockFilePath(dir string, key LockKey) string {
	if dir == "" {
		dir = common.DefaultDir()
	}
	return filepath.Join(dir, fmt.Sprintf("shmkv-%s.lock", key))
}

// openLockFile opens (and if needed creates) the lock file of key.
// Files created by this call are tracked in reg so Cleanup can remove them.
func openLockFile(key LockKey, dir string, reg *Registry) (handle, error) {
	path := LockFilePath(dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, newError(RetCMutexError, err, "create lock directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
	switch {
	case err == nil:
		reg.trackArtifact(path)
		log.Debugf("created lock file %s", path)
	case errors.Is(err, os.ErrExist):
		if f, err = os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666); err != nil {
			return nil, newError(RetCMutexError, err, "open lock file %s", path)
		}
	default:
		return nil, newError(RetCMutexError, err, "open lock file %s", path)
	}

	return &fileHandle{path: path, file: f}, nil
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func (h *fileHandle) lock() error {
	if err := flock(h.file, unix.LOCK_EX); err != nil {
		return newError(RetCMutexError, err, "flock %s", h.path)
	}
	return nil
}

func (h *fileHandle) tryLock() (bool, error) {
	err := flock(h.file, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	if err != nil {
		return false, newError(RetCMutexError, err, "flock %s", h.path)
	}
	return true, nil
}

func (h *fileHandle) unlock() error {
	if err := flock(h.file, unix.LOCK_UN); err != nil {
		return newError(RetCMutexError, err, "funlock %s", h.path)
	}
	return nil
}

// close drops the descriptor, which also drops a lock still held through it.
func (h *fileHandle) close() error {
	return h.file.Close()
}
