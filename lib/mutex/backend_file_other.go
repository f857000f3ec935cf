//go:build !unix

package mutex

import (
	"fmt"
	"path/filepath"

	"github.com/ValentinKolb/shmkv/lib/common"
)

// LockFilePath returns the lock file used by the file backend for key.
func LockFilePath(dir string, key LockKey) string {
	if dir == "" {
		dir = common.DefaultDir()
	}
	return filepath.Join(dir, fmt.Sprintf("shmkv-%s.lock", key))
}

func openLockFile(key LockKey, dir string, reg *Registry) (handle, error) {
	return nil, newError(RetCMutexError, nil, "lock files are not supported on this platform (key %s)", key)
}
