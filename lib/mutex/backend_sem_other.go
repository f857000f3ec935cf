//go:build !(linux && (amd64 || arm64))

package mutex

func probeSemaphores() bool {
	return false
}

func openSemaphore(key LockKey) (handle, error) {
	return nil, newError(RetCMutexError, nil, "native semaphores are not supported on this platform (key %s)", key)
}

// Destroy removes the native semaphore set of key. There is nothing to remove on
// platforms without SysV semaphores.
func Destroy(key LockKey) error {
	return nil
}

func semaphoreValue(key LockKey) (int, error) {
	return 0, newError(RetCMutexError, nil, "native semaphores are not supported on this platform")
}
