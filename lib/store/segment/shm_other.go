//go:build !linux

package segment

func probeShm() bool {
	return false
}

func openShm(key uint32, size int) (ISegment, error) {
	return nil, ErrNotAvailable
}

// DestroyKey removes the native segment for key. There is nothing to remove on platforms
// without SysV shared memory support.
func DestroyKey(key uint32) error {
	return nil
}

func shmExists(key uint32) (bool, error) {
	return false, nil
}
