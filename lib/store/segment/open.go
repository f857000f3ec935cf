package segment

import (
	"errors"
	"os"
	"sync"

	"github.com/ValentinKolb/shmkv/lib/common"
)

var (
	probeOnce sync.Once
	probed    bool
)

// HasNativeBackend reports whether SysV shared memory works in this process.
// The probe runs once per process and its result is cached.
func HasNativeBackend() bool {
	probeOnce.Do(func() {
		probed = probeShm()
		if !probed {
			log.Infof("native shared memory unavailable, using segment files")
		}
	})
	return probed
}

// Open opens the segment for key, creating it with a capacity of size bytes if it does
// not exist yet. An existing native segment is attached with the size it was created with.
// If opts is nil, the backend is probed and files go to common.DefaultDir().
func Open(key uint32, size int, opts *Options) (ISegment, error) {
	if opts == nil {
		opts = &Options{Backend: common.BackendAuto}
	}

	native := HasNativeBackend()
	backend := opts.Backend.Resolve(native)

	switch backend {
	case common.BackendNative:
		if !native {
			return nil, ErrNotAvailable
		}
		return openShm(key, size)
	case common.BackendFile:
		dir := opts.Dir
		if dir == "" {
			dir = common.DefaultDir()
		}
		return openFile(key, dir)
	default:
		return nil, ErrNotAvailable
	}
}

// Exists reports whether the segment for key exists on the system, without opening it.
func Exists(key uint32, opts *Options) (bool, error) {
	if opts == nil {
		opts = &Options{Backend: common.BackendAuto}
	}

	switch opts.Backend.Resolve(HasNativeBackend()) {
	case common.BackendNative:
		return shmExists(key)
	case common.BackendFile:
		_, err := os.Stat(FilePath(opts.Dir, key))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	default:
		return false, ErrNotAvailable
	}
}
