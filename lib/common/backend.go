package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend selects how an IPC primitive is realised on the host.
type Backend string

const (
	// BackendAuto uses the native facility when the capability probe succeeds and
	// falls back to the file backend otherwise.
	BackendAuto Backend = "auto"
	// BackendNative uses SysV semaphores and shared memory segments.
	BackendNative Backend = "native"
	// BackendFile emulates the primitives with files below a temp directory.
	BackendFile Backend = "file"
)

// ParseBackend converts a configuration string to a Backend.
// The empty string is treated as BackendAuto.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendNative:
		return BackendNative, nil
	case BackendFile:
		return BackendFile, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected one of: auto, native, file)", s)
	}
}

// Resolve turns BackendAuto into a concrete backend using the result of a capability probe.
func (b Backend) Resolve(nativeAvailable bool) Backend {
	if b == BackendAuto || b == "" {
		if nativeAvailable {
			return BackendNative
		}
		return BackendFile
	}
	return b
}

// DefaultDir is the directory holding lock and segment files of the file backend.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "shmkv")
}
