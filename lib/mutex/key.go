package mutex

import (
	"fmt"
	"hash/crc32"
	"math"
)

// LockKey is the integer identity of a named mutex. The same LockKey is used as the
// key of the SysV semaphore and as the name of the lock file.
type LockKey uint32

func (k LockKey) String() string {
	return fmt.Sprintf("%08x", uint32(k))
}

// KeyMode records how a LockKey was obtained.
type KeyMode uint8

const (
	ModeManual  KeyMode = iota + 1 // integer supplied by the caller
	ModeDerived                    // hash of a name
)

func (m KeyMode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// HashName derives a LockKey from a name (CRC32, IEEE polynomial).
// This is not collision free; collisions with manual keys are detected by the Registry.
func HashName(name string) LockKey {
	return LockKey(crc32.ChecksumIEEE([]byte(name)))
}

// ResolveKey converts a lock parameter into a LockKey and its mode.
//
//   - any integer type: manual key, must be in 1..2^32-1
//   - string: derived from the string
//   - Namer: derived from MutexName()
//   - fmt.Stringer: derived from String()
//
// Key 0 is rejected in both modes because it is the SysV IPC_PRIVATE key.
func ResolveKey(lockParam any) (LockKey, KeyMode, error) {
	var (
		key  LockKey
		mode KeyMode
	)

	switch p := lockParam.(type) {
	case int, int8, int16, int32, int64:
		n := toInt64(p)
		if n <= 0 || n > math.MaxUint32 {
			return 0, 0, newError(RetCMutexError, nil, "manual lock key %d out of range 1..%d", n, uint64(math.MaxUint32))
		}
		key, mode = LockKey(n), ModeManual
	case uint, uint8, uint16, uint32, uint64, uintptr:
		n := toUint64(p)
		if n == 0 || n > math.MaxUint32 {
			return 0, 0, newError(RetCMutexError, nil, "manual lock key %d out of range 1..%d", n, uint64(math.MaxUint32))
		}
		key, mode = LockKey(n), ModeManual
	case LockKey:
		if p == 0 {
			return 0, 0, newError(RetCMutexError, nil, "manual lock key 0 is reserved")
		}
		key, mode = p, ModeManual
	case string:
		key, mode = HashName(p), ModeDerived
	case Namer:
		key, mode = HashName(p.MutexName()), ModeDerived
	case fmt.Stringer:
		key, mode = HashName(p.String()), ModeDerived
	default:
		return 0, 0, newError(RetCMutexError, nil, "unsupported lock parameter of type %T", lockParam)
	}

	if key == 0 {
		return 0, 0, newError(RetCMutexError, nil, "lock parameter %v hashes to the reserved key 0", lockParam)
	}
	return key, mode, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case uintptr:
		return uint64(n)
	}
	return 0
}
