package store

import (
	"fmt"

	"github.com/ValentinKolb/shmkv/lib/codec"
	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/mutex"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ISharedStore is a key-value map shared by every process that opens a store with the same
// named mutex. Every operation runs while holding that mutex. If the caller already holds it,
// the operation neither acquires nor releases it, so several operations can be grouped into
// one critical section by the caller.
//
// All methods return a *Error on failure. After Close every method except IsDestroyed,
// SegmentKey and Close fails with RetCDestroyed.
type ISharedStore interface {
	// HasVar returns whether a variable exists.
	HasVar(name string) (found bool, err error)
	// PutVar inserts or updates a variable. Storing nil is not supported; use RemoveVar instead.
	PutVar(name string, value any) (err error)
	// GetVar returns the value of a variable, or def if it does not exist.
	// Values are returned in the canonical shapes of the configured serializer.
	GetVar(name string, def any) (value any, err error)
	// RemoveVar deletes a variable. It fails if the variable does not exist.
	RemoveVar(name string) (err error)
	// AddToVar adds delta to a numeric variable in one critical section and returns the new
	// value. A missing variable counts as 0.
	AddToVar(name string, delta any) (value any, err error)
	// SegmentKey returns the key of the backing segment, which is the LockKey of the mutex.
	SegmentKey() (key mutex.LockKey)
	// IsDestroyed reports whether Close was called on this instance.
	IsDestroyed() (destroyed bool)
	// Close detaches this instance. The backing segment is removed from the system if this was
	// the last attached instance and no user variables remain. Calling Close more than once is
	// a no-op.
	Close() (err error)
}

// Options configures NewSharedStore.
type Options struct {
	SizeHint   int                    // Bytes needed for user data (0 = DefaultSegmentSize), see GetRequiredBytes
	Backend    common.Backend         // Requested segment backend (auto = probe)
	Dir        string                 // Directory for segment files ("" = common.DefaultDir())
	Serializer codec.IValueSerializer // Value serializer (nil = msgpack)
	Names      *NameRegistry          // Variable name registry (nil = DefaultNameRegistry())
}

// DefaultOptions returns the options used when nil is passed to NewSharedStore.
func DefaultOptions() *Options {
	return &Options{
		Backend:    common.BackendAuto,
		Dir:        common.DefaultDir(),
		Serializer: codec.Default(),
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The underlying cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrStore for every store error and other errors of the same code.
func (e *Error) Is(target error) bool {
	if target == ErrStore {
		return true
	}
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// wrapError creates a new StoreError with the given code, cause and message.
func wrapError(code RetCode, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// ErrStore matches every error returned by this package (errors.Is(err, ErrStore)).
var ErrStore = &Error{Code: RetCInternalError, Msg: "store error"}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Backend read or write failed.
	RetCInvalidOperation                // 2: Invalid argument (nil value, non numeric operand, unserializable value).
	RetCKeyCollision                    // 3: Two variable names hash to the same VarKey.
	RetCNoSpace                         // 4: The value does not fit into the segment.
	RetCOpenFailed                      // 5: The backing segment could not be opened.
	RetCDestroyed                       // 6: The store instance was closed.
	RetCLockFailed                      // 7: The mutex could not be acquired or released.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCKeyCollision:
		return "KeyCollision"
	case RetCNoSpace:
		return "NoSpace"
	case RetCOpenFailed:
		return "OpenFailed"
	case RetCDestroyed:
		return "Destroyed"
	case RetCLockFailed:
		return "LockFailed"
	default:
		return "Unknown"
	}
}
