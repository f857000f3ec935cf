package mutex

import "fmt"

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is returned by every failing operation of this package.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The underlying cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same code, so errors.Is(err, ErrConflict) works for every conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// newError creates a new Error with the given code, cause and message.
func newError(code RetCode, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess    RetCode = iota // 0: Operation succeeded.
	RetCConflict                  // 1: A key was registered as manual and derived (MutexConflict).
	RetCMutexError                // 2: The OS primitive could not be created, acquired or released (MutexError).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCConflict:
		return "MutexConflict"
	case RetCMutexError:
		return "MutexError"
	default:
		return "Unknown"
	}
}

var (
	// ErrConflict matches every MutexConflict error.
	ErrConflict = &Error{Code: RetCConflict}
	// ErrMutex matches every MutexError.
	ErrMutex = &Error{Code: RetCMutexError}
)
