package tablet

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of a lifecycle error.
type ErrorCode int

const (
	// ErrNotFound indicates no superblock exists for the tablet.
	ErrNotFound ErrorCode = iota + 1

	// ErrBusy indicates another lifecycle operation holds the tablet, or the
	// server has not finished startup recovery. Retryable.
	ErrBusy

	// ErrIllegalState indicates the on-disk artifacts contradict the recorded
	// data state. Never retried.
	ErrIllegalState

	// ErrTimedOut indicates the caller's deadline expired.
	ErrTimedOut

	// ErrInvalidArgument indicates a malformed tablet id or target state.
	ErrInvalidArgument

	// ErrAlreadyPresent indicates a tablet with the same id already exists.
	ErrAlreadyPresent

	// ErrStaleTerm indicates a leadership claim older than the recorded term.
	ErrStaleTerm

	// ErrAborted indicates a transition stopped before committing. Its durable
	// pending state is finished by recovery.
	ErrAborted
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrBusy:
		return "Busy"
	case ErrIllegalState:
		return "IllegalState"
	case ErrTimedOut:
		return "TimedOut"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrAlreadyPresent:
		return "AlreadyPresent"
	case ErrStaleTerm:
		return "StaleTerm"
	case ErrAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Label returns the code in snake_case, for metric labels and JSON.
func (c ErrorCode) Label() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrBusy:
		return "busy"
	case ErrIllegalState:
		return "illegal_state"
	case ErrTimedOut:
		return "timed_out"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrAlreadyPresent:
		return "already_present"
	case ErrStaleTerm:
		return "stale_term"
	case ErrAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Retryable reports whether the same request may succeed if sent again.
func (c ErrorCode) Retryable() bool {
	return c == ErrBusy || c == ErrTimedOut
}

// Error is a lifecycle error carrying a code and the tablet it concerns.
type Error struct {
	Code     ErrorCode
	TabletID string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.TabletID != "" {
		msg += " (tablet " + e.TabletID + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: ErrBusy}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.TabletID == "" || t.TabletID == e.TabletID)
}

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, tabletID, format string, args ...any) *Error {
	return &Error{Code: code, TabletID: tabletID, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping cause.
func WrapError(code ErrorCode, tabletID string, cause error, message string) *Error {
	return &Error{Code: code, TabletID: tabletID, Message: message, Err: cause}
}

// NotFound creates a NotFound error for tabletID.
func NotFound(tabletID string) *Error {
	return &Error{Code: ErrNotFound, TabletID: tabletID, Message: "tablet not found"}
}

// Busy creates a Busy error naming the operation holding the tablet.
func Busy(tabletID, holder string) *Error {
	msg := "tablet is busy"
	if holder != "" {
		msg = "tablet is busy with " + holder
	}
	return &Error{Code: ErrBusy, TabletID: tabletID, Message: msg}
}

// CodeOf returns the ErrorCode carried by err, or 0 when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrNotFound }

// IsBusy reports whether err is a Busy error.
func IsBusy(err error) bool { return CodeOf(err) == ErrBusy }

// IsIllegalState reports whether err is an IllegalState error.
func IsIllegalState(err error) bool { return CodeOf(err) == ErrIllegalState }

// IsTimedOut reports whether err is a TimedOut error.
func IsTimedOut(err error) bool { return CodeOf(err) == ErrTimedOut }
