package lock

import (
	"errors"
	"fmt"
)

// ErrorCode classifies lock manager failures independently of any protocol.
type ErrorCode int

const (
	// ErrLocked indicates a conflicting lock is held by another owner.
	ErrLocked ErrorCode = iota + 1

	// ErrLockNotFound indicates no lock matched an unlock request exactly.
	ErrLockNotFound

	// ErrWaitCancelled indicates a blocking wait was cancelled because its
	// owner went away.
	ErrWaitCancelled

	// ErrDeadlock indicates waiting would create a cycle in the wait-for graph.
	ErrDeadlock

	// ErrLimitExceeded indicates a configured lock limit was hit.
	ErrLimitExceeded

	// ErrBackend indicates the storage backend failed.
	ErrBackend
)

// String returns the name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrLocked:
		return "Locked"
	case ErrLockNotFound:
		return "LockNotFound"
	case ErrWaitCancelled:
		return "WaitCancelled"
	case ErrDeadlock:
		return "Deadlock"
	case ErrLimitExceeded:
		return "LimitExceeded"
	case ErrBackend:
		return "Backend"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error is the error type returned by the lock manager.
type Error struct {
	Code    ErrorCode
	Message string

	// Object is the hex object key the error refers to, if any.
	Object string

	// Conflict is set for ErrLocked and names the blocking lock.
	Conflict *Conflict

	// Err is the underlying cause for ErrBackend.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Object != "" {
		msg += fmt.Sprintf(" (object: %s)", e.Object)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying backend error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Object == "" && t.Conflict == nil && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrLockedSentinel        = &Error{Code: ErrLocked, Message: "resource is locked"}
	ErrLockNotFoundSentinel  = &Error{Code: ErrLockNotFound, Message: "lock not found"}
	ErrWaitCancelledSentinel = &Error{Code: ErrWaitCancelled, Message: "lock wait cancelled"}
	ErrDeadlockSentinel      = &Error{Code: ErrDeadlock, Message: "deadlock detected"}
	ErrLimitSentinel         = &Error{Code: ErrLimitExceeded, Message: "lock limit exceeded"}
)

// NewLockedError creates error for lock conflicts.
func NewLockedError(object string, conflicting *Lock) *Error {
	return &Error{
		Code:     ErrLocked,
		Message:  "resource is locked by another owner",
		Object:   object,
		Conflict: &Conflict{Lock: conflicting.Clone()},
	}
}

// NewLockNotFoundError creates error for missing locks.
func NewLockNotFoundError(object string) *Error {
	return &Error{
		Code:    ErrLockNotFound,
		Message: "lock not found",
		Object:  object,
	}
}

// NewWaitCancelledError creates error for a blocking wait cancelled by owner disposal.
func NewWaitCancelledError(object, ownerID string) *Error {
	return &Error{
		Code:    ErrWaitCancelled,
		Message: "lock wait cancelled for owner " + ownerID,
		Object:  object,
	}
}

// NewDeadlockError creates error for deadlock detection.
func NewDeadlockError(object, waiter string) *Error {
	return &Error{
		Code:    ErrDeadlock,
		Message: "deadlock detected for " + waiter,
		Object:  object,
	}
}

// NewLimitExceededError creates error for lock limit violations.
func NewLimitExceededError(object string, limit int) *Error {
	return &Error{
		Code:    ErrLimitExceeded,
		Message: fmt.Sprintf("per-object lock limit %d exceeded", limit),
		Object:  object,
	}
}

// NewBackendError wraps a storage failure.
func NewBackendError(object, op string, err error) *Error {
	return &Error{
		Code:    ErrBackend,
		Message: op + " failed",
		Object:  object,
		Err:     err,
	}
}

// CodeOf returns the ErrorCode carried by err, or 0 if err is not a lock error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// ConflictOf returns the conflict detail carried by a Locked error.
func ConflictOf(err error) *Conflict {
	var e *Error
	if errors.As(err, &e) {
		return e.Conflict
	}
	return nil
}
