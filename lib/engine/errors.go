package engine

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrKind classifies every failure the engine can signal. All failures are
// scoped to a request or a transaction; there are no process-level errors.
type ErrKind uint8

const (
	ErrNotFound     ErrKind = iota // Missing database, store, index or key.
	ErrConstraint                  // Duplicate primary key on add, unique index collision.
	ErrData                        // No key resolvable for a keyless write, invalid key or range.
	ErrInvalidState                // Operation against a finished transaction or out-of-scope store.
	ErrVersion                     // Open requested a version lower than the stored one.
	ErrAbort                       // The owning transaction was aborted.
)

func (k ErrKind) String() string {
	switch k {
	case ErrNotFound:
		return "NotFound"
	case ErrConstraint:
		return "Constraint"
	case ErrData:
		return "DataError"
	case ErrInvalidState:
		return "InvalidState"
	case ErrVersion:
		return "VersionError"
	case ErrAbort:
		return "AbortError"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type for every failure signaled through a request's
// error state. It wraps an ErrKind and a message.
type Error struct {
	Kind ErrKind // The error classification
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StorageError (kind %s): %s", e.Kind, e.Msg)
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrKind from an error. The boolean result is false
// when err is nil or not an engine Error.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an engine Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
