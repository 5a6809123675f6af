// Package apperr defines the typed error taxonomy for the territory engine.
// Every failure a service surfaces carries a Kind so callers can branch on
// the failure class instead of string-matching messages. Only
// KindStoreUnavailable is appropriate to retry.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

// Failure kinds. KindUnknown is the zero value carried by errors outside
// the taxonomy.
const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindAuthorization
	KindInsufficientResources
	KindCapacityExceeded
	KindConflict
	KindStoreUnavailable
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindAuthorization:
		return "authorization"
	case KindInsufficientResources:
		return "insufficient_resources"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindConflict:
		return "conflict"
	case KindStoreUnavailable:
		return "store_unavailable"
	}
	return "unknown"
}

// Error is a failure with a kind. It wraps an optional cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// New creates an error of the given kind.
func New(k Kind, format string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf returns the kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Convenience constructors, one per kind.

// Validation reports missing or malformed required fields.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// NotFound reports an absent zone, raid, listing or transaction.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// InvalidState reports an illegal state-machine transition, naming the
// current and requested states.
func InvalidState(current, requested string) *Error {
	return New(KindInvalidState, "illegal transition %s -> %s", current, requested)
}

// Authorization reports a wrong team, role or bidder.
func Authorization(format string, args ...any) *Error {
	return New(KindAuthorization, format, args...)
}

// InsufficientResources reports a debit exceeding the available balance.
func InsufficientResources(format string, args ...any) *Error {
	return New(KindInsufficientResources, format, args...)
}

// CapacityExceeded reports a credit that would cross a configured ceiling.
func CapacityExceeded(format string, args ...any) *Error {
	return New(KindCapacityExceeded, format, args...)
}

// Conflict reports a request that clashes with current state, such as an
// auction still running or a second active raid on a zone.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// StoreUnavailable reports a transient collaborator failure. Retryable.
func StoreUnavailable(err error, format string, args ...any) *Error {
	return Wrap(KindStoreUnavailable, err, format, args...)
}
