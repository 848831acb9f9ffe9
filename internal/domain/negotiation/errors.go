package negotiation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies expected negotiation outcomes.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindLockHeldByOther   ErrorKind = "LOCK_HELD_BY_OTHER"
	KindNotLockOwner      ErrorKind = "NOT_LOCK_OWNER"
	KindTurnViolation     ErrorKind = "TURN_VIOLATION"
	KindNegotiationClosed ErrorKind = "NEGOTIATION_CLOSED"
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindConflict          ErrorKind = "CONFLICT"
	KindNotParticipant    ErrorKind = "NOT_PARTICIPANT"
)

// Error is a recoverable negotiation outcome returned to callers as a typed result.
type Error struct {
	Kind    ErrorKind
	Message string
	// RemainingSeconds is set for KindLockHeldByOther.
	RemainingSeconds int
}

func (e *Error) Error() string {
	if e.Kind == KindLockHeldByOther {
		return fmt.Sprintf("%s (expires in %ds)", e.Message, e.RemainingSeconds)
	}
	return e.Message
}

// Is matches errors of the same kind so errors.Is(err, ErrTurnViolation) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "negotiation not found"}
	ErrLockHeldByOther   = &Error{Kind: KindLockHeldByOther, Message: "locked by other party"}
	ErrNotLockOwner      = &Error{Kind: KindNotLockOwner, Message: "lock not held by caller"}
	ErrTurnViolation     = &Error{Kind: KindTurnViolation, Message: "waiting for the other party to respond"}
	ErrNegotiationClosed = &Error{Kind: KindNegotiationClosed, Message: "negotiation closed"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "active negotiation already exists"}
	ErrNotParticipant    = &Error{Kind: KindNotParticipant, Message: "caller is not a party to this negotiation"}
)

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationError builds a KindValidation error.
func ValidationError(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

// LockHeldError builds a KindLockHeldByOther error carrying the remaining lease time.
func LockHeldError(owner string, remaining int) *Error {
	return &Error{
		Kind:             KindLockHeldByOther,
		Message:          fmt.Sprintf("locked by %s", owner),
		RemainingSeconds: remaining,
	}
}

// AsError extracts a negotiation error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of a negotiation error, or "" for infrastructure failures.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}
