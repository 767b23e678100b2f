package core

import (
	"errors"
	"fmt"
)

// ErrorKind identifies a class of failure. Kinds are stable and meant to be
// matched with errors.Is against the Err* sentinels below.
type ErrorKind string

const (
	// KindValidation is an unmet requirement found while validating a batch.
	KindValidation ErrorKind = "VALIDATION"
	// KindIO is a failure of a primitive filesystem call.
	KindIO ErrorKind = "IO"
	// KindPrecondition is a requirement that no longer holds when an
	// operation is about to run.
	KindPrecondition ErrorKind = "PRECONDITION_UNMET"
	// KindNonRevertible means an executed operation cannot be undone.
	KindNonRevertible ErrorKind = "NON_REVERTIBLE"
	// KindInvalidOperation is a malformed operation or argument.
	KindInvalidOperation ErrorKind = "INVALID_OPERATION"
	// KindFrozen is returned when appending to a batch that already executed.
	KindFrozen ErrorKind = "BATCH_FROZEN"
	// KindAlreadyReverted is returned when a result is reverted twice.
	KindAlreadyReverted ErrorKind = "ALREADY_REVERTED"
	// KindUnavailable means a required collaborator (filesystem, store) is missing.
	KindUnavailable ErrorKind = "UNAVAILABLE"
)

// Sentinels for errors.Is matching.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrIO                = &Error{Kind: KindIO}
	ErrPreconditionUnmet = &Error{Kind: KindPrecondition}
	ErrNonRevertible     = &Error{Kind: KindNonRevertible}
	ErrInvalidOperation  = &Error{Kind: KindInvalidOperation}
	ErrBatchFrozen       = &Error{Kind: KindFrozen}
	ErrAlreadyReverted   = &Error{Kind: KindAlreadyReverted}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

// Error is the structured error used across the engine.
type Error struct {
	Kind     ErrorKind
	Op       string   // operation kind or engine step, e.g. "copy", "revert"
	Path     string   // path the error relates to, if any
	Position Position // position in the batch, -1 when not tied to one
	Message  string
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     kind,
		Position: -1,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err into an Error of the given kind. It returns nil for a nil err.
func Wrap(err error, kind ErrorKind, op, path string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:     kind,
		Op:       op,
		Path:     path,
		Position: -1,
		Err:      err,
	}
}

// At returns a copy of e bound to a batch position.
func (e *Error) At(pos Position) *Error {
	c := *e
	c.Position = pos
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
