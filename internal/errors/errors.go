// Package errors defines the error taxonomy used throughout galleryd.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the galleryd error categories.
// Every error surfaced by the asset subsystem carries exactly one Kind.
type Kind string

// Error kinds.
const (
	// KindValidation indicates bad input: a missing field, a non-image
	// mime type, a malformed request body.
	KindValidation Kind = "ValidationError"
	// KindAuth indicates a missing or invalid credential.
	KindAuth Kind = "AuthError"
	// KindNotFound indicates an absent asset or project.
	KindNotFound Kind = "NotFoundError"
	// KindStorage indicates the blob backend was unreachable or rejected
	// an operation.
	KindStorage Kind = "StorageError"
	// KindConsistency indicates a multi-step operation partially completed.
	// The Orphan field says whether compensation also failed.
	KindConsistency Kind = "ConsistencyError"
	// KindOrderMismatch indicates a reorder payload that is not a
	// permutation of the project's current asset set.
	KindOrderMismatch Kind = "OrderMismatchError"
	// KindInternal is the fallback for unexpected failures.
	KindInternal Kind = "InternalError"
)

// Orphan annotates a ConsistencyError with the residue left behind when
// compensation itself failed. Empty means compensation succeeded and the
// two stores do not diverge.
type Orphan string

// Orphan annotations.
const (
	// OrphanNone: compensation succeeded, no residue.
	OrphanNone Orphan = ""
	// OrphanBlob: a blob exists with no metadata row referencing it.
	OrphanBlob Orphan = "orphan-blob"
	// OrphanMetadata: a metadata row references a blob that is gone.
	OrphanMetadata Orphan = "orphan-metadata"
)

// Error is the error value used across galleryd. It pairs a Kind with a
// human-readable message and an HTTP status, and optionally wraps a cause.
type Error struct {
	// Kind is the taxonomy category.
	Kind Kind
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the status code the HTTP layer maps this error to.
	HTTPStatus int
	// Orphan is set only on KindConsistency errors whose compensation
	// failed, so operators can tell residue apart from clean failures.
	Orphan Orphan
	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Orphan != OrphanNone {
		msg += fmt.Sprintf(" [%s]", e.Orphan)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause so errors.Is/As see through it.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind. This makes
// errors.Is(err, errors.ErrNotFound) work on any NotFoundError regardless
// of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is matching.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrStorage       = &Error{Kind: KindStorage}
	ErrConsistency   = &Error{Kind: KindConsistency}
	ErrOrderMismatch = &Error{Kind: KindOrderMismatch}
	ErrInternal      = &Error{Kind: KindInternal}
)

// Validation returns a ValidationError with the formatted message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), HTTPStatus: 400}
}

// Auth returns an AuthError with the formatted message.
func Auth(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...), HTTPStatus: 401}
}

// NotFound returns a NotFoundError with the formatted message.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), HTTPStatus: 404}
}

// Storage returns a StorageError wrapping cause.
func Storage(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindStorage, Message: fmt.Sprintf(format, args...), HTTPStatus: 502, Err: cause}
}

// Consistency returns a ConsistencyError wrapping cause, annotated with the
// given orphan residue (OrphanNone when compensation succeeded).
func Consistency(cause error, orphan Orphan, format string, args ...any) *Error {
	return &Error{Kind: KindConsistency, Message: fmt.Sprintf(format, args...), HTTPStatus: 500, Orphan: orphan, Err: cause}
}

// OrderMismatch returns an OrderMismatchError with the formatted message.
func OrderMismatch(format string, args ...any) *Error {
	return &Error{Kind: KindOrderMismatch, Message: fmt.Sprintf(format, args...), HTTPStatus: 400}
}

// Internal returns an InternalError wrapping cause.
func Internal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), HTTPStatus: 500, Err: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and
// KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// OrphanOf returns the orphan annotation of err, or OrphanNone when err is
// not a ConsistencyError or carries no residue.
func OrphanOf(err error) Orphan {
	var e *Error
	if errors.As(err, &e) {
		return e.Orphan
	}
	return OrphanNone
}

// StatusOf returns the HTTP status for err, defaulting to 500 for errors
// outside the taxonomy.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return 500
}
