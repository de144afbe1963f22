// Package apperr carries the failure kinds every service reports to the HTTP
// boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotAuthenticated
	KindNotAuthorized
	KindNotFound
	KindConflict
	KindDependencyMissing
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotAuthenticated:
		return "NotAuthenticated"
	case KindNotAuthorized:
		return "NotAuthorized"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindDependencyMissing:
		return "DependencyMissing"
	default:
		return "Internal"
	}
}

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound, KindDependencyMissing:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is an expected failure with a user-facing message. Fields holds
// per-field validation messages.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Field builds a single-field validation error.
func Field(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: map[string]string{field: msg}}
}

func NotAuthenticated(msg string) *Error {
	return &Error{Kind: KindNotAuthenticated, Message: msg}
}

func NotAuthorized(msg string) *Error {
	return &Error{Kind: KindNotAuthorized, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func DependencyMissing(msg string) *Error {
	return &Error{Kind: KindDependencyMissing, Message: msg}
}

// Internal wraps an unexpected failure. msg is what clients see outside
// development mode.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
