// Package apperr defines the error taxonomy shared by the service layer and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a status code.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindAlreadyExists   Kind = "already_exists"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Error carries a stable code, a caller-facing message and the underlying cause.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

// New builds an Error. The code is "<operation>.<reason>".
func New(kind Kind, operation, reason, message string, cause error) *Error {
	return &Error{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the failure class.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the stable machine-readable code.
func (e *Error) Code() string {
	return e.code
}

// Message reports the human-readable description.
func (e *Error) Message() string {
	if e.message == "" {
		return e.code
	}
	return e.message
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// As unwraps err into an *Error when possible.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
