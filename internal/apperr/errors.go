// Package apperr defines the error taxonomy shared by stores, services and the API.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and for HTTP status mapping.
type Code string

const (
	// CodeNotFound indicates the requested listing or user does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidArgument indicates malformed caller input.
	CodeInvalidArgument Code = "INVALID_REQUEST"
	// CodeForbidden indicates the actor does not own the resource.
	CodeForbidden Code = "FORBIDDEN"
	// CodeUnauthorized indicates no authenticated identity was supplied.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeUnavailable indicates the storage collaborator failed.
	CodeUnavailable Code = "SERVICE_UNAVAILABLE"
	// CodeInternal indicates a bug or unexpected state.
	CodeInternal Code = "INTERNAL"
)

// Error carries a Code, a message safe to show to clients, and the cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext attaches debugging key/values and returns e.
func (e *Error) WithContext(kv map[string]any) *Error {
	e.Context = kv
	return e
}

// NotFound is shorthand for New(CodeNotFound, ...).
func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found")
}

// Invalid is shorthand for New(CodeInvalidArgument, ...).
func Invalid(format string, args ...any) *Error {
	return New(CodeInvalidArgument, fmt.Sprintf(format, args...))
}

// Unavailable wraps a storage failure.
func Unavailable(op string, cause error) *Error {
	return Wrap(CodeUnavailable, op, cause)
}

// CodeOf returns the Code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
