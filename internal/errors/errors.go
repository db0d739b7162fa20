package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrCode classifies an error for transport mapping and logging.
type ErrCode string

const (
	ErrCodeInvalidInput ErrCode = "invalid_input"
	ErrCodeNotFound     ErrCode = "not_found"
	ErrCodeConflict     ErrCode = "conflict"
	ErrCodeUnauthorized ErrCode = "unauthorized"
	ErrCodeInternal     ErrCode = "internal"
)

// Error is a coded, caller-facing error. Wrapped causes are preserved for
// errors.Is / errors.As chains.
type Error struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no underlying cause.
func New(code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource by type and identifier.
func NotFound(resource, id string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id))
}

// InvalidInput reports a rejected request field.
func InvalidInput(field, message string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("%s: %s", field, message))
}

// CodeOf extracts the ErrCode from an error chain, defaulting to internal.
func CodeOf(err error) ErrCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether the error chain carries ErrCodeNotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
