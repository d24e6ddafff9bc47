// Package agenterrors defines the typed error kinds shared across the
// agent's subsystems, following the teacher's Code+error pair pattern
// (pkg/store/metadata.StoreError/ErrorCode) rather than bare sentinel
// errors, so callers can branch on a stable Code regardless of the
// wrapped message.
package agenterrors

import (
	"errors"
	"fmt"
)

// Code identifies the category of an agent error.
type Code int

const (
	// CodeUnknown is the zero value; never returned deliberately.
	CodeUnknown Code = iota
	// CodeNotFound indicates a requested row or resource does not exist.
	CodeNotFound
	// CodeAlreadyExists indicates a uniqueness constraint would be violated.
	CodeAlreadyExists
	// CodeInvalidArgument indicates a caller-supplied value failed validation.
	CodeInvalidArgument
	// CodeIO indicates a filesystem or network I/O failure.
	CodeIO
	// CodeUnavailable indicates a dependency (platform API, S3, SQLite) is
	// temporarily unreachable and the caller should retry.
	CodeUnavailable
	// CodeAuthRequired indicates a missing or expired session token.
	CodeAuthRequired
	// CodeCanceled indicates the operation's context was canceled.
	CodeCanceled
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeAlreadyExists:
		return "already_exists"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeIO:
		return "io_error"
	case CodeUnavailable:
		return "unavailable"
	case CodeAuthRequired:
		return "auth_required"
	case CodeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a typed agent error carrying a Code, a message, and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error with the given code, message, and wrapped cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, or
// CodeUnknown otherwise.
func CodeOf(err error) Code {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return CodeUnknown
}

// Is reports whether err is (or wraps) an *Error with the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
