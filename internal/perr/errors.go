// Package perr provides a coded error type shared by fetchers, the orchestrator and storage.
// Import it as perr.
package perr

import (
	"context"
	stderrs "errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrorCode classifies failures for retry decisions.
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeUnavailable is for transient failures (timeouts, resets, 5xx) where retry may succeed
	ErrorCodeUnavailable

	// ErrorCodeTooManyRequests is for source-side rate limiting
	ErrorCodeTooManyRequests

	// ErrorCodeSessionCrashed means the fetch session itself is unusable and must be replaced
	ErrorCodeSessionCrashed

	// ErrorCodeNotFound is for missing identifiers or pages
	ErrorCodeNotFound

	// ErrorCodeInvalidArgument is for bad input parameters
	ErrorCodeInvalidArgument

	// ErrorCodeValidation is for records failing validation before persistence
	ErrorCodeValidation

	// ErrorCodeDB is for general database errors
	ErrorCodeDB
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnavailable:
		return "unavailable"
	case ErrorCodeTooManyRequests:
		return "too_many_requests"
	case ErrorCodeSessionCrashed:
		return "session_crashed"
	case ErrorCodeNotFound:
		return "not_found"
	case ErrorCodeInvalidArgument:
		return "invalid_argument"
	case ErrorCodeValidation:
		return "validation"
	case ErrorCodeDB:
		return "db"
	default:
		return "unknown"
	}
}

// Error is the structured error type. msg is developer facing, code is machine facing.
type Error struct {
	orig error
	msg  string
	code ErrorCode
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// IsSessionCrash reports whether the fetch session behind err must be replaced.
func IsSessionCrash(err error) bool { return IsCode(err, ErrorCodeSessionCrashed) }

// Retryable reports whether a fetch failure is worth another attempt.
// Coded errors decide by code; foreign errors are retryable when they look like
// network trouble (timeouts, resets, unexpected EOF).
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok {
		switch e.code {
		case ErrorCodeUnavailable, ErrorCodeTooManyRequests, ErrorCodeSessionCrashed:
			return true
		case ErrorCodeUnknown:
			return isNetworkError(e.orig)
		default:
			return false
		}
	}
	return isNetworkError(err)
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if stderrs.Is(err, context.DeadlineExceeded) {
		return true
	}
	if stderrs.Is(err, io.ErrUnexpectedEOF) || stderrs.Is(err, io.EOF) {
		return true
	}
	if stderrs.Is(err, syscall.ECONNRESET) || stderrs.Is(err, syscall.ECONNREFUSED) || stderrs.Is(err, syscall.EPIPE) {
		return true
	}
	var nerr net.Error
	if stderrs.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var operr *net.OpError
	return stderrs.As(err, &operr)
}
