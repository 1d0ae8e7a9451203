// Package bundleerr implements the engine's error taxonomy: bad_request,
// not_found, service_unavailable. A plain Go error type checked with
// errors.As. The distinction matters to callers (retry vs. rebuild), so
// it is never collapsed across layers.
package bundleerr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeServiceUnavailable Code = "service_unavailable"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func BadRequest(msg string, args ...any) *Error {
	return &Error{Code: CodeBadRequest, Message: fmt.Sprintf(msg, args...)}
}

func NotFound(msg string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(msg, args...)}
}

func ServiceUnavailable(msg string, args ...any) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: fmt.Sprintf(msg, args...)}
}

func Wrap(code Code, err error, msg string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(msg, args...), Err: err}
}

// Is reports whether err carries the given taxonomy code anywhere in its
// chain.
func Is(err error, code Code) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
