// Package apperr defines the typed errors that cross package boundaries and
// map onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class.
type Code string

const (
	CodeInvalid  Code = "INVALID_REQUEST"
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
	CodeTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeUpstream Code = "UPSTREAM"
	CodeInternal Code = "INTERNAL"
)

// Error is an application error with a client-safe message.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, status int, msg string, err error) *Error {
	return &Error{Code: code, Status: status, Message: msg, Err: err}
}

func Invalid(format string, args ...any) *Error {
	return New(CodeInvalid, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, http.StatusNotFound, fmt.Sprintf(format, args...), nil)
}

func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, http.StatusConflict, fmt.Sprintf(format, args...), nil)
}

func TooLarge(format string, args ...any) *Error {
	return New(CodeTooLarge, http.StatusRequestEntityTooLarge, fmt.Sprintf(format, args...), nil)
}

// Upstream wraps a failure of an external provider (model, storage,
// transcription). It is reported as a 500.
func Upstream(msg string, err error) *Error {
	return New(CodeUpstream, http.StatusInternalServerError, msg, err)
}

func Internal(msg string, err error) *Error {
	return New(CodeInternal, http.StatusInternalServerError, msg, err)
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}

// StatusOf returns the HTTP status for err, 500 for untyped errors.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}
