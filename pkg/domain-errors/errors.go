// Package domainerrors defines the coded error type services return to transports.
//
// Stores return sentinel errors (see pkg/platform/sentinel); services translate
// them into a *Error carrying a Code so handlers and CLIs can branch on the
// failure class without string matching.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	CodeBadRequest             Code = "bad_request"
	CodeValidation             Code = "validation"
	CodeInvalidTransferRequest Code = "invalid_transfer_request"
	CodeNotFound               Code = "not_found"
	CodeUnauthorized           Code = "unauthorized"
	CodeForbidden              Code = "forbidden"
	CodeInvalidState           Code = "invalid_state"
	CodeConflict               Code = "conflict"
	CodeConcurrency            Code = "concurrency"
	CodeTimeout                Code = "timeout"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeInternal               Code = "internal"
)

// Error is a domain error with a stable code and a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, so callers can
// compare against a freshly constructed expectation with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// New creates a domain error with the given code.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain is a domain error with code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsDomain reports whether err already carries a domain code.
func IsDomain(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// Retryable reports whether the caller may safely retry the same request.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConcurrency, CodeTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a code onto an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidTransferRequest:
		return http.StatusBadRequest
	case CodeValidation, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidState, CodeConflict, CodeConcurrency:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
