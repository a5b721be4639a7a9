// Package errors defines the coded error type returned across service
// boundaries and the HTTP metadata attached to each code.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeOutOfStock    Code = "INSUFFICIENT_STOCK"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is surfaced over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	withDetails = 1 << iota
	retryable
)

func md(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    md(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  md(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     md(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      md(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      md(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: md(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   md(http.StatusConflict, "idempotency key reused", withDetails),
	CodeOutOfStock:    md(http.StatusConflict, "insufficient stock", withDetails),
	CodeRateLimit:     md(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      md(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    md(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor returns the metadata for code; unknown codes map to internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. Message is safe to show to clients for the codes
// the response writer exposes; the cause never is.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches client-visible details and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.code) + ": " + e.message
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Retryable reports whether the error's code is marked retryable.
func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
