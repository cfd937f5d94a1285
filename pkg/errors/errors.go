package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Gateway and webhook failures.
	CodeInvalidSignature   Code = "INVALID_SIGNATURE"
	CodeGatewayUnavailable Code = "GATEWAY_UNAVAILABLE"
	CodeGatewayTimeout     Code = "GATEWAY_TIMEOUT"
	CodeConcurrentUpdate   Code = "CONCURRENT_UPDATE"
)

// Metadata describes how a Code is surfaced to HTTP clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable   = true
	withDetails = true
	noRetry     = false
	noDetails   = false
)

func meta(status int, message string, retry, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retry, PublicMessage: message, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", noRetry, withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", noRetry, noDetails),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", noRetry, noDetails),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", noRetry, noDetails),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", noRetry, noDetails),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", noRetry, withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", noRetry, withDetails),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable, noDetails),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable, withDetails),

	CodeInvalidSignature:   meta(http.StatusBadRequest, "invalid webhook signature", noRetry, noDetails),
	CodeGatewayUnavailable: meta(http.StatusServiceUnavailable, "payment gateway unavailable", retryable, noDetails),
	CodeGatewayTimeout:     meta(http.StatusGatewayTimeout, "payment gateway timed out", retryable, noDetails),
	CodeConcurrentUpdate:   meta(http.StatusServiceUnavailable, "concurrent update, retry later", retryable, noDetails),
}

// MetadataFor returns the transport metadata for code, defaulting to internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried from services to the transport layer.
// All accessors are nil-safe so handlers can pass As(err) straight through.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err, which stays reachable via Unwrap.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// WithDetails sets structured details exposed when the code allows them.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
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

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

// Is matches any *Error with the same code, so a bare New(code, "") works as
// a sentinel with the standard errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether err's code is flagged retryable. Untyped
// errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).Retryable
	}
	return true
}
