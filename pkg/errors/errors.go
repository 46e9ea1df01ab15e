// Package errors carries typed error codes from services to the HTTP envelope.
package errors

import (
	stdErrors "errors"
	"fmt"
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
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientCredit Code = "INSUFFICIENT_CREDIT"
	CodeUntrustedWebhook   Code = "UNTRUSTED_WEBHOOK"
)

// Metadata is how a code is presented to API clients. Codes with EchoMessage send the
// error's own message; the rest send PublicMessage so internals stay server-side.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	EchoMessage    bool
}

const (
	retryable   = true
	withDetails = true
	echo        = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {http.StatusBadRequest, !retryable, "validation failed", withDetails, echo},
	CodeUnauthorized:       {http.StatusUnauthorized, !retryable, "authentication required", !withDetails, echo},
	CodeForbidden:          {http.StatusForbidden, !retryable, "access denied", !withDetails, echo},
	CodeNotFound:           {http.StatusNotFound, !retryable, "resource not found", !withDetails, echo},
	CodeConflict:           {http.StatusConflict, !retryable, "conflict detected", !withDetails, echo},
	CodeStateConflict:      {http.StatusUnprocessableEntity, !retryable, "state transition disallowed", withDetails, echo},
	CodeInsufficientCredit: {http.StatusUnprocessableEntity, !retryable, "insufficient bonus credit", withDetails, echo},
	CodeUntrustedWebhook:   {http.StatusUnauthorized, !retryable, "webhook signature rejected", !withDetails, !echo},
	CodeIdempotency:        {http.StatusConflict, !retryable, "idempotency key reused", withDetails, echo},
	CodeRateLimit:          {http.StatusTooManyRequests, !retryable, "rate limit exceeded", !withDetails, echo},
	CodeInternal:           {http.StatusInternalServerError, retryable, "internal server error", !withDetails, !echo},
	CodeDependency:         {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails, !echo},
}

// PublicMessage is the message API clients see for err.
func PublicMessage(err *Error) string {
	meta := MetadataFor(err.Code())
	if meta.EchoMessage && err.Message() != "" {
		return err.Message()
	}
	return meta.PublicMessage
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields a plain New.
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

// WithDetails sets the client-facing details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
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

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether a caller may retry the failed operation unchanged.
// Untyped errors count as internal and therefore retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}
