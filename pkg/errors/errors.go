package errors

import (
	stdErrors "errors"
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
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeGateway            Code = "GATEWAY_ERROR"
	CodeUnsupportedGateway Code = "UNSUPPORTED_GATEWAY"
)

// Metadata is how a code surfaces to API clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable      = true
	withDetails    = true
	final          = false
	withoutDetails = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:         {http.StatusBadRequest, final, "validation failed", withDetails},
	CodeUnauthorized:       {http.StatusUnauthorized, final, "authentication required", withoutDetails},
	CodeForbidden:          {http.StatusForbidden, final, "access denied", withoutDetails},
	CodeNotFound:           {http.StatusNotFound, final, "resource not found", withoutDetails},
	CodeConflict:           {http.StatusConflict, final, "conflict detected", withoutDetails},
	CodeStateConflict:      {http.StatusUnprocessableEntity, final, "state transition disallowed", withDetails},
	CodeIdempotency:        {http.StatusConflict, final, "idempotency key reused", withDetails},
	CodeRateLimit:          {http.StatusTooManyRequests, final, "rate limit exceeded", withoutDetails},
	CodeInternal:           {http.StatusInternalServerError, retryable, "internal server error", withoutDetails},
	CodeDependency:         {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails},
	CodeGateway:            {http.StatusBadGateway, retryable, "payment gateway error", withDetails},
	CodeUnsupportedGateway: {http.StatusUnprocessableEntity, final, "unsupported payment gateway", withDetails},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	meta, ok := metadataByCode[code]
	if !ok {
		return metadataByCode[CodeInternal]
	}
	return meta
}

// Error is a coded error with an optional cause and client-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
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

// WithDetails sets the payload returned to clients when the code allows it.
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
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeOrEmpty() == code
}

func (e *Error) codeOrEmpty() Code {
	if e == nil {
		return ""
	}
	return e.code
}
