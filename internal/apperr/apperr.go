// Package apperr defines the client-facing failure taxonomy. Every failure
// that reaches the HTTP surface is expressed as an *Error whose Kind decides
// the status code.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindRateLimited
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:       "internal",
	KindBadRequest:     "bad_request",
	KindValidation:     "validation",
	KindAuthentication: "authentication",
	KindAuthorization:  "authorization",
	KindNotFound:       "not_found",
	KindRateLimited:    "rate_limited",
	KindUnavailable:    "unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Detail is one entry of the envelope's errors array.
type Detail struct {
	Field    string `json:"field,omitempty"`
	Location string `json:"location,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Details []Detail
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code of the error.
func (e *Error) Status() int { return e.Kind.Status() }

// New builds an error of the given kind.
func New(kind Kind, message string, details ...Detail) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error, details ...Detail) *Error {
	return &Error{Kind: kind, Message: message, Details: details, Err: cause}
}

func BadRequest(message string) *Error { return New(KindBadRequest, message) }

func Validation(details []Detail) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Details: details}
}

func Unauthenticated(message, code string) *Error {
	return New(KindAuthentication, message, Detail{Code: code, Message: message})
}

func Forbidden(message string) *Error { return New(KindAuthorization, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func RateLimited(message string) *Error { return New(KindRateLimited, message) }

func Unavailable(message string, cause error) *Error { return Wrap(KindUnavailable, message, cause) }

func Internal(cause error) *Error { return Wrap(KindInternal, "Internal server error", cause) }

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
