// Package apierr is the ingestion core's error sum type: a small,
// closed set of kinds that every failure surfaced to an HTTP caller
// maps onto, independent of the transport that eventually renders them
// (spec.md §7).
package apierr

import (
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind tags which of the closed set of error conditions occurred.
type Kind uint8

const (
	BadRequest Kind = iota
	Forbidden
	NotFound
	NoSuchUpload
	InvalidPart
	InvalidPartOrder
	EntityTooSmall
	NotImplemented
	InternalError
	ServiceUnavailable
)

// status and s3Code are parallel lookup tables keyed by Kind; kept
// alongside Kind's declaration so a new Kind cannot be added without
// also giving it an HTTP status and S3 error code.
var status = [...]int{
	BadRequest:         http.StatusBadRequest,
	Forbidden:          http.StatusForbidden,
	NotFound:           http.StatusNotFound,
	NoSuchUpload:       http.StatusNotFound,
	InvalidPart:        http.StatusBadRequest,
	InvalidPartOrder:   http.StatusBadRequest,
	EntityTooSmall:     http.StatusBadRequest,
	NotImplemented:     http.StatusNotImplemented,
	InternalError:      http.StatusInternalServerError,
	ServiceUnavailable: http.StatusServiceUnavailable,
}

var s3Code = [...]string{
	BadRequest:         "BadRequest",
	Forbidden:          "AccessDenied",
	NotFound:           "NoSuchKey",
	NoSuchUpload:       "NoSuchUpload",
	InvalidPart:        "InvalidPart",
	InvalidPartOrder:   "InvalidPartOrder",
	EntityTooSmall:     "EntityTooSmall",
	NotImplemented:     "NotImplemented",
	InternalError:      "InternalError",
	ServiceUnavailable: "ServiceUnavailable",
}

// StatusCode returns the HTTP status k maps to.
func (k Kind) StatusCode() int { return status[k] }

// S3Code returns the short S3 error code k maps to.
func (k Kind) S3Code() string { return s3Code[k] }

// Error is the error value the ingestion core returns; it carries a
// Kind plus a human-readable message, and wraps an optional underlying
// cause for logging (never rendered to the caller).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		// Cause is already message-prefixed by pkgerrors.Wrap.
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error carrying cause for logging, surfacing
// message to the caller. Used for InternalError/ServiceUnavailable
// conditions where the cause must not leak into the response body.
// cause is wrapped with pkg/errors.Wrap so the logged Cause carries a
// stack trace alongside message.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return &Error{Kind: kind, Message: message}
	}
	return &Error{Kind: kind, Message: message, Cause: pkgerrors.Wrap(cause, message)}
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}
