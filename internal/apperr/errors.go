// Package apperr defines the gateway's terminal error taxonomy. Every error a
// request can die with maps to exactly one HTTP status and a fixed plain-text
// body, so downstream SDKs can branch on the status alone.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the terminal request failures.
type Kind int

const (
	KindAppDoesNotExist Kind = iota
	KindInvalidToken
	KindMissingToken
	KindMissingSignature
	KindInvalidSignature
	KindUnknownOrigin
	KindBadDeviceID
	KindInvalidPayload
	KindInternal
	KindServiceUnavailable
)

// Error is a terminal gateway error. Reason is only set for the internal and
// service-unavailable kinds; it goes to the log, never to the client.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Body(), e.Reason)
	}
	return e.Body()
}

// Status returns the fixed HTTP status for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAppDoesNotExist, KindUnknownOrigin:
		return http.StatusForbidden
	case KindInvalidToken, KindMissingToken, KindMissingSignature, KindInvalidSignature:
		return http.StatusPreconditionFailed
	case KindBadDeviceID, KindInvalidPayload:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the fixed plain-text response body for the error kind.
func (e *Error) Body() string {
	switch e.Kind {
	case KindAppDoesNotExist:
		return "Unknown app"
	case KindInvalidToken:
		return "Invalid X-Api-Token"
	case KindMissingToken:
		return "Missing X-Api-Token"
	case KindMissingSignature:
		return "Missing X-Signature"
	case KindInvalidSignature:
		return "Invalid X-Signature"
	case KindUnknownOrigin:
		return "Unknown Origin"
	case KindBadDeviceID:
		return "Bad X-Device-Id"
	case KindInvalidPayload:
		return "Invalid payload"
	case KindServiceUnavailable:
		return "Service unavailable"
	default:
		return "Internal Server Error"
	}
}

var (
	ErrAppDoesNotExist  = &Error{Kind: KindAppDoesNotExist}
	ErrInvalidToken     = &Error{Kind: KindInvalidToken}
	ErrMissingToken     = &Error{Kind: KindMissingToken}
	ErrMissingSignature = &Error{Kind: KindMissingSignature}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature}
	ErrUnknownOrigin    = &Error{Kind: KindUnknownOrigin}
	ErrBadDeviceID      = &Error{Kind: KindBadDeviceID}
	ErrInvalidPayload   = &Error{Kind: KindInvalidPayload}
)

// Internal wraps a reason into a 500-class error.
func Internal(reason string) *Error {
	return &Error{Kind: KindInternal, Reason: reason}
}

// Unavailable wraps a reason into a 503-class error.
func Unavailable(reason string) *Error {
	return &Error{Kind: KindServiceUnavailable, Reason: reason}
}

// From extracts the gateway error from err, or wraps it as internal.
func From(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return Internal(err.Error())
}
