// Package apperr defines the error taxonomy shared across the API, the
// reconciliation loops, and the webhook handlers. Every error that can
// reach a caller (HTTP or background loop) should be wrapped in an
// *Error so its Kind can be mapped to a status code or a retry decision.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the purposes of HTTP status mapping and
// webhook ack/retry decisions.
type Kind string

const (
	NotFound                     Kind = "not_found"
	Unauthorized                 Kind = "unauthorized"
	InvalidInput                 Kind = "invalid_input"
	Conflict                     Kind = "conflict"
	PaymentFailure                Kind = "payment_failure"
	ManualTaxReconciliationRequired Kind = "manual_tax_reconciliation_required"
	RateLimited                  Kind = "rate_limited"
	Transient                    Kind = "transient"
	Internal                     Kind = "internal"
)

// Error is the concrete error type every layer should return instead of
// a bare error once the failure needs to be caller-visible.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps a Kind to the HTTP status a handler should return.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case InvalidInput, ManualTaxReconciliationRequired:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case PaymentFailure:
		return http.StatusPaymentRequired
	case RateLimited:
		return http.StatusTooManyRequests
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// NotFoundf is a convenience constructor mirroring the teacher's
// fmt.Errorf-style call sites.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return New(Unauthorized, fmt.Sprintf(format, args...))
}

func InvalidInputf(format string, args ...interface{}) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}
