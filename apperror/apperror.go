// Package apperror defines the typed failures returned by the booking core.
// Every error carries a Kind so callers can branch with errors.Is against the
// exported sentinels, plus the booking and transition it concerns.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindStaleState          Kind = "STALE_STATE"
	KindNotFound            Kind = "NOT_FOUND"
	KindValidation          Kind = "VALIDATION_ERROR"
	KindAuthRequired        Kind = "AUTH_REQUIRED"
	KindAuthExpired         Kind = "AUTH_EXPIRED"
	KindPaymentGateway      Kind = "PAYMENT_GATEWAY_ERROR"
	KindInvalidPaymentState Kind = "INVALID_PAYMENT_STATE"
	KindAccessDenied        Kind = "ACCESS_DENIED"
	KindInternal            Kind = "INTERNAL"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrStaleState          = &Error{Kind: KindStaleState}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrAuthRequired        = &Error{Kind: KindAuthRequired}
	ErrAuthExpired         = &Error{Kind: KindAuthExpired}
	ErrPaymentGateway      = &Error{Kind: KindPaymentGateway}
	ErrInvalidPaymentState = &Error{Kind: KindInvalidPaymentState}
	ErrAccessDenied        = &Error{Kind: KindAccessDenied}
	ErrInternal            = &Error{Kind: KindInternal}
)

type Error struct {
	Kind       Kind
	Message    string
	BookingID  string
	Transition string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.BookingID != "" {
		msg += fmt.Sprintf(" (booking %s", e.BookingID)
		if e.Transition != "" {
			msg += ", " + e.Transition
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithBooking returns a copy annotated with the booking id and transition.
// Existing annotations are kept.
func (e *Error) WithBooking(bookingID, transition string) *Error {
	cp := *e
	if cp.BookingID == "" {
		cp.BookingID = bookingID
	}
	if cp.Transition == "" {
		cp.Transition = transition
	}
	return &cp
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidTransition, format, args...)
}

func StaleState(format string, args ...any) *Error {
	return New(KindStaleState, format, args...)
}

func NotFound(resource, id string) *Error {
	return New(KindNotFound, "%s %s not found", resource, id)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func AccessDenied(format string, args ...any) *Error {
	return New(KindAccessDenied, format, args...)
}

func AuthRequired(message string) *Error {
	return &Error{Kind: KindAuthRequired, Message: message}
}

func AuthExpired(err error) *Error {
	return &Error{Kind: KindAuthExpired, Message: "credential expired", Err: err}
}

func PaymentGateway(err error) *Error {
	return &Error{Kind: KindPaymentGateway, Message: "payment step failed, booking unchanged", Err: err}
}

func InvalidPaymentState(format string, args ...any) *Error {
	return New(KindInvalidPaymentState, format, args...)
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns err as an *Error, wrapping foreign errors as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func IsAuth(err error) bool {
	k := KindOf(err)
	return k == KindAuthExpired || k == KindAuthRequired
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidTransition, KindStaleState, KindInvalidPaymentState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthRequired, KindAuthExpired:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusForbidden
	case KindPaymentGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
