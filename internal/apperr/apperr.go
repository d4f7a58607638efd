// Package apperr defines the typed error taxonomy shared by every service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

// Kind constants. Each maps to a single HTTP status.
const (
	KindValidation           Kind = "VALIDATION"
	KindBadRequest           Kind = "BAD_REQUEST"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindForbidden            Kind = "FORBIDDEN"
	KindNotFound             Kind = "NOT_FOUND"
	KindConflict             Kind = "CONFLICT"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindExpired              Kind = "EXPIRED"
	KindAttemptsExceeded     Kind = "ATTEMPTS_EXCEEDED"
	KindFingerprintMismatch  Kind = "FINGERPRINT_MISMATCH"
	KindUnprocessableContent Kind = "UNPROCESSABLE_CONTENT"
	KindServiceUnavailable   Kind = "SERVICE_UNAVAILABLE"
	KindInternal             Kind = "INTERNAL"
)

var kindStatus = map[Kind]int{
	KindValidation:           http.StatusBadRequest,
	KindBadRequest:           http.StatusBadRequest,
	KindUnauthorized:         http.StatusUnauthorized,
	KindFingerprintMismatch:  http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindConflict:             http.StatusConflict,
	KindExpired:              http.StatusGone,
	KindUnprocessableContent: http.StatusUnprocessableEntity,
	KindAttemptsExceeded:     http.StatusTooManyRequests,
	KindRateLimited:          http.StatusTooManyRequests,
	KindServiceUnavailable:   http.StatusServiceUnavailable,
	KindInternal:             http.StatusInternalServerError,
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New constructs an Error. The code defaults to the kind name.
func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs an Error carrying a cause.
func Wrap(err error, kind Kind, code, message string) *Error {
	e := New(kind, code, message)
	e.Err = err
	return e
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified with the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Validation reports malformed input.
func Validation(message string) *Error { return New(KindValidation, "", message) }

// BadRequest reports a request that breaks a state rule.
func BadRequest(message string) *Error { return New(KindBadRequest, "", message) }

// ValidationFields reports malformed input with per-field messages.
func ValidationFields(message string, fields map[string]string) *Error {
	e := New(KindValidation, "", message)
	e.Fields = fields
	return e
}

// UnprocessableContent reports media that breaks upload constraints.
func UnprocessableContent(message string) *Error {
	return New(KindUnprocessableContent, "", message)
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *Error { return New(KindUnauthorized, "", message) }

// Forbidden reports an ownership or role failure.
func Forbidden(message string) *Error { return New(KindForbidden, "", message) }

// NotFound reports a missing entity.
func NotFound(message string) *Error { return New(KindNotFound, "", message) }

// Conflict reports a uniqueness or exclusivity clash.
func Conflict(message string) *Error { return New(KindConflict, "", message) }

// Expired reports an expired OTP or token.
func Expired(message string) *Error { return New(KindExpired, "", message) }

// Unavailable reports a fail-closed dependency outage.
func Unavailable(message string, err error) *Error {
	return Wrap(err, KindServiceUnavailable, "", message)
}
