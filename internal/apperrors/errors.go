// Package apperrors defines the typed error taxonomy shared by the coordinator
// services and the client core. Every mutating operation resolves with the
// updated entity or rejects with one of these kinds.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for HTTP mapping.
type Kind string

const (
	// KindValidation is malformed input. Surfaced immediately, never retried,
	// and never the result of a network round trip.
	KindValidation Kind = "VALIDATION"
	// KindConflict is a mutation that lost a race or violated a uniqueness
	// invariant (duplicate raise, double activate, joining a closed room).
	KindConflict Kind = "CONFLICT"
	// KindNotFound is an unknown session, room, hand raise, or message id.
	KindNotFound Kind = "NOT_FOUND"
	// KindTransient is a network or infrastructure failure that the sync layer
	// recovers from via reconnect and the polling backstop.
	KindTransient Kind = "TRANSIENT"
	// KindInternal is everything else.
	KindInternal Kind = "INTERNAL"
)

// Error is a typed error carrying the entity it concerns.
type Error struct {
	Kind   Kind
	Entity string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Entity, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(entity, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(entity, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(entity, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps err as a KindTransient error.
func Transient(entity string, err error) *Error {
	return &Error{Kind: KindTransient, Entity: entity, Msg: "temporary failure", Err: err}
}

// Internal wraps err as a KindInternal error.
func Internal(entity string, err error) *Error {
	return &Error{Kind: KindInternal, Entity: entity, Msg: "internal error", Err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries no kind.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// HTTPStatus maps an error to the status code the service layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus maps a response status back to a typed error on the client.
func FromHTTPStatus(status int, entity, msg string) *Error {
	var kind Kind
	switch status {
	case http.StatusBadRequest:
		kind = KindValidation
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		kind = KindTransient
	default:
		kind = KindInternal
	}
	return &Error{Kind: kind, Entity: entity, Msg: msg}
}
