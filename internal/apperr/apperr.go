// Package apperr centralizes the error Kinds from the propagation policy
// (spec §7) and their HTTP status mapping. Domain packages keep returning
// their own sentinel errors (github.com/.../internal/domain.ErrXxx) the way
// the teacher's internal/domain does; handlers translate those sentinels to
// a Kind via errors.Is, the same way the teacher's handler.errXxx constants
// work, just generalized across the much larger endpoint surface this spec
// adds.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the stable, wire-visible error codes from spec §7.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation_error"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindRateLimited     Kind = "rate_limited"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
	KindBadSource       Kind = "bad_source"
	KindProtocolError   Kind = "protocol_error"
	KindAbandoned       Kind = "abandoned"
	KindInternal        Kind = "internal_error"
)

// httpStatus maps each Kind to the 4xx/5xx the policy requires.
var httpStatus = map[Kind]int{
	KindNotFound:      http.StatusNotFound,
	KindConflict:      http.StatusConflict,
	KindValidation:    http.StatusBadRequest,
	KindUnauthorized:  http.StatusUnauthorized,
	KindForbidden:     http.StatusForbidden,
	KindRateLimited:   http.StatusTooManyRequests,
	KindTimeout:       http.StatusGatewayTimeout,
	KindCancelled:     http.StatusRequestTimeout,
	KindBadSource:     http.StatusBadRequest,
	KindProtocolError: http.StatusInternalServerError,
	KindAbandoned:     http.StatusInternalServerError,
	KindInternal:      http.StatusInternalServerError,
}

// Error wraps an underlying cause with a stable Kind and an optional list
// of field-path messages (used by KindValidation).
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldMessage
	cause   error
}

// FieldMessage is one ValidationError entry surfaced to the client.
type FieldMessage struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code the propagation policy assigns to e.Kind.
func (e *Error) Status() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error of the given kind wrapping cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a KindValidation error carrying field-path messages.
func Validation(fields []FieldMessage) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// As is a thin errors.As wrapper returning the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies err: if it already wraps an *Error, its Kind is
// returned; otherwise it is treated as an unclassified internal error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status the propagation policy assigns to err.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status()
	}
	return http.StatusInternalServerError
}
