// ABOUTME: Kind-tagged application errors shared by services and HTTP handlers
// ABOUTME: Maps each error kind one-to-one onto an HTTP status code

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindBadRequest    Kind = "bad_request"
	KindUnauthorized  Kind = "unauthorized"
	KindNotFound      Kind = "not_found"
	KindAlreadyExists Kind = "already_exists"
	KindInternal      Kind = "internal"
	KindUnavailable   Kind = "unavailable"
)

// Error is a typed failure with a caller-safe message and an optional cause.
// The cause is for logs only and never reaches a client.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns an error of the given kind with no cause.
func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Wrap attaches kind and message to err. An err that already carries a Kind
// is returned unchanged so the innermost classification wins.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func BadRequest(op, message string) *Error    { return New(KindBadRequest, op, message) }
func Unauthorized(op, message string) *Error  { return New(KindUnauthorized, op, message) }
func NotFound(op, message string) *Error      { return New(KindNotFound, op, message) }
func AlreadyExists(op, message string) *Error { return New(KindAlreadyExists, op, message) }

// Internal wraps cause as an internal failure. The message is shown to the
// caller, so it must not describe the cause.
func Internal(op, message string, cause error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: message, Cause: cause}
}

// KindOf returns the kind of the first typed error in the chain, or
// KindInternal when the chain carries none.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the provided kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus returns the status code for a kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that is safe to send to a client.
func PublicMessage(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return "Internal server error"
}
