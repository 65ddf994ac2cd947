package mediator

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a submit or send arrives while a previous one is still in flight.
	ErrBusy = errors.New("request already in progress")
	// ErrUnavailable is returned by features whose remote capability could not be configured.
	ErrUnavailable = errors.New("feature unavailable")
)

// Kind classifies a mediator error.
type Kind string

const (
	// KindValidation is a missing or malformed field, detected locally.
	KindValidation Kind = "validation"
	// KindRemote is a transport or non-success failure of the remote call.
	KindRemote Kind = "remote"
	// KindDecode is a reply that did not match the expected structured shape.
	KindDecode Kind = "decode"
	// KindUnavailable means the remote capability is not configured.
	KindUnavailable Kind = "unavailable"
)

// Error is the error entity stored by a mediator and shown to the user.
// Message is safe to display; the wrapped cause is for logs only.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes errors.Is(err, ErrUnavailable) hold for unavailable errors.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable && e.Kind == KindUnavailable
}

// ValidationError builds a KindValidation error for field.
func ValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// UnavailableError builds a KindUnavailable error.
func UnavailableError(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, cause: cause}
}

// KindOf reports the Kind of err, or "" when err is not a mediator error.
func KindOf(err error) Kind {
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Kind
	}
	return ""
}
