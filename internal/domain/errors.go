package domain

import (
	"errors"
	"fmt"
)

// Hard failure kinds. Callers match them with errors.Is.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrNotFound            = errors.New("not found")
	ErrInvalidOwnership    = errors.New("invalid ownership")
	ErrNotReady            = errors.New("not ready")
	ErrBookingNotConfirmed = errors.New("booking not confirmed")
	ErrValidationDisabled  = errors.New("validation disabled")
)

// ErrAlreadyValidated is returned by stores when a conditional write matched nothing
var ErrAlreadyValidated = errors.New("already validated")

// Error is a hard failure carrying a kind, an operator-facing message and optional details
type Error struct {
	Kind    error
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// WithDetail returns e with key=value added to its details
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// NewError builds an Error of the given kind
func NewError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorMessage returns the operator-facing message of err
func ErrorMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Message != "" {
			return de.Message
		}
		return de.Kind.Error()
	}
	return err.Error()
}

// ErrorDetails returns the details attached to err, if any
func ErrorDetails(err error) map[string]string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details
	}
	return nil
}
