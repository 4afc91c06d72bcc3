package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindInvalidInput            Kind = "invalid_input"
	KindNotFound                Kind = "not_found"
	KindSlotUnavailable         Kind = "slot_unavailable"
	KindCodeGenerationExhausted Kind = "code_generation_exhausted"
	KindStorage                 Kind = "storage_error"
)

// Error is the structured error returned by the booking core.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target carries no message,
// so errors.Is(err, ErrNotFound) works for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrInvalidInput            = &Error{Kind: KindInvalidInput}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrSlotUnavailable         = &Error{Kind: KindSlotUnavailable}
	ErrCodeGenerationExhausted = &Error{Kind: KindCodeGenerationExhausted}
	ErrStorage                 = &Error{Kind: KindStorage}
)

// Errorf builds a structured error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Storage wraps a persistence failure unless it already carries a kind.
func Storage(err error, message string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return Wrap(KindStorage, err, message)
}

// KindOf reports the kind of err, defaulting to KindStorage for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorage
}

// MessageOf returns the human message of a structured error, or err.Error().
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
