package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransition  = errors.New("invalid workflow transition")
	ErrSubmissionInFlight = errors.New("a label submission is already in flight")
)

// ValidationError reports a malformed bulk-update payload. It is raised before
// anything is sent to the server.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransportError is a failed bulk-update round trip. StatusCode is 0 when the
// server could not be reached at all.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("server unreachable: %v", e.Err)
		}
		return "server unreachable"
	}
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Unreachable reports whether the request never got an HTTP response.
func (e *TransportError) Unreachable() bool {
	return e.StatusCode == 0
}

// ConfigurationError flags a cosmetic misconfiguration, such as an unknown
// label color, that was replaced by a fallback value.
type ConfigurationError struct {
	Value    string
	Fallback string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unrecognized color %q, using %q", e.Value, e.Fallback)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
