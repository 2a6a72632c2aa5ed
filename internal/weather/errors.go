package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrLocationNotFound is returned when geocoding yields no result for a place name.
	ErrLocationNotFound = errors.New("location not found")

	// ErrAlertNotFound is returned when an alert id does not match any active alert.
	ErrAlertNotFound = errors.New("alert not found")
)

// ValidationError reports malformed or missing caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamError is a failure of an external provider call. Transport is true for
// network failures and timeouts; otherwise the provider answered with a non-2xx status.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Transport  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Transport:
		return fmt.Sprintf("%s: transport failure: %v", e.Provider, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is an upstream transport failure.
func IsTransport(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Transport
}
