package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotInactive is returned when an operation needs an active slot.
	ErrSlotInactive = errors.New("slot is not active")

	// ErrNoActiveSlots is returned by a bulk generate when no day has an active slot.
	ErrNoActiveSlots = errors.New("no active slots to generate")

	// ErrPlanCleared is returned by a bulk generate whose plan was cleared before the response arrived.
	ErrPlanCleared = errors.New("plan cleared while generating")
)

// ValidationError reports input rejected before any backend call.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// BackendFailure wraps an error returned by the recipe generation backend.
type BackendFailure struct {
	Op  string
	Err error
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendFailure) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsBackendFailure reports whether err carries a BackendFailure.
func IsBackendFailure(err error) bool {
	var b *BackendFailure
	return errors.As(err, &b)
}
