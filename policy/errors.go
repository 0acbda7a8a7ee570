package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidSpec matches every InvalidSpecError via errors.Is.
var ErrInvalidSpec = errors.New("settle: invalid spec")

// ErrUnknownPreset is returned when a preset name is not defined.
var ErrUnknownPreset = errors.New("settle: unknown preset")

// InvalidSpecError indicates a spec that was rejected at construction time.
// It is never retried and never reaches an observer.
type InvalidSpecError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason == "" {
		return fmt.Sprintf("settle: invalid spec: %s=%q", e.Field, e.Value)
	}
	return fmt.Sprintf("settle: invalid spec: %s=%q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidSpecError) Is(target error) bool {
	return target == ErrInvalidSpec
}

func invalid(field string, value any, reason string) error {
	return &InvalidSpecError{Field: field, Value: fmt.Sprint(value), Reason: reason}
}
