package screening

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamUnavailable = errors.New("all search queries failed")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrNotFound            = errors.New("screening not found")
)

// ValidationError identifies the request field that was rejected.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
