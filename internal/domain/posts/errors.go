package posts

import (
	"errors"
	"fmt"
)

// ErrNotFound covers both a store miss and an id that failed the numeric check;
// callers cannot tell the two apart.
var ErrNotFound = errors.New("post not found")

// FieldError is one entry of a validation report.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidationError wraps a complete (non short-circuited) validation report.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	switch len(e.Details) {
	case 0:
		return "invalid payload"
	case 1:
		return "invalid payload: " + e.Details[0].Error()
	}
	return fmt.Sprintf("invalid payload: %s (and %d more)", e.Details[0].Error(), len(e.Details)-1)
}
