package systemprompt

import (
	"errors"
	"fmt"
)

// ErrMissingContextField is matched by MissingContextFieldError
var ErrMissingContextField = errors.New("missing context field")

// MissingContextFieldError is returned when a prompt references a fact absent from the RunContext
type MissingContextFieldError struct {
	Field string
}

func (e *MissingContextFieldError) Error() string {
	return fmt.Sprintf("%s '%s'", ErrMissingContextField.Error(), e.Field)
}

func (e *MissingContextFieldError) Unwrap() error {
	return ErrMissingContextField
}
