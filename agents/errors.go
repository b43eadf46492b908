package agents

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bububa/atomic-orchestrator/schema"
)

var (
	// ErrExhaustedRetries the run ended without a validated answer
	ErrExhaustedRetries = errors.New("exhausted retries")
	// ErrModelUnavailable the model call failed or timed out
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrCancelled the run context was cancelled
	ErrCancelled = errors.New("run cancelled")
	// ErrEmptyQuery the user query is blank
	ErrEmptyQuery = errors.New("user query is empty")
	// ErrMissingModel no model was configured
	ErrMissingModel = errors.New("model is required")
)

// ExhaustedRetriesError carries the last candidate and the diagnostics of a failed run.
// Diagnostics explains the budget that ended the run and is never empty.
type ExhaustedRetriesError struct {
	Reason      string
	Diagnostics schema.FieldErrors
	// LastCandidate is the last answer that failed validation, CandidateDiagnostics its field errors
	LastCandidate        json.RawMessage
	CandidateDiagnostics schema.FieldErrors
	// ToolDiagnostics describes the last rejected tool batch
	ToolDiagnostics schema.FieldErrors
	// Attempts is the number of candidate answers that failed validation
	Attempts int
	// Turns is the number of turns consumed
	Turns int
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s: %s after %d turns and %d attempts: %s", ErrExhaustedRetries.Error(), e.Reason, e.Turns, e.Attempts, e.Diagnostics.Error())
}

func (e *ExhaustedRetriesError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Diagnostics
}

func modelUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
