package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by the readers when no record exists.
	ErrNotFound = errors.New("saga not found")
	// ErrStepFailed matches any *StepError.
	ErrStepFailed = errors.New("saga step failed")
	// ErrNoSteps is returned when a definition has nothing to run.
	ErrNoSteps = errors.New("saga has no steps")
)

// StepError reports the step that aborted a saga. It unwraps to the step's
// own error, so callers can still match domain sentinels.
type StepError struct {
	Saga  string
	ID    string
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga %s (%s): step %d %q: %v", e.Saga, e.ID, e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}
