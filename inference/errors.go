package inference

import (
	"errors"
	"fmt"
)

// InferenceError reports a failed classification or detection run.
type InferenceError struct {
	Op       string
	Target   string // Folder or image the run was given
	ExitCode int    // Exit status of the external process, -1 if it did not exit normally
	Output   string // Tail of the combined process output
	Err      error
}

func (e *InferenceError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Target)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// NewInferenceError creates a new InferenceError
func NewInferenceError(op, target string, exitCode int, output string, err error) *InferenceError {
	return &InferenceError{Op: op, Target: target, ExitCode: exitCode, Output: output, Err: err}
}

// IsInferenceError checks if the error is, or wraps, an InferenceError
func IsInferenceError(err error) bool {
	var inferenceErr *InferenceError
	return errors.As(err, &inferenceErr)
}
