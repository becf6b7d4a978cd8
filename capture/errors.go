package capture

import (
	"errors"
	"fmt"
)

// CaptureError reports a camera failure during a capture attempt.
type CaptureError struct {
	Op   string
	Path string
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// NewCaptureError creates a new CaptureError
func NewCaptureError(op, path string, err error) *CaptureError {
	return &CaptureError{Op: op, Path: path, Err: err}
}

// IsCaptureError checks if the error is, or wraps, a CaptureError
func IsCaptureError(err error) bool {
	var captureErr *CaptureError
	return errors.As(err, &captureErr)
}
