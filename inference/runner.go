package inference

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// maxOutputTail bounds how much process output is kept on an InferenceError.
const maxOutputTail = 4096

// CommandRunner runs an external program to completion.
type CommandRunner interface {
	// Run returns the standard output of the process and its exit code. On
	// failure the returned output also holds standard error. The exit code is
	// -1 when the process could not be started or was killed.
	Run(ctx context.Context, name string, args ...string) ([]byte, int, error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct {
	Dir string // Working directory, empty for the current one
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), 0, nil
	}

	output := append(stdout.Bytes(), stderr.Bytes()...)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, exitErr.ExitCode(), err
	}
	return output, -1, err
}

// Tail keeps the end of a process output for error reports.
func Tail(output []byte) string {
	if len(output) > maxOutputTail {
		output = output[len(output)-maxOutputTail:]
	}
	return string(output)
}
