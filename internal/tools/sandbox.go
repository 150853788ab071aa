package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Sandbox runs submitted code through an external interpreter. The improvement
// pipeline uses it to validate proposed fixes before recording them.
type Sandbox struct {
	// Command is the interpreter binary, e.g. "python3".
	Command string

	// Args are passed before the submitted file or script text.
	Args []string

	// Timeout bounds each submission. Zero means 60 seconds.
	Timeout time.Duration
}

// NewSandbox creates a sandbox over the given interpreter command.
func NewSandbox(command string, args ...string) *Sandbox {
	return &Sandbox{Command: command, Args: args, Timeout: 60 * time.Second}
}

// Submit runs code through the interpreter on stdin and returns its stdout.
// Any output on stderr is treated as failure, matching interpreters that
// exit zero after printing a traceback.
func (s *Sandbox) Submit(ctx context.Context, code string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Stdin = bytes.NewBufferString(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if stderr.Len() > 0 {
		return stdout.String(), fmt.Errorf("submission failed: %s", stderr.String())
	}
	if err != nil {
		return stdout.String(), fmt.Errorf("submission failed: %w", err)
	}
	return stdout.String(), nil
}
