package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskRejected is returned when an agent has no capability covering a task type
	ErrTaskRejected = errors.New("task rejected: no matching capability")

	// ErrAgentStopped is returned when a task is assigned to a stopped agent
	ErrAgentStopped = errors.New("agent stopped")
)

// ExecutionError is the typed error a work executor raises. Retryable
// failures (timeouts, upstream 5xx) are retried with backoff before the
// task goes failed; terminal failures (validation) fail immediately.
type ExecutionError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is an ExecutionError marked retryable.
// Unknown error types are treated as terminal.
func Retryable(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Retryable
	}
	return false
}
