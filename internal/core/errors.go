package core

import (
	"errors"
	"fmt"
)

var (
	ErrTaskAlreadyRunning = errors.New("task is already running")
	ErrTaskCancelled      = errors.New("task was cancelled")
	ErrTaskTimeout        = errors.New("task timed out")
	ErrNotFound           = errors.New("task not found")
	ErrInvalidTrigger     = errors.New("invalid trigger")
)

// TaskExecutionError is returned to whoever dispatched or awaited a task that could not
// start, failed, or was cancelled.
type TaskExecutionError struct {
	Name string
	Err  error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Name, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// SchedulingError reports a job that could not be registered.
type SchedulingError struct {
	Name string
	Err  error
}

func (e *SchedulingError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("schedule job: %v", e.Err)
	}
	return fmt.Sprintf("schedule job %s: %v", e.Name, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}
