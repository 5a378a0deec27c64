package scheduler

import "errors"

// Sentinel errors for scheduler operations.
var (
	// ErrStopped is returned when work is submitted after shutdown started.
	ErrStopped = errors.New("scheduler: stopped")

	// ErrQueueFull is returned by Submit when the run-queue has no room.
	ErrQueueFull = errors.New("scheduler: run-queue full")

	// ErrShutdownTimeout is returned when tasks outlive the grace period.
	ErrShutdownTimeout = errors.New("scheduler: tasks still running after grace period")

	// ErrTaskPanic wraps a panic recovered from a blocking call.
	ErrTaskPanic = errors.New("scheduler: task panicked")
)
