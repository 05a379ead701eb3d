package worker

import "errors"

var (
	// ErrNilProcessor is raised when a pool is created without a processor function
	ErrNilProcessor = errors.New("worker pool requires a processor function")
	// ErrPoolNotStarted is returned when work is submitted before Start
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolAlreadyStarted is returned by a second Start
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	// ErrPoolStopped is returned when work is submitted after Stop
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned when the work queue is at capacity
	ErrQueueFull = errors.New("worker pool queue full")
	// ErrStopTimeout is returned when workers do not drain within the stop timeout
	ErrStopTimeout = errors.New("worker pool stop timeout")
)
