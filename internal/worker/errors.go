package worker

import "errors"

// Errors returned by Pool. Callers compare with errors.Is.
var (
	// ErrPoolNotStarted is returned by Submit before Start has run.
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrPoolStopped is returned by Submit once Stop has run.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolAlreadyStarted is returned by a second call to Start.
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrQueueFull is returned by Submit when every queue slot is taken.
	// The service maps it to ErrServiceUnavailable.
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrNilProcessor is the panic value of NewPool when no processor is given.
	ErrNilProcessor = errors.New("processor function cannot be nil")

	// ErrStopTimeout is returned by Stop when workers are still busy at the
	// deadline.
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")
)
