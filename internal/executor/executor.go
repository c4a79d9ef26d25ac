package executor

import "errors"

var (
	// ErrQueueFull is returned by Submit when a pool has no room left.
	ErrQueueFull = errors.New("executor: queue full")
	// ErrStopped is returned by Submit after a pool was stopped.
	ErrStopped = errors.New("executor: stopped")
	// ErrAlreadyRunning is returned when starting a running pool.
	ErrAlreadyRunning = errors.New("executor: already running")
	// ErrNotRunning is returned when stopping a pool that is not running.
	ErrNotRunning = errors.New("executor: not running")
)

// Executor runs submitted tasks. Submit must not block on task execution.
type Executor interface {
	Submit(task func()) error
}

// Func adapts a function to the Executor interface.
type Func func(task func()) error

func (f Func) Submit(task func()) error {
	return f(task)
}

// Go runs every task on its own goroutine.
type Go struct{}

func (Go) Submit(task func()) error {
	go task()
	return nil
}

// Inline runs every task on the submitting goroutine. It is meant for tests
// and for stages whose handlers are known to be cheap.
type Inline struct{}

func (Inline) Submit(task func()) error {
	task()
	return nil
}
