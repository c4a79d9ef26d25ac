package delivery

import (
	"runtime/debug"
	"time"
)

// Outcome classifies a delivery attempt.
type Outcome int

const (
	// Delivered means the handler ran and returned without error.
	Delivered Outcome = iota
	// Failed means the handler returned an error.
	Failed
	// Panicked means the handler panicked.
	Panicked
	// Filtered means the filter rejected the event and the handler did not run.
	Filtered
	// Cancelled means the token was cancelled before the delivery started.
	Cancelled
	// Dropped means the delivery never reached the handler.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Panicked:
		return "panicked"
	case Filtered:
		return "filtered"
	case Cancelled:
		return "cancelled"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Result is what one handler invocation produced. Errors and panics end here
// and never travel back to the publisher.
type Result struct {
	Outcome    Outcome
	Err        error
	PanicValue any
	PanicStack []byte
	Duration   time.Duration
}

// OK reports whether the handler ran cleanly.
func (r Result) OK() bool {
	return r.Outcome == Delivered
}

// Invoke runs fn, converting a returned error or a panic into a Result.
func Invoke(fn func() error) (result Result) {
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			result.Outcome = Panicked
			result.PanicValue = r
			result.PanicStack = debug.Stack()
		}
	}()

	if err := fn(); err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	return Result{Outcome: Delivered}
}
