package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Token.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Cancelled
	Dropped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s >= Completed
}

// Token tracks the completion of a single task.
type Token struct {
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

// NewToken returns a pending token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// State returns the current state.
func (t *Token) State() State {
	return State(t.state.Load())
}

// Start moves a pending token to running. It returns false when the token was
// cancelled or already finished, in which case the task must not run.
func (t *Token) Start() bool {
	return t.state.CompareAndSwap(int32(Pending), int32(Running))
}

// Complete marks the token as completed.
func (t *Token) Complete() {
	t.finish(Completed)
}

// Drop marks a pending token as dropped: the task was never handed to a
// runner. A token that already started is left alone.
func (t *Token) Drop() {
	if t.state.CompareAndSwap(int32(Pending), int32(Dropped)) {
		t.once.Do(func() { close(t.done) })
	}
}

// Cancel cancels a token that has not started. It reports whether the
// cancellation won.
func (t *Token) Cancel() bool {
	if !t.state.CompareAndSwap(int32(Pending), int32(Cancelled)) {
		return false
	}
	t.once.Do(func() { close(t.done) })
	return true
}

func (t *Token) finish(s State) {
	for {
		cur := State(t.state.Load())
		if cur.Terminal() {
			return
		}
		if t.state.CompareAndSwap(int32(cur), int32(s)) {
			t.once.Do(func() { close(t.done) })
			return
		}
	}
}

// Done is closed once the token reaches a terminal state.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the token is terminal or ctx is done.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
