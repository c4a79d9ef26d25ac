// Package executor provides the execution side of asynchronous delivery:
// the Executor contract stages are bound to, a bounded worker Pool, and
// completion Tokens.
//
// Design decisions:
//   - Submit never blocks: a full queue is reported as ErrQueueFull so the
//     publisher can drop the delivery instead of stalling.
//   - Tokens follow a Future/Promise shape: one writer completes them, any
//     number of readers wait on them.
//   - Cancellation is best effort: a token can only be cancelled before its
//     task has started running.
//
// Key components:
//
//   - Executor: Interface for anything that runs submitted tasks
//     ├── Pool: Bounded queue drained by a fixed set of workers
//     ├── Go: One goroutine per task
//     └── Inline: Runs the task on the submitting goroutine
//
//   - Token: Completion state of one delivery
//     ├── Start: Claims the token for running, fails when cancelled
//     ├── Complete / Drop: Terminal states written by the runner
//     └── Cancel / Wait / Done: Reader side
//
// Example usage:
//
//	pool := executor.NewPool("io", executor.Workers(4), executor.QueueSize(256))
//	if err := pool.Start(); err != nil {
//	    return err
//	}
//	defer pool.Stop(ctx)
//
//	tok := executor.NewToken()
//	if err := pool.Submit(func() {
//	    if tok.Start() {
//	        defer tok.Complete()
//	        work()
//	    }
//	}); err != nil {
//	    tok.Drop()
//	}
//	_ = tok.Wait(ctx)
package executor
