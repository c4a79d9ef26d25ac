package executor

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/fogfish/opts"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1024
)

var (
	// Workers sets the number of worker goroutines of a Pool.
	Workers = opts.ForName[Pool, int]("workers")
	// QueueSize sets how many tasks a Pool buffers before rejecting.
	QueueSize = opts.ForName[Pool, int]("queueSize")
	// Logger sets the logger a Pool reports task panics to.
	Logger = opts.ForName[Pool, *slog.Logger]("logger")
)

// Pool is a fixed set of workers draining a bounded queue.
type Pool struct {
	name      string
	workers   int
	queueSize int
	logger    *slog.Logger

	mu      sync.RWMutex // guards queue against Submit racing Stop
	queue   chan func()
	running atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Uint64
	executed  atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Submitted  uint64
	Executed   uint64
	Rejected   uint64
	Panicked   uint64
	QueueDepth int
}

// NewPool creates a stopped pool. Call Start before submitting.
func NewPool(name string, options ...opts.Option[Pool]) *Pool {
	p := &Pool{
		name:      name,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	if p.workers <= 0 {
		p.workers = defaultWorkers
	}
	if p.queueSize < 0 {
		p.queueSize = 0
	}
	p.logger = p.logger.With(slogx.LoggerName("executor.pool"), slogx.Stage(name))
	return p
}

// Name returns the stage name the pool was created for.
func (p *Pool) Name() string {
	return p.name
}

// Start launches the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return ErrAlreadyRunning
	}
	p.queue = make(chan func(), p.queueSize)
	p.running.Store(true)
	for range p.workers {
		p.wg.Add(1)
		go p.worker(p.queue)
	}
	return nil
}

// Stop rejects new tasks and waits for queued ones to drain, or for ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running.Store(false)
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		p.rejected.Add(1)
		return ErrStopped
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

func (p *Pool) worker(queue <-chan func()) {
	defer p.wg.Done()
	for task := range queue {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.logger.Error("task panicked", slogx.Panic(r, debug.Stack()))
		}
	}()
	task()
	p.executed.Add(1)
}

// Running reports whether the pool accepts tasks.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	depth := 0
	if p.running.Load() {
		depth = len(p.queue)
	}
	p.mu.RUnlock()

	return PoolStats{
		Submitted:  p.submitted.Load(),
		Executed:   p.executed.Load(),
		Rejected:   p.rejected.Load(),
		Panicked:   p.panicked.Load(),
		QueueDepth: depth,
	}
}
