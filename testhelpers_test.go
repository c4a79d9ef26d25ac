package strix

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/fogfish/opts"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBroker(options ...opts.Option[Broker]) *Broker {
	return NewBroker(append([]opts.Option[Broker]{WithLogger(testLogger())}, options...)...)
}

// recorder collects handler invocations in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	evts  []*Event
}

func (r *recorder) handler(name string) HandlerFunc {
	return func(_ context.Context, evt *Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		r.evts = append(r.evts, evt)
		return nil
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.evts...)
}

// manualExecutor queues tasks until the test runs them.
type manualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *manualExecutor) Submit(task func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *manualExecutor) RunAll() int {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()
	for _, t := range tasks {
		t()
	}
	return len(tasks)
}

type observed struct {
	topic      string
	subscriber string
	outcome    Outcome
	err        error
}

type testObserver struct {
	mu        sync.Mutex
	published []string
	delivered []observed
	dropped   []observed
	removed   []string
}

func (o *testObserver) EventPublished(topic string, _ int, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, topic)
}

func (o *testObserver) EventDelivered(topic, subscriber string, r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, observed{topic: topic, subscriber: subscriber, outcome: r.Outcome, err: r.Err})
}

func (o *testObserver) EventDropped(topic, subscriber string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, observed{topic: topic, subscriber: subscriber, err: err})
}

func (o *testObserver) RegistrationRemoved(subscriber string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, subscriber)
}

func (o *testObserver) Dropped() []observed {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observed(nil), o.dropped...)
}

func (o *testObserver) Removed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.removed...)
}

func (o *testObserver) Delivered() []observed {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observed(nil), o.delivered...)
}
