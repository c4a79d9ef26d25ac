package strix

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/strix/internal/delivery"
	"github.com/casualjim/strix/internal/executor"
	"github.com/casualjim/strix/pkg/slogx"
)

// Publish delivers evt synchronously. Every resolved handler runs on the
// calling goroutine in priority order before Publish returns; the returned
// handle is already done. Handler failures are logged, never returned.
func (b *Broker) Publish(ctx context.Context, evt *Event) (*EventHandle, error) {
	res, err := b.prepare(ctx, evt, false)
	if err != nil {
		return nil, err
	}
	for _, reg := range res.Handlers {
		b.deliver(ctx, reg, evt)
	}
	h := completedHandle(evt)
	evt.handle.Store(h)
	return h, nil
}

// Post delivers evt asynchronously on the executor of its topic's stage and
// returns without waiting for any handler. The handle tracks one delivery
// per resolved handler.
func (b *Broker) Post(ctx context.Context, evt *Event) (*EventHandle, error) {
	res, err := b.prepare(ctx, evt, true)
	if err != nil {
		return nil, err
	}
	if len(res.Handlers) == 0 {
		h := completedHandle(evt)
		evt.handle.Store(h)
		return h, nil
	}
	if !res.Bound {
		return nil, fmt.Errorf("post %s on stage %q: %w", evt.TopicName(), res.Stage, ErrStageUnavailable)
	}

	// Queued deliveries keep the publisher's values but outlive its cancellation.
	dctx := context.WithoutCancel(ctx)
	tokens := make([]*executor.Token, 0, len(res.Handlers))
	for _, reg := range res.Handlers {
		if reg.removed.Load() {
			continue
		}
		serial := !reg.isReentrant(b.defaultReentrant.Load())
		tok := reg.mailbox.Push(pending{ctx: dctx, evt: evt})
		tokens = append(tokens, tok)
		if err := res.Executor.Submit(func() { b.deliverNext(reg) }); err != nil {
			b.reject(ctx, reg, evt, res.Stage, tok, serial, err)
		}
	}

	h := newHandle(evt, tokens)
	evt.handle.Store(h)
	return h, nil
}

// reject undoes the queueing of a delivery whose task the executor refused.
// A serial handler's entry that is no longer queued was taken by the task
// draining the mailbox, so nothing is lost. Otherwise every task pops exactly
// one entry and one entry has to go.
func (b *Broker) reject(ctx context.Context, reg *registration, evt *Event, stage string, tok *executor.Token, serial bool, err error) {
	if serial {
		if !reg.mailbox.Remove(tok) {
			return
		}
		tok.Drop()
	} else if dropped, ok := reg.mailbox.Reject(tok); ok {
		dropped.Drop()
	} else {
		tok.Drop()
	}
	b.observer.EventDropped(evt.TopicName(), reg.subscriber, err)
	b.logger.WarnContext(ctx, "dropped delivery",
		slogx.Topic(evt.TopicName()),
		slogx.Subscriber(reg.subscriber),
		slogx.Stage(stage),
		slogx.EventID(evt.ID()),
		slogx.Error(err),
	)
}

func (b *Broker) prepare(ctx context.Context, evt *Event, async bool) (*resolution, error) {
	if b == nil {
		return nil, ErrNotInitialized
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if evt == nil {
		return nil, ErrNilEvent
	}

	evt.seal()
	if evt.Parent() == nil {
		if cur := CurrentEvent(ctx); cur != nil {
			if err := evt.attachParent(cur); err != nil {
				b.logger.DebugContext(ctx, "not linking event to current event",
					slogx.EventID(evt.ID()), slogx.Error(err))
			}
		}
	}

	if b.authorizer != nil && !b.authorizer.CanPublish(evt.TopicName()) {
		return nil, fmt.Errorf("publish %s: %w", evt.TopicName(), ErrPublishDenied)
	}

	res := b.resolve(evt.topic)
	b.observer.EventPublished(evt.TopicName(), len(res.Handlers), async)
	return res, nil
}

func (b *Broker) resolve(t *Topic) *resolution {
	if res := t.resolution.Load(); res != nil && !res.Stale() {
		return res
	}
	res := b.index.Resolve(t.name)
	t.resolution.Store(res)
	return res
}

// deliverNext is the asynchronous delivery task. A reentrant handler gets
// the oldest queued event. For a non-reentrant handler the task that wins the
// delivery lock drains the mailbox; tasks that lose return at once, so a
// stalled handler holds at most one executor worker.
func (b *Broker) deliverNext(reg *registration) {
	if reg.isReentrant(b.defaultReentrant.Load()) {
		if entry, ok := reg.mailbox.Pop(); ok {
			b.deliverEntry(reg, entry)
		}
		return
	}

	for reg.mailbox.TryLock() {
		b.drain(reg)
		// An entry pushed after the last pop saw the lock held; its task gave up.
		if reg.mailbox.Len() == 0 {
			return
		}
	}
}

func (b *Broker) drain(reg *registration) {
	defer reg.mailbox.Unlock()
	for {
		entry, ok := reg.mailbox.Pop()
		if !ok {
			return
		}
		b.deliverEntry(reg, entry)
	}
}

func (b *Broker) deliverEntry(reg *registration, entry delivery.Entry[pending]) {
	if !entry.Token.Start() {
		return
	}
	defer entry.Token.Complete()
	b.deliver(entry.Event.ctx, reg, entry.Event.evt)
}

// deliver runs one handler for evt: filter, invoke, log, observe.
func (b *Broker) deliver(ctx context.Context, reg *registration, evt *Event) delivery.Result {
	if reg.removed.Load() {
		return delivery.Result{Outcome: delivery.Cancelled}
	}

	f, err := reg.compiledFilter()
	if err != nil {
		b.dropBrokenFilter(ctx, reg, err)
		return delivery.Result{Outcome: delivery.Dropped, Err: err}
	}
	if !f.Match(evt) {
		res := delivery.Result{Outcome: delivery.Filtered}
		b.observer.EventDelivered(evt.TopicName(), reg.subscriber, res)
		return res
	}

	hctx := WithCurrentEvent(ctx, evt)
	res := delivery.Invoke(func() error {
		return reg.handler.HandleEvent(hctx, evt)
	})

	switch res.Outcome {
	case delivery.Failed:
		b.logger.ErrorContext(ctx, "handler failed",
			slogx.Topic(evt.TopicName()),
			slogx.Subscriber(reg.subscriber),
			slogx.EventID(evt.ID()),
			slogx.Error(res.Err),
		)
	case delivery.Panicked:
		b.logger.ErrorContext(ctx, "handler panicked",
			slogx.Topic(evt.TopicName()),
			slogx.Subscriber(reg.subscriber),
			slogx.EventID(evt.ID()),
			slogx.Panic(res.PanicValue, res.PanicStack),
		)
	}
	b.observer.EventDelivered(evt.TopicName(), reg.subscriber, res)
	return res
}

func (b *Broker) dropBrokenFilter(ctx context.Context, reg *registration, err error) {
	if !b.unregisterIf(reg) {
		return
	}
	b.observer.RegistrationRemoved(reg.subscriber, err)
	b.logger.WarnContext(ctx, "removed registration with invalid filter",
		slogx.Subscriber(reg.subscriber),
		slog.String("filter", reg.filterExpr),
		slogx.Error(err),
	)
}
