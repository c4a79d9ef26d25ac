package strix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/strix/internal/delivery"
	"github.com/casualjim/strix/internal/executor"
	"github.com/casualjim/strix/internal/registry"
	"github.com/casualjim/strix/internal/topic"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/casualjim/strix/types"
	"github.com/facebookgo/clock"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

// DefaultStage is the stage topics are delivered on when no mapping matches
// and no other default was configured. Unless another executor is bound to
// it, deliveries on this stage run on their own goroutines.
const DefaultStage = "default"

type resolution = topic.Resolution[*registration, Executor]

// Broker routes events from publishers to registered handlers.
//
// Synchronous publishes run every handler on the calling goroutine, in
// priority order. Asynchronous posts queue the event in each handler's
// mailbox and submit one delivery task per handler to the executor of the
// topic's stage. Deliveries to a non-reentrant handler never overlap and
// arrive in the order they were queued.
type Broker struct {
	logger       *slog.Logger
	slots        *Slots
	authorizer   Authorizer
	stages       StageResolver
	observer     Observer
	clock        clock.Clock
	defaultStage string
	mappings     [][2]string

	defaultReentrant atomic.Bool
	closed           atomic.Bool

	index       *topic.Registry[*registration, Executor]
	subscribers *haxmap.Map[string, *registration]
	topics      *haxmap.Map[string, *Topic]
	bound       registry.Registry[Executor]
	pools       registry.Registry[*executor.Pool]

	regMu sync.Mutex
	seq   atomic.Int64

	scheduler *scheduler
}

// NewBroker creates a broker.
func NewBroker(options ...opts.Option[Broker]) *Broker {
	b := &Broker{
		logger:       slog.Default(),
		observer:     NopObserver{},
		clock:        clock.New(),
		defaultStage: DefaultStage,
		subscribers:  haxmap.New[string, *registration](),
		topics:       haxmap.New[string, *Topic](),
		bound:        registry.New[Executor](),
		pools:        registry.New[*executor.Pool](),
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}
	if b.slots == nil {
		b.slots = NewSlots()
	}
	if b.observer == nil {
		b.observer = NopObserver{}
	}
	b.logger = b.logger.With(slogx.LoggerName("strix.broker"))

	b.index = topic.New(
		topic.WithDefaultStage[*registration, Executor](b.defaultStage),
		topic.WithExecutors[*registration](b.executorFor),
	)
	for _, m := range b.mappings {
		if !b.index.SetStageMapping(m[0], m[1]) {
			b.logger.Warn("ignoring invalid stage mapping", slog.String("pattern", m[0]), slogx.Stage(m[1]))
		}
	}
	b.mappings = nil
	b.scheduler = newScheduler(b)
	return b
}

// Slots returns the slot table for event-local keys.
func (b *Broker) Slots() *Slots {
	return b.slots
}

func (b *Broker) executorFor(stage string) (Executor, bool) {
	if x, ok := b.bound.Get(stage); ok && x != nil {
		return x, true
	}
	if b.stages != nil {
		if x := b.stages.ExecutorFor(stage); x != nil {
			return x, true
		}
	}
	if stage == DefaultStage {
		return executor.Go{}, true
	}
	return nil, false
}

// Create returns a new, unpublished event on t.
func (b *Broker) Create(t *Topic) *Event {
	return newEvent(uuidx.New(), t, strfmt.DateTime(b.clock.Now()))
}

// CreateTopic is Create for a topic name.
func (b *Broker) CreateTopic(name string) (*Event, error) {
	t, err := b.Topic(name)
	if err != nil {
		return nil, err
	}
	return b.Create(t), nil
}

// Topic returns the shared Topic value for name. Every distinct name is kept
// for the life of the broker; PublishTopic and PostTopic reuse an interned
// value but never add one.
func (b *Broker) Topic(name string) (*Topic, error) {
	if t, ok := b.topics.Get(name); ok {
		return t, nil
	}
	t, err := NewTopic(name)
	if err != nil {
		return nil, err
	}
	t, _ = b.topics.GetOrSet(name, t)
	return t, nil
}

// Register subscribes handler under the subscriber identity. A subscriber
// has at most one registration: registering again replaces the previous
// one, and deliveries still queued for it are cancelled.
func (b *Broker) Register(ctx context.Context, subscriber string, handler Handler, options ...opts.Option[Subscription]) error {
	if b == nil {
		return ErrNotInitialized
	}
	if b.closed.Load() {
		return ErrClosed
	}

	var err error
	if subscriber == "" {
		err = errors.Join(err, ErrInvalidSubscriber)
	}
	if handler == nil {
		err = errors.Join(err, ErrNilHandler)
	}
	if err != nil {
		return err
	}

	var sub Subscription
	if err := opts.Apply(&sub, options); err != nil {
		return fmt.Errorf("register %s: %w", subscriber, err)
	}

	var patterns []string
	for _, p := range sub.topics {
		if !ValidPattern(p) {
			b.logger.WarnContext(ctx, "ignoring invalid topic pattern", slogx.Subscriber(subscriber), slog.String("pattern", p))
			continue
		}
		if !slices.Contains(patterns, p) {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return fmt.Errorf("register %s: %w", subscriber, ErrNoTopics)
	}
	if b.authorizer != nil {
		for _, p := range patterns {
			if !b.authorizer.CanSubscribe(p) {
				return fmt.Errorf("register %s on %q: %w", subscriber, p, ErrSubscribeDenied)
			}
		}
	}

	reg := &registration{
		subscriber: subscriber,
		seq:        b.seq.Add(1),
		rank:       sub.rank,
		reentrant:  sub.reentrant,
		patterns:   patterns,
		handler:    handler,
		mailbox:    delivery.NewMailbox[pending](),
		filterExpr: sub.filter,
	}

	b.regMu.Lock()
	defer b.regMu.Unlock()
	if old, ok := b.subscribers.Get(subscriber); ok {
		b.retireLocked(old)
	}
	b.subscribers.Set(subscriber, reg)
	b.index.Register(reg, patterns...)

	b.logger.DebugContext(ctx, "registered handler",
		slogx.Subscriber(subscriber),
		slog.Any("topics", patterns),
		slog.Int("rank", sub.rank),
	)
	return nil
}

// Update replaces the registration of subscriber. It unregisters first, so
// a failing registration leaves the subscriber unregistered.
func (b *Broker) Update(ctx context.Context, subscriber string, handler Handler, options ...opts.Option[Subscription]) error {
	if b == nil {
		return ErrNotInitialized
	}
	b.Unregister(subscriber)
	return b.Register(ctx, subscriber, handler, options...)
}

// Unregister removes the registration of subscriber. Deliveries still queued
// for it are cancelled. It reports whether a registration existed.
func (b *Broker) Unregister(subscriber string) bool {
	if b == nil {
		return false
	}
	b.regMu.Lock()
	defer b.regMu.Unlock()

	reg, ok := b.subscribers.GetAndDel(subscriber)
	if !ok {
		return false
	}
	b.retireLocked(reg)
	return true
}

// unregisterIf removes reg only while it is still the current registration
// of its subscriber.
func (b *Broker) unregisterIf(reg *registration) bool {
	b.regMu.Lock()
	defer b.regMu.Unlock()

	cur, ok := b.subscribers.Get(reg.subscriber)
	if !ok || cur != reg {
		return false
	}
	b.subscribers.Del(reg.subscriber)
	b.retireLocked(reg)
	return true
}

func (b *Broker) retireLocked(reg *registration) {
	reg.removed.Store(true)
	b.index.Unregister(reg)
	for _, tok := range reg.mailbox.Drain() {
		tok.Cancel()
	}
}

// Registration describes the current registration of subscriber.
func (b *Broker) Registration(subscriber string) (RegistrationInfo, bool) {
	reg, ok := b.subscribers.Get(subscriber)
	if !ok {
		return RegistrationInfo{}, false
	}
	return reg.info(), true
}

// Subscribers returns the identities with a live registration, sorted.
func (b *Broker) Subscribers() []string {
	var out []string
	b.subscribers.ForEach(func(id string, _ *registration) bool {
		out = append(out, id)
		return true
	})
	slices.Sort(out)
	return out
}

// SetDefaultReentrant changes the reentrancy of registrations that do not
// declare their own. It applies to deliveries starting after the call.
func (b *Broker) SetDefaultReentrant(reentrant bool) {
	b.defaultReentrant.Store(reentrant)
	b.index.Invalidate()
}

// DefaultReentrant returns the reentrancy of registrations that do not
// declare their own.
func (b *Broker) DefaultReentrant() bool {
	return b.defaultReentrant.Load()
}

// SetStageMapping routes topics matching pattern to stage. An empty stage
// removes the mapping. It reports false for an invalid pattern.
func (b *Broker) SetStageMapping(pattern, stage string) bool {
	return b.index.SetStageMapping(pattern, stage)
}

// ReplaceStageMappings installs stages, a map from stage name to topic
// patterns, as the complete stage table. Invalid patterns are returned.
func (b *Broker) ReplaceStageMappings(stages map[string][]string) []string {
	return b.index.ReplaceStageMappings(stages)
}

// SetDefaultStage changes the stage for topics without a mapping.
func (b *Broker) SetDefaultStage(stage string) {
	b.index.SetDefaultStage(stage)
}

// StageFor returns the stage topic is delivered on.
func (b *Broker) StageFor(topic string) string {
	return b.index.StageFor(topic)
}

// BindStage binds x to stage. A nil executor removes the binding.
func (b *Broker) BindStage(stage string, x Executor) {
	if x == nil {
		b.bound.Del(stage)
	} else {
		b.bound.Add(stage, x)
	}
	b.index.Invalidate()
}

// StartStage creates a worker pool owned by the broker and binds it to
// stage. A pool previously started for the stage is stopped once the new
// one is bound.
func (b *Broker) StartStage(ctx context.Context, stage string, options ...opts.Option[executor.Pool]) error {
	if b.closed.Load() {
		return ErrClosed
	}
	options = append([]opts.Option[executor.Pool]{executor.Logger(b.logger)}, options...)
	pool := executor.NewPool(stage, options...)
	if err := pool.Start(); err != nil {
		return fmt.Errorf("start stage %s: %w", stage, err)
	}
	old, hadOld := b.pools.Del(stage)
	b.pools.Add(stage, pool)
	b.BindStage(stage, pool)
	if hadOld {
		if err := old.Stop(ctx); err != nil {
			return fmt.Errorf("stop previous pool for stage %s: %w", stage, err)
		}
	}
	return nil
}

// StopStage stops the pool the broker started for stage and unbinds it.
func (b *Broker) StopStage(ctx context.Context, stage string) error {
	pool, ok := b.pools.Del(stage)
	if !ok {
		return nil
	}
	if cur, ok := b.bound.Get(stage); ok && cur == Executor(pool) {
		b.BindStage(stage, nil)
	}
	return pool.Stop(ctx)
}

// OwnedStages returns the stages running on pools started by the broker.
func (b *Broker) OwnedStages() []string {
	return b.pools.Names()
}

// Close stops the scheduler and the pools the broker started. Publishing,
// posting and registering fail with ErrClosed afterwards.
func (b *Broker) Close(ctx context.Context) error {
	if b == nil {
		return ErrNotInitialized
	}
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.scheduler.cancelAll()

	var err error
	for _, stage := range b.pools.Names() {
		if serr := b.StopStage(ctx, stage); serr != nil {
			err = errors.Join(err, fmt.Errorf("stop stage %s: %w", stage, serr))
		}
	}
	return err
}

// PostTopic builds an event on name with props and posts it.
func (b *Broker) PostTopic(ctx context.Context, name string, props *types.Properties) (*EventHandle, error) {
	return b.PostWithParent(ctx, name, props, nil)
}

// PostWithParent builds an event on name with props and parent, and posts
// it. An explicit parent wins over the current event of ctx.
func (b *Broker) PostWithParent(ctx context.Context, name string, props *types.Properties, parent *Event) (*EventHandle, error) {
	evt, err := b.build(name, props, parent)
	if err != nil {
		return nil, err
	}
	return b.Post(ctx, evt)
}

// PublishTopic builds an event on name with props and publishes it
// synchronously.
func (b *Broker) PublishTopic(ctx context.Context, name string, props *types.Properties) (*EventHandle, error) {
	evt, err := b.build(name, props, nil)
	if err != nil {
		return nil, err
	}
	return b.Publish(ctx, evt)
}

func (b *Broker) build(name string, props *types.Properties, parent *Event) (*Event, error) {
	if b == nil {
		return nil, ErrNotInitialized
	}
	// Names are not interned here: publishers may use unbounded topic names.
	t, ok := b.topics.Get(name)
	if !ok {
		var err error
		if t, err = NewTopic(name); err != nil {
			return nil, err
		}
	}
	evt := b.Create(t)
	if props != nil {
		if err := evt.SetAll(props); err != nil {
			return nil, err
		}
	}
	if err := evt.SetParent(parent); err != nil {
		return nil, err
	}
	return evt, nil
}
