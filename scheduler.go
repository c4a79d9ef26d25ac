package strix

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/casualjim/strix/types"
	"github.com/facebookgo/clock"
	"github.com/robfig/cron"
)

// ScheduledHandle controls a scheduled post.
type ScheduledHandle struct {
	id     string
	parent *Event
	next   func(now time.Time) (time.Duration, bool)

	mu        sync.Mutex
	timer     *clock.Timer
	cancelled bool
	finished  bool
	done      chan struct{}
	release   func()
	fired     atomic.Int64
}

// Cancel stops future firings. It reports false when the schedule already
// finished or was cancelled. A firing in progress is not interrupted.
func (h *ScheduledHandle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.finished {
		return false
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.close()
	return true
}

// Done is closed once the schedule finished or was cancelled.
func (h *ScheduledHandle) Done() <-chan struct{} {
	return h.done
}

// Fired returns how many times the schedule posted.
func (h *ScheduledHandle) Fired() int64 {
	return h.fired.Load()
}

// Parent returns the event captured as the parent of every posted event.
func (h *ScheduledHandle) Parent() *Event {
	return h.parent
}

func (h *ScheduledHandle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.finished {
		return
	}
	h.finished = true
	h.close()
}

func (h *ScheduledHandle) close() {
	close(h.done)
	if h.release != nil {
		h.release()
	}
}

type scheduler struct {
	broker  *Broker
	logger  *slog.Logger
	handles *haxmap.Map[string, *ScheduledHandle]
}

func newScheduler(b *Broker) *scheduler {
	return &scheduler{
		broker:  b,
		logger:  b.logger.With(slogx.LoggerName("strix.scheduler")),
		handles: haxmap.New[string, *ScheduledHandle](),
	}
}

// Schedule posts an event on name once, after delay. The current event of
// ctx becomes the parent of the posted event.
func (b *Broker) Schedule(ctx context.Context, name string, props *types.Properties, delay time.Duration) (*ScheduledHandle, error) {
	return b.schedule(ctx, name, props, delay, func(time.Time) (time.Duration, bool) {
		return 0, false
	})
}

// Every posts an event on name every interval, starting one interval from
// now. Every firing uses the parent captured from ctx at scheduling time.
func (b *Broker) Every(ctx context.Context, name string, props *types.Properties, interval time.Duration) (*ScheduledHandle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("every %s: interval must be positive", name)
	}
	return b.schedule(ctx, name, props, interval, func(time.Time) (time.Duration, bool) {
		return interval, true
	})
}

// Cron posts an event on name at the times described by a cron expression,
// for example "0 */5 * * * *" or "@hourly".
func (b *Broker) Cron(ctx context.Context, name string, props *types.Properties, spec string) (*ScheduledHandle, error) {
	sched, err := cron.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("cron %s %q: %w", name, spec, err)
	}
	next := func(now time.Time) (time.Duration, bool) {
		at := sched.Next(now)
		if at.IsZero() {
			return 0, false
		}
		return at.Sub(now), true
	}
	var first time.Duration
	if b != nil {
		var ok bool
		if first, ok = next(b.clock.Now()); !ok {
			return nil, fmt.Errorf("cron %s %q: schedule never fires", name, spec)
		}
	}
	return b.schedule(ctx, name, props, first, next)
}

func (b *Broker) schedule(ctx context.Context, name string, props *types.Properties, first time.Duration, next func(time.Time) (time.Duration, bool)) (*ScheduledHandle, error) {
	if b == nil {
		return nil, ErrNotInitialized
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if _, err := b.Topic(name); err != nil {
		return nil, err
	}

	h := &ScheduledHandle{
		id:     uuidx.NewString(),
		parent: CurrentEvent(ctx),
		next:   next,
		done:   make(chan struct{}),
	}
	// Values of the scheduling context survive, its cancellation does not:
	// the handle controls the lifetime.
	pctx := context.WithoutCancel(ctx)
	props = props.Clone()

	s := b.scheduler
	h.release = func() { s.handles.Del(h.id) }
	s.handles.Set(h.id, h)
	s.arm(h, first, func() { s.fire(pctx, h, name, props) })
	return h, nil
}

func (s *scheduler) arm(h *ScheduledHandle, delay time.Duration, fire func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.finished {
		return
	}
	h.timer = s.broker.clock.AfterFunc(delay, fire)
}

func (s *scheduler) fire(ctx context.Context, h *ScheduledHandle, name string, props *types.Properties) {
	h.mu.Lock()
	stop := h.cancelled || h.finished
	h.mu.Unlock()
	if stop {
		return
	}

	s.post(ctx, h, name, props)
	h.fired.Add(1)

	delay, again := h.next(s.broker.clock.Now())
	if !again {
		h.finish()
		return
	}
	s.arm(h, delay, func() { s.fire(ctx, h, name, props) })
}

// post never lets a failure escape into the timer.
func (s *scheduler) post(ctx context.Context, h *ScheduledHandle, name string, props *types.Properties) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "scheduled post panicked",
				slogx.Topic(name),
				slogx.Panic(r, debug.Stack()),
			)
		}
	}()

	if _, err := s.broker.PostWithParent(ctx, name, props.Clone(), h.parent); err != nil {
		s.logger.WarnContext(ctx, "scheduled post failed",
			slogx.Topic(name),
			slog.String("schedule", h.id),
			slogx.Error(err),
		)
	}
}

func (s *scheduler) cancelAll() {
	var active []*ScheduledHandle
	s.handles.ForEach(func(_ string, h *ScheduledHandle) bool {
		active = append(active, h)
		return true
	})
	for _, h := range active {
		h.Cancel()
	}
}

// Scheduled returns the number of schedules that are still active.
func (b *Broker) Scheduled() int {
	return int(b.scheduler.handles.Len())
}
