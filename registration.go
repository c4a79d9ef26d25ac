package strix

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/casualjim/strix/internal/delivery"
	"github.com/casualjim/strix/internal/filter"
	"github.com/fogfish/opts"
)

// Handler receives events. A returned error is logged together with the
// subscriber identity and never reaches the publisher.
//
// The context carries the event being handled as its current event, so
// events published with it become children of evt.
type Handler interface {
	HandleEvent(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt *Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// Subscription collects the options of a registration.
type Subscription struct {
	topics    []string
	filter    string
	reentrant *bool
	rank      int
}

var (
	// Filter sets an LDAP style filter expression evaluated against event
	// properties, for example "(&(kind=order)(total>=100))". The expression
	// is compiled on first delivery; a broken expression removes the
	// registration.
	Filter = opts.ForName[Subscription, string]("filter")
	// Rank sets the delivery priority. Higher ranks are delivered first; equal
	// ranks in registration order.
	Rank = opts.ForName[Subscription, int]("rank")
)

// Topics adds topic patterns: exact topic names, "prefix/*" or "*".
// Malformed patterns are ignored.
func Topics(pattern string, extra ...string) opts.Option[Subscription] {
	return opts.Type[Subscription](func(s *Subscription) error {
		s.topics = append(s.topics, pattern)
		s.topics = append(s.topics, extra...)
		return nil
	})
}

// Reentrant declares whether deliveries to the handler may overlap. Without
// it the broker's default applies at delivery time.
func Reentrant(reentrant bool) opts.Option[Subscription] {
	return opts.Type[Subscription](func(s *Subscription) error {
		s.reentrant = &reentrant
		return nil
	})
}

// pending is one queued asynchronous delivery.
type pending struct {
	ctx context.Context
	evt *Event
}

type registration struct {
	subscriber string
	seq        int64
	rank       int
	reentrant  *bool
	patterns   []string
	handler    Handler
	mailbox    *delivery.Mailbox[pending]
	removed    atomic.Bool

	filterExpr string
	filterOnce sync.Once
	filter     *filter.Filter
	filterErr  error
}

func (r *registration) Rank() int  { return r.rank }
func (r *registration) Seq() int64 { return r.seq }

func (r *registration) isReentrant(def bool) bool {
	if r.reentrant == nil {
		return def
	}
	return *r.reentrant
}

func (r *registration) compiledFilter() (*filter.Filter, error) {
	if r.filterExpr == "" {
		return nil, nil
	}
	r.filterOnce.Do(func() {
		r.filter, r.filterErr = filter.Compile(r.filterExpr)
	})
	return r.filter, r.filterErr
}

// RegistrationInfo describes a live registration.
type RegistrationInfo struct {
	Subscriber string
	Topics     []string
	Filter     string
	Rank       int
	// Reentrant is nil when the broker default applies.
	Reentrant *bool
	// Queued is the number of asynchronous deliveries waiting for the handler.
	Queued int
}

func (r *registration) info() RegistrationInfo {
	return RegistrationInfo{
		Subscriber: r.subscriber,
		Topics:     append([]string(nil), r.patterns...),
		Filter:     r.filterExpr,
		Rank:       r.rank,
		Reentrant:  r.reentrant,
		Queued:     r.mailbox.Len(),
	}
}
