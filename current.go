package strix

import "context"

type currentEventKey struct{}

// WithCurrentEvent returns a context in which evt is the current event.
// Events published with that context, and not given a parent explicitly,
// become children of evt. Nesting contexts stacks current events.
func WithCurrentEvent(ctx context.Context, evt *Event) context.Context {
	return context.WithValue(ctx, currentEventKey{}, evt)
}

// CurrentEvent returns the event being handled on ctx, or nil.
func CurrentEvent(ctx context.Context) *Event {
	if ctx == nil {
		return nil
	}
	evt, _ := ctx.Value(currentEventKey{}).(*Event)
	return evt
}
