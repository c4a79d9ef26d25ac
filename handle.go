package strix

import (
	"context"
	"sync"

	"github.com/casualjim/strix/internal/executor"
)

// EventHandle tracks the deliveries of one publish or post. For a
// synchronous publish it is done on return.
type EventHandle struct {
	event  *Event
	tokens []*executor.Token

	once sync.Once
	done chan struct{}
}

func newHandle(evt *Event, tokens []*executor.Token) *EventHandle {
	return &EventHandle{event: evt, tokens: tokens}
}

func completedHandle(evt *Event) *EventHandle {
	h := &EventHandle{event: evt, done: make(chan struct{})}
	h.once.Do(func() { close(h.done) })
	return h
}

// Event returns the published event.
func (h *EventHandle) Event() *Event {
	return h.event
}

// Deliveries returns the number of handler deliveries the handle tracks.
func (h *EventHandle) Deliveries() int {
	return len(h.tokens)
}

// Wait blocks until every delivery finished or was cancelled, or ctx is done.
func (h *EventHandle) Wait(ctx context.Context) error {
	for _, tok := range h.tokens {
		if err := tok.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Done returns a channel closed once every delivery finished or was cancelled.
func (h *EventHandle) Done() <-chan struct{} {
	h.once.Do(func() {
		h.done = make(chan struct{})
		go func() {
			for _, tok := range h.tokens {
				<-tok.Done()
			}
			close(h.done)
		}()
	})
	return h.done
}

// IsDone reports whether every delivery finished or was cancelled.
func (h *EventHandle) IsDone() bool {
	for _, tok := range h.tokens {
		if !tok.State().Terminal() {
			return false
		}
	}
	return true
}

// Cancel cancels the deliveries that have not started yet and returns how
// many it cancelled. Deliveries already running are not interrupted.
func (h *EventHandle) Cancel() int {
	n := 0
	for _, tok := range h.tokens {
		if tok.Cancel() {
			n++
		}
	}
	return n
}

// Counts returns the number of deliveries per token state.
func (h *EventHandle) Counts() map[string]int {
	out := make(map[string]int, len(h.tokens))
	for _, tok := range h.tokens {
		out[tok.State().String()]++
	}
	return out
}
