// Package locals implements the chained key/value storage attached to events.
//
// Keys are mapped to dense integer slots by a Registry. Each Store is a
// two-level sparse table indexed by slot, optionally overlaying a parent Store:
// a miss in a child falls through to the parent chain, and writes always stay
// in the child.
package locals

import (
	"sync"

	"github.com/alphadose/haxmap"
)

// Registry hands out slots for key names. Slots are dense, start at zero and
// are never reused: events created earlier may still hold values in them.
type Registry struct {
	mu    sync.Mutex
	slots *haxmap.Map[string, int]
	next  int
}

// NewRegistry creates an empty slot registry.
func NewRegistry() *Registry {
	return &Registry{
		slots: haxmap.New[string, int](),
	}
}

// Reserve returns the slot for name, allocating the next free one on first use.
func (r *Registry) Reserve(name string) int {
	if slot, ok := r.slots.Get(name); ok {
		return slot
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots.Get(name); ok {
		return slot
	}
	slot := r.next
	r.next++
	r.slots.Set(name, slot)
	return slot
}

// Lookup returns the slot previously reserved for name.
func (r *Registry) Lookup(name string) (int, bool) {
	return r.slots.Get(name)
}

// Len returns the number of reserved slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}
