package strix

import (
	"github.com/casualjim/strix/internal/locals"
	"github.com/casualjim/strix/pkg/stdx"
)

// Slots maps event-local key names to storage slots. It only grows: events
// created earlier may still hold values in any slot handed out.
//
// A broker owns one Slots table (see WithSlots); keys created from the same
// table can be used with every event of that broker.
type Slots struct {
	reg *locals.Registry
}

// NewSlots creates an empty slot table.
func NewSlots() *Slots {
	return &Slots{reg: locals.NewRegistry()}
}

// Reserve returns the slot of name, allocating one on first use.
func (s *Slots) Reserve(name string) int {
	return s.reg.Reserve(name)
}

// Len returns the number of reserved slots.
func (s *Slots) Len() int {
	return s.reg.Len()
}

// Key is a typed handle on an event-local slot.
//
// Local keys live on one event only. Inheritable keys are also visible to
// the event's descendants: a child reads the value of its closest ancestor
// until it writes its own, and its writes never reach the ancestors.
type Key[T any] struct {
	name        string
	slot        int
	def         T
	inheritable bool
}

// LocalKey reserves a non-inheritable key in slots.
func LocalKey[T any](slots *Slots, name string, def T) Key[T] {
	return Key[T]{name: name, slot: slots.Reserve(name), def: def}
}

// InheritableKey reserves a key whose values flow from parents to children.
func InheritableKey[T any](slots *Slots, name string, def T) Key[T] {
	return Key[T]{name: name, slot: slots.Reserve(name), def: def, inheritable: true}
}

// Name returns the key name.
func (k Key[T]) Name() string {
	return k.name
}

// Inheritable reports whether descendants see the key's values.
func (k Key[T]) Inheritable() bool {
	return k.inheritable
}

// Default returns the value Get falls back to.
func (k Key[T]) Default() T {
	return k.def
}

// Get returns the key's value on evt, or the default.
func (k Key[T]) Get(evt *Event) T {
	v, _ := k.Lookup(evt)
	return v
}

// Lookup returns the key's value on evt and whether one was found. A stored
// value of another type counts as absent.
func (k Key[T]) Lookup(evt *Event) (T, bool) {
	var (
		raw any
		ok  bool
	)
	if store := k.store(evt, false); store != nil {
		raw, ok = store.Get(k.slot)
	}
	if !ok {
		return k.def, false
	}
	if raw == nil {
		return stdx.Zero[T](), true
	}
	v, ok := raw.(T)
	if !ok {
		return k.def, false
	}
	return v, true
}

// Set writes v on evt. The write is visible on evt and, for inheritable
// keys, on descendants that did not override it.
func (k Key[T]) Set(evt *Event, v T) {
	k.store(evt, true).Set(k.slot, v)
}

// Remove clears the value written on evt itself and returns it. Afterwards
// an inheritable key resolves through the ancestors again.
func (k Key[T]) Remove(evt *Event) (T, bool) {
	store := k.store(evt, false)
	if store == nil {
		return k.def, false
	}
	raw, ok := store.Remove(k.slot)
	if !ok {
		return k.def, false
	}
	v, _ := stdx.As[T](raw)
	return v, true
}

func (k Key[T]) store(evt *Event, create bool) *locals.Store {
	if k.inheritable {
		if create {
			return evt.inheritable()
		}
		return evt.peekInheritable()
	}
	return evt.localStore(create)
}
