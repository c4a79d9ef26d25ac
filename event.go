package strix

import (
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/casualjim/strix/internal/locals"
	"github.com/casualjim/strix/types"
	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// Event is a message published on a topic. An event is mutable until it is
// published or posted; from then on its properties are read-only and any
// number of handlers may read it concurrently.
//
// Event-local storage (see LocalKey and InheritableKey) is not part of the
// read-only state: handlers may keep writing to it after publish.
type Event struct {
	id        uuid.UUID
	topic     *Topic
	timestamp strfmt.DateTime

	mu       sync.RWMutex
	props    *types.Properties
	parent   *Event
	locals   *locals.Store
	inherit  *locals.Store
	readOnly atomic.Bool

	handle atomic.Pointer[EventHandle]
}

func newEvent(id uuid.UUID, t *Topic, ts strfmt.DateTime) *Event {
	return &Event{
		id:        id,
		topic:     t,
		timestamp: ts,
		props:     types.NewProperties(),
	}
}

// ID returns the event id, a version 7 UUID.
func (e *Event) ID() uuid.UUID {
	return e.id
}

// Topic returns the topic the event is published on.
func (e *Event) Topic() *Topic {
	return e.topic
}

// TopicName returns the name of the event's topic.
func (e *Event) TopicName() string {
	return e.topic.Name()
}

// Timestamp returns the creation time of the event.
func (e *Event) Timestamp() strfmt.DateTime {
	return e.timestamp
}

// ReadOnly reports whether the event was published.
func (e *Event) ReadOnly() bool {
	return e.readOnly.Load()
}

// Handle returns the completion handle of the last publish of the event, or
// nil when it was never published.
func (e *Event) Handle() *EventHandle {
	return e.handle.Load()
}

// Get returns a property value.
func (e *Event) Get(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.props.Get(key)
}

// Property returns a property value, or nil when it is absent.
func (e *Event) Property(key string) any {
	v, _ := e.Get(key)
	return v
}

// Properties returns a copy of the property bag.
func (e *Event) Properties() *types.Properties {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.props.Clone()
}

// Set stores a property. It fails with ErrReadOnly once the event is published.
func (e *Event) Set(key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly.Load() {
		return fmt.Errorf("set %q: %w", key, ErrReadOnly)
	}
	e.props.Set(key, value)
	return nil
}

// SetAll stores every property of props, in order.
func (e *Event) SetAll(props *types.Properties) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly.Load() {
		return fmt.Errorf("set properties: %w", ErrReadOnly)
	}
	for k, v := range props.All() {
		e.props.Set(k, v)
	}
	return nil
}

// Delete removes a property. It fails with ErrReadOnly once the event is published.
func (e *Event) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly.Load() {
		return fmt.Errorf("delete %q: %w", key, ErrReadOnly)
	}
	e.props.Delete(key)
	return nil
}

func (e *Event) seal() {
	e.mu.Lock()
	e.readOnly.Store(true)
	e.mu.Unlock()
}

// Parent returns the event that caused this one, or nil.
func (e *Event) Parent() *Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parent
}

// Ancestors yields the parent chain, nearest first.
func (e *Event) Ancestors() iter.Seq[*Event] {
	return func(yield func(*Event) bool) {
		for p := e.Parent(); p != nil; p = p.Parent() {
			if !yield(p) {
				return
			}
		}
	}
}

// SetParent attaches p as the parent of an unpublished event. An event has
// at most one parent and never becomes its own ancestor.
func (e *Event) SetParent(p *Event) error {
	if e.readOnly.Load() {
		return fmt.Errorf("set parent: %w", ErrReadOnly)
	}
	return e.attachParent(p)
}

func (e *Event) attachParent(p *Event) error {
	if p == nil {
		return nil
	}
	if p == e {
		return ErrCycle
	}
	for a := range p.Ancestors() {
		if a == e {
			return ErrCycle
		}
	}

	e.mu.Lock()
	if e.parent != nil {
		same := e.parent == p
		e.mu.Unlock()
		if same {
			return nil
		}
		return ErrParentSet
	}
	e.parent = p
	own := e.inherit
	e.mu.Unlock()

	// Inheritable values written before the parent was known overlay the
	// parent's store from now on.
	if own != nil {
		own.Link(p.inheritable())
	}
	return nil
}

func (e *Event) localStore(create bool) *locals.Store {
	e.mu.RLock()
	s := e.locals
	e.mu.RUnlock()
	if s != nil || !create {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locals == nil {
		e.locals = locals.NewStore(nil)
	}
	return e.locals
}

// inheritable returns the event's inheritable store, creating it on first
// use as an overlay of the parent's current store.
func (e *Event) inheritable() *locals.Store {
	e.mu.RLock()
	s, parent := e.inherit, e.parent
	e.mu.RUnlock()
	if s != nil {
		return s
	}

	var base *locals.Store
	if parent != nil {
		base = parent.inheritable()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inherit == nil {
		e.inherit = locals.NewStore(base)
	}
	return e.inherit
}

// peekInheritable returns the inheritable store without creating one for a
// parentless event.
func (e *Event) peekInheritable() *locals.Store {
	e.mu.RLock()
	s, parent := e.inherit, e.parent
	e.mu.RUnlock()
	if s == nil && parent == nil {
		return nil
	}
	return e.inheritable()
}

func (e *Event) String() string {
	return fmt.Sprintf("Event{id=%s, topic=%s}", e.id, e.topic)
}

// MarshalJSON renders the event envelope: id, topic, timestamp, parent id
// and the ordered properties.
func (e *Event) MarshalJSON() ([]byte, error) {
	e.mu.RLock()
	props, parent := e.props, e.parent
	e.mu.RUnlock()

	doc := []byte(`{}`)
	var err error
	if doc, err = sjson.SetBytes(doc, "id", e.id.String()); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "topic", e.topic.Name()); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "timestamp", e.timestamp.String()); err != nil {
		return nil, err
	}
	if parent != nil {
		if doc, err = sjson.SetBytes(doc, "parent", parent.id.String()); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetBytes(doc, "read_only", e.readOnly.Load()); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return sjson.SetRawBytes(doc, "properties", raw)
}
