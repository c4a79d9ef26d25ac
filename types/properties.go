// Package types provides core type definitions shared by the broker and its collaborators.
package types

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/casualjim/strix/pkg/jsonx"
	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties is the ordered property bag carried by an event.
// Keys keep their insertion order, which is also the order used when the
// bag is rendered as JSON.
//
// Example usage:
//
//	props := types.NewProperties().
//	    With("order_id", "o-123").
//	    With("total", 99.5)
//
// Thread Safety:
// Properties is not safe for concurrent modification. Concurrent readers are
// fine once writers are done, which is how events use it: the bag is written by
// the event's creator and only read after the event is published.
type Properties struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewProperties creates an empty property bag.
func NewProperties() *Properties {
	return &Properties{m: orderedmap.New[string, any]()}
}

// FromMap builds a property bag from a plain map. Keys are inserted in
// sorted order so the result is deterministic.
func FromMap(values map[string]any) *Properties {
	p := &Properties{m: orderedmap.New[string, any](len(values))}
	for _, k := range slices.Sorted(maps.Keys(values)) {
		p.m.Set(k, values[k])
	}
	return p
}

// FromStruct builds a property bag from the JSON rendering of v, typically
// a payload struct. Field names follow the json tags of v; numbers become
// float64 and nested objects map[string]any.
func FromStruct(v any) (*Properties, error) {
	values, err := jsonx.ToDynamicJSON(v)
	if err != nil {
		return nil, fmt.Errorf("properties from %T: %w", v, err)
	}
	return FromMap(values), nil
}

// With sets key to value and returns the bag for chaining.
func (p *Properties) With(key string, value any) *Properties {
	p.Set(key, value)
	return p
}

// Set stores value under key, returning the previous value when one existed.
func (p *Properties) Set(key string, value any) (any, bool) {
	p.init()
	return p.m.Set(key, value)
}

// Get returns the value stored under key.
func (p *Properties) Get(key string) (any, bool) {
	if p == nil || p.m == nil {
		return nil, false
	}
	return p.m.Get(key)
}

// Delete removes key and returns the value it held.
func (p *Properties) Delete(key string) (any, bool) {
	if p == nil || p.m == nil {
		return nil, false
	}
	return p.m.Delete(key)
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil || p.m == nil {
		return 0
	}
	return p.m.Len()
}

// Keys iterates the property names in insertion order.
func (p *Properties) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for k := range p.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// All iterates the properties in insertion order.
func (p *Properties) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if p == nil || p.m == nil {
			return
		}
		for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Clone returns a shallow copy of the bag that preserves key order.
func (p *Properties) Clone() *Properties {
	c := &Properties{m: orderedmap.New[string, any](p.Len())}
	for k, v := range p.All() {
		c.m.Set(k, v)
	}
	return c
}

// Map copies the properties into a plain map.
func (p *Properties) Map() map[string]any {
	out := make(map[string]any, p.Len())
	for k, v := range p.All() {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the bag as a JSON object in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	if p == nil || p.m == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

// UnmarshalJSON fills the bag from a JSON object, keeping document order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	p.init()
	return p.m.UnmarshalJSON(data)
}

// String returns a JSON string representation of the properties.
// If marshaling fails, it returns an empty string.
func (p *Properties) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(b)
}

func (p *Properties) init() {
	if p.m == nil {
		p.m = orderedmap.New[string, any]()
	}
}
