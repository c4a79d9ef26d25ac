package strix

import (
	"fmt"
	"sync/atomic"

	"github.com/casualjim/strix/internal/topic"
)

// Topic is a validated, slash-delimited topic name. A Topic remembers the
// last resolution computed for it, so publishing repeatedly through the same
// Topic value skips the cache lookup until the registry changes.
type Topic struct {
	name       string
	resolution atomic.Pointer[resolution]
}

// NewTopic validates name and returns a Topic for it.
func NewTopic(name string) (*Topic, error) {
	if !topic.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, name)
	}
	return &Topic{name: name}, nil
}

// MustTopic is like NewTopic but panics on an invalid name.
func MustTopic(name string) *Topic {
	t, err := NewTopic(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the topic name.
func (t *Topic) Name() string {
	return t.name
}

func (t *Topic) String() string {
	return t.name
}

// ValidPattern reports whether pattern is usable in a registration or a
// stage mapping.
func ValidPattern(pattern string) bool {
	kind, _ := topic.Parse(pattern)
	return kind != topic.Invalid
}
