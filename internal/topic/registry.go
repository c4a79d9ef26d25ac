package topic

import (
	"cmp"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
)

// Entry is a registered interest. Entries are compared by identity and
// ordered by descending Rank, then ascending Seq.
type Entry interface {
	comparable
	Rank() int
	Seq() int64
}

// Resolution is the handler list and stage computed for one topic string.
type Resolution[H Entry, X any] struct {
	Topic    string
	Handlers []H
	Stage    string
	Executor X
	// Bound is false when no executor was bound to Stage at resolution time.
	Bound bool

	stale atomic.Bool
}

// Stale reports whether a registry mutation happened after the resolution was
// built. Stale resolutions must not be reused.
func (r *Resolution[H, X]) Stale() bool {
	return r == nil || r.stale.Load()
}

// Option configures a Registry.
type Option[H Entry, X any] func(*Registry[H, X])

// WithDefaultStage sets the stage used when no mapping matches a topic.
func WithDefaultStage[H Entry, X any](stage string) Option[H, X] {
	return func(r *Registry[H, X]) { r.defaultStage = stage }
}

// WithExecutors sets the lookup turning a stage name into an executor.
func WithExecutors[H Entry, X any](lookup func(stage string) (X, bool)) Option[H, X] {
	return func(r *Registry[H, X]) { r.executors = lookup }
}

// Registry is the topic index. Mutations take the exclusive lock and clear
// the resolution cache before releasing it. Resolutions are built under the
// shared lock, so a resolution never mixes index states.
type Registry[H Entry, X any] struct {
	mu sync.RWMutex

	discrete map[string][]H
	prefixes map[string][]H
	patterns map[H][]string

	stageTopics   map[string]string
	stagePrefixes map[string]string
	defaultStage  string
	executors     func(stage string) (X, bool)

	fill  sync.Mutex
	cache *haxmap.Map[string, *Resolution[H, X]]
}

// New creates an empty registry.
func New[H Entry, X any](opts ...Option[H, X]) *Registry[H, X] {
	r := &Registry[H, X]{
		discrete:      make(map[string][]H),
		prefixes:      make(map[string][]H),
		patterns:      make(map[H][]string),
		stageTopics:   make(map[string]string),
		stagePrefixes: make(map[string]string),
		cache:         haxmap.New[string, *Resolution[H, X]](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds h under every valid pattern and returns the patterns that
// were accepted. Invalid patterns are skipped. Registering the same entry
// twice for a pattern has no effect.
func (r *Registry[H, X]) Register(h H, patterns ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var accepted []string
	for _, p := range patterns {
		kind, key := Parse(p)
		if kind == Invalid {
			continue
		}
		if slices.Contains(r.patterns[h], p) {
			continue
		}
		idx := r.index(kind)
		idx[key] = append(idx[key], h)
		r.patterns[h] = append(r.patterns[h], p)
		accepted = append(accepted, p)
	}
	if len(accepted) > 0 {
		r.invalidateLocked()
	}
	return accepted
}

// Unregister removes h from every pattern. It reports whether h was registered.
func (r *Registry[H, X]) Unregister(h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	patterns, ok := r.patterns[h]
	if !ok {
		return false
	}
	for _, p := range patterns {
		kind, key := Parse(p)
		idx := r.index(kind)
		remaining := slices.DeleteFunc(idx[key], func(e H) bool { return e == h })
		if len(remaining) == 0 {
			delete(idx, key)
		} else {
			idx[key] = remaining
		}
	}
	delete(r.patterns, h)
	r.invalidateLocked()
	return true
}

// Patterns returns the patterns h is registered under.
func (r *Registry[H, X]) Patterns(h H) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.patterns[h])
}

// Len returns the number of registered entries.
func (r *Registry[H, X]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}

func (r *Registry[H, X]) index(kind Kind) map[string][]H {
	if kind == Prefix {
		return r.prefixes
	}
	return r.discrete
}

// Resolve returns the resolution for topic, building and caching it on a miss.
func (r *Registry[H, X]) Resolve(topic string) *Resolution[H, X] {
	if res, ok := r.cache.Get(topic); ok && !res.Stale() {
		return res
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Concurrent misses must agree on one cached value: a resolution that
	// loses the race is not in the cache and would never be marked stale.
	r.fill.Lock()
	defer r.fill.Unlock()
	if res, ok := r.cache.Get(topic); ok && !res.Stale() {
		return res
	}

	res := r.build(topic)
	// Stored under the shared lock: a concurrent mutation waits for us and
	// then clears this entry along with the rest.
	r.cache.Set(topic, res)
	return res
}

func (r *Registry[H, X]) build(topic string) *Resolution[H, X] {
	res := &Resolution[H, X]{Topic: topic}

	seen := make(map[H]struct{})
	add := func(hs []H) {
		for _, h := range hs {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			res.Handlers = append(res.Handlers, h)
		}
	}
	add(r.discrete[topic])
	for _, prefix := range Prefixes(topic) {
		add(r.prefixes[prefix])
	}
	slices.SortFunc(res.Handlers, func(a, b H) int {
		if c := cmp.Compare(b.Rank(), a.Rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq(), b.Seq())
	})

	res.Stage = r.stageLocked(topic)
	if r.executors != nil && res.Stage != "" {
		res.Executor, res.Bound = r.executors(res.Stage)
	}
	return res
}

// SetStageMapping binds pattern to stage. An empty stage removes the mapping.
// It reports false for an invalid pattern.
func (r *Registry[H, X]) SetStageMapping(pattern, stage string) bool {
	kind, key := Parse(pattern)
	if kind == Invalid {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStageLocked(kind, key, stage)
	r.invalidateLocked()
	return true
}

// ReplaceStageMappings swaps the whole stage table for stages, a map from
// stage name to the patterns it serves. Invalid patterns are skipped and
// returned.
func (r *Registry[H, X]) ReplaceStageMappings(stages map[string][]string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.stageTopics)
	clear(r.stagePrefixes)

	var rejected []string
	names := slices.Sorted(maps.Keys(stages))
	for _, stage := range names {
		for _, pattern := range stages[stage] {
			kind, key := Parse(pattern)
			if kind == Invalid || stage == "" {
				rejected = append(rejected, pattern)
				continue
			}
			r.setStageLocked(kind, key, stage)
		}
	}
	r.invalidateLocked()
	return rejected
}

func (r *Registry[H, X]) setStageLocked(kind Kind, key, stage string) {
	table := r.stageTopics
	if kind == Prefix {
		table = r.stagePrefixes
	}
	if stage == "" {
		delete(table, key)
		return
	}
	table[key] = stage
}

// SetDefaultStage changes the stage used when no mapping matches.
func (r *Registry[H, X]) SetDefaultStage(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultStage = stage
	r.invalidateLocked()
}

// DefaultStage returns the stage used when no mapping matches.
func (r *Registry[H, X]) DefaultStage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultStage
}

// StageFor returns the stage topic is delivered on: a discrete mapping, else
// the longest matching wildcard prefix, else the default stage.
func (r *Registry[H, X]) StageFor(topic string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stageLocked(topic)
}

func (r *Registry[H, X]) stageLocked(topic string) string {
	if stage, ok := r.stageTopics[topic]; ok {
		return stage
	}
	for _, prefix := range Prefixes(topic) {
		if stage, ok := r.stagePrefixes[prefix]; ok {
			return stage
		}
	}
	return r.defaultStage
}

// Invalidate drops every cached resolution. It is needed when something the
// registry does not own changes, such as the executor bound to a stage.
func (r *Registry[H, X]) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

func (r *Registry[H, X]) invalidateLocked() {
	var keys []string
	r.cache.ForEach(func(key string, res *Resolution[H, X]) bool {
		res.stale.Store(true)
		keys = append(keys, key)
		return true
	})
	if len(keys) > 0 {
		r.cache.Del(keys...)
	}
}
