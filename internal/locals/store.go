package locals

import "sync"

// RowSize is the number of slots held by one row of a Store.
const RowSize = 32

// unset marks a slot that was never written in this store, as opposed to a
// slot explicitly set to nil.
type unsetMarker struct{}

var unset any = unsetMarker{}

// Store is one link of an event-local storage chain.
type Store struct {
	mu     sync.RWMutex
	parent *Store
	rows   [][]any
}

// NewStore creates a store that overlays parent. A nil parent makes a root store.
func NewStore(parent *Store) *Store {
	return &Store{parent: parent}
}

// Parent returns the store this one overlays.
func (s *Store) Parent() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent
}

// Link attaches parent when the store has none yet. It reports whether the
// link was made; a store never changes parents once it has one, and a store
// never overlays itself or one of its own descendants.
func (s *Store) Link(parent *Store) bool {
	if parent == nil || parent.descendsFrom(s) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parent != nil {
		return false
	}
	s.parent = parent
	return true
}

func (s *Store) descendsFrom(ancestor *Store) bool {
	for cur := s; cur != nil; cur = cur.Parent() {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Get resolves slot through the chain, starting at this store.
func (s *Store) Get(slot int) (any, bool) {
	for cur := s; cur != nil; {
		v, ok, parent := cur.own(slot)
		if ok {
			return v, true
		}
		cur = parent
	}
	return nil, false
}

// Own returns the value written to slot in this store only.
func (s *Store) Own(slot int) (any, bool) {
	v, ok, _ := s.own(slot)
	return v, ok
}

func (s *Store) own(slot int) (any, bool, *Store) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, col := slot/RowSize, slot%RowSize
	if slot < 0 || row >= len(s.rows) || s.rows[row] == nil {
		return nil, false, s.parent
	}
	v := s.rows[row][col]
	if v == unset {
		return nil, false, s.parent
	}
	return v, true, s.parent
}

// Set writes value into slot of this store, growing the table as needed.
// Ancestors are never touched.
func (s *Store) Set(slot int, value any) {
	if slot < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, col := slot/RowSize, slot%RowSize
	if row >= len(s.rows) {
		rows := make([][]any, row+1)
		copy(rows, s.rows)
		s.rows = rows
	}
	if s.rows[row] == nil {
		r := make([]any, RowSize)
		for i := range r {
			r[i] = unset
		}
		s.rows[row] = r
	}
	s.rows[row][col] = value
}

// Remove clears slot in this store and returns the value it held here.
// Afterwards lookups fall through to the parent chain again.
func (s *Store) Remove(slot int) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, col := slot/RowSize, slot%RowSize
	if slot < 0 || row >= len(s.rows) || s.rows[row] == nil {
		return nil, false
	}
	old := s.rows[row][col]
	if old == unset {
		return nil, false
	}
	s.rows[row][col] = unset
	return old, true
}
