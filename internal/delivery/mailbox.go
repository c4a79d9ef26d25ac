// Package delivery holds the per-handler side of asynchronous delivery: a
// FIFO mailbox of pending events, the delivery lock serializing a
// non-reentrant handler, and the Result captured for every invocation.
//
// Every entry pushed into a mailbox is followed by one delivery task. A task
// never knows which entry it will get: it pops the head, so entries reach the
// handler in the order they were pushed. Serial delivery lets the task
// holding the delivery lock drain entries pushed for other tasks.
package delivery

import (
	"sync"

	"github.com/casualjim/strix/internal/executor"
)

// Entry is one pending delivery.
type Entry[E any] struct {
	Event E
	Token *executor.Token
}

// Mailbox is the FIFO queue and delivery lock of one handler registration.
type Mailbox[E any] struct {
	mu    sync.Mutex
	queue []Entry[E]
	head  int

	deliver sync.Mutex
}

// NewMailbox creates an empty mailbox.
func NewMailbox[E any]() *Mailbox[E] {
	return &Mailbox[E]{}
}

// Push appends evt with a fresh pending token and returns the token.
func (m *Mailbox[E]) Push(evt E) *executor.Token {
	tok := executor.NewToken()
	m.mu.Lock()
	m.queue = append(m.queue, Entry[E]{Event: evt, Token: tok})
	m.mu.Unlock()
	return tok
}

// Pop removes and returns the oldest entry.
func (m *Mailbox[E]) Pop() (Entry[E], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.head >= len(m.queue) {
		return Entry[E]{}, false
	}
	e := m.queue[m.head]
	m.queue[m.head] = Entry[E]{}
	m.head++
	if m.head == len(m.queue) {
		m.queue = m.queue[:0]
		m.head = 0
	} else if m.head > 32 && m.head*2 >= len(m.queue) {
		n := copy(m.queue, m.queue[m.head:])
		clear(m.queue[n:])
		m.queue = m.queue[:n]
		m.head = 0
	}
	return e, true
}

// Reject undoes a push whose delivery task could not be submitted. It
// removes the entry holding tok when it is still queued. When a task already
// took that entry, the newest queued entry is removed instead so every
// remaining entry is still matched by a task. The token of the removed entry
// is returned; the caller drops it.
func (m *Mailbox[E]) Reject(tok *executor.Token) (*executor.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.head >= len(m.queue) {
		return nil, false
	}
	idx := len(m.queue) - 1
	for i := m.head; i < len(m.queue); i++ {
		if m.queue[i].Token == tok {
			idx = i
			break
		}
	}
	removed := m.queue[idx].Token
	m.removeLocked(idx)
	return removed, true
}

// Remove removes the entry holding tok. It reports false when no queued
// entry holds tok.
func (m *Mailbox[E]) Remove(tok *executor.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := m.head; i < len(m.queue); i++ {
		if m.queue[i].Token == tok {
			m.removeLocked(i)
			return true
		}
	}
	return false
}

func (m *Mailbox[E]) removeLocked(idx int) {
	copy(m.queue[idx:], m.queue[idx+1:])
	m.queue[len(m.queue)-1] = Entry[E]{}
	m.queue = m.queue[:len(m.queue)-1]
	if m.head >= len(m.queue) {
		m.queue = m.queue[:0]
		m.head = 0
	}
}

// Len returns the number of queued entries.
func (m *Mailbox[E]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) - m.head
}

// Drain removes every queued entry and returns their tokens.
func (m *Mailbox[E]) Drain() []*executor.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	toks := make([]*executor.Token, 0, len(m.queue)-m.head)
	for _, e := range m.queue[m.head:] {
		toks = append(toks, e.Token)
	}
	clear(m.queue)
	m.queue = m.queue[:0]
	m.head = 0
	return toks
}

// TryLock acquires the delivery lock when it is free and reports whether it
// did.
func (m *Mailbox[E]) TryLock() bool {
	return m.deliver.TryLock()
}

// Unlock releases the delivery lock.
func (m *Mailbox[E]) Unlock() {
	m.deliver.Unlock()
}
