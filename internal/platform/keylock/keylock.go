// Package keylock provides one mutex per key so that work on different keys
// never contends while work on the same key is serialised.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table hands out per-key mutexes. Entries are dropped once no goroutine
// holds or waits on them, so the table does not grow with every key seen.
type Table[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty lock table.
func New[K comparable]() *Table[K] {
	return &Table[K]{entries: make(map[K]*entry)}
}

// Lock acquires the mutex for key and returns the matching unlock func.
func (t *Table[K]) Lock(key K) (unlock func()) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}

// Len reports how many keys currently have holders or waiters.
func (t *Table[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
