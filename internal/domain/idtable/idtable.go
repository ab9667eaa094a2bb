// Package idtable implements the server-wide channel identifier
// table: the single source of truth mapping a wire-visible server id
// (sid) back to the in-memory Channel it names. Every channel any
// client holds must have a live entry here for the life of the
// channel. The table itself does not enforce that rule: rsrv's
// OpenChannel inserts the entry together with the list append, and the
// teardown coordinator removes it.
package idtable

import "sync"

// Table is a hash map from sid to an opaque channel handle, guarded by
// a single mutex shared across every circuit — one big lock rather
// than sharding, since
// channel churn is dominated by connect/disconnect, not steady-state
// lookups.
type Table[T any] struct {
	mu      sync.Mutex
	entries map[uint32]T
	next    uint32
}

// New returns an empty Table. The zero value is not usable; always
// construct through New so next starts at 1 (sid 0 is reserved by the
// wire protocol to mean "no channel").
func New[T any]() *Table[T] {
	return &Table[T]{entries: make(map[uint32]T), next: 1}
}

// Insert allocates a fresh sid for v and stores it, wrapping back to
// 1 past uint32 exhaustion (a free-running counter) and skipping any
// sid still in use.
func (t *Table[T]) Insert(v T) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		sid := t.next
		if sid == 0 {
			sid = 1
		}
		t.next = sid + 1
		if _, exists := t.entries[sid]; !exists {
			t.entries[sid] = v
			return sid
		}
	}
}

// Lookup returns the value stored under sid, if any.
func (t *Table[T]) Lookup(sid uint32) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[sid]
	return v, ok
}

// Remove deletes sid's entry, returning the value that was stored
// there (if any) so the caller can finish tearing it down outside the
// lock.
func (t *Table[T]) Remove(sid uint32) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[sid]
	if ok {
		delete(t.entries, sid)
	}
	return v, ok
}

// Len reports the number of live entries, used by Introspection's
// "channel count" line.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Show calls fn for every (sid, value) pair, holding the table lock
// for the whole walk: fn must not call back into the table nor block
// (matches casr's read-only traversal of the bucket table).
func (t *Table[T]) Show(fn func(sid uint32, v T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sid, v := range t.entries {
		fn(sid, v)
	}
}
