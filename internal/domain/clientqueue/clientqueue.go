// Package clientqueue holds the server-wide queue of live circuits:
// a Client Record is in the global client queue iff its socket is
// open and its message loop is running.
package clientqueue

import (
	"sync"

	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
)

// Queue is the server-wide circuit list: one mutex, append on
// accept, remove on teardown. EPICS rsrv reuses this same mutex to
// serialize the identifier table; this implementation keeps the id
// table's own mutex separate for locality instead (see DESIGN.md) —
// the two are never required to be the same lock, only to each
// individually serialize their own structure.
type Queue struct {
	mu      sync.Mutex
	clients []*circuit.Client
}

func New() *Queue {
	return &Queue{}
}

// Append adds c to the queue under the client-queue lock.
func (q *Queue) Append(c *circuit.Client) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clients = append(q.clients, c)
}

// Remove deletes c from the queue, returning whether it was present.
func (q *Queue) Remove(c *circuit.Client) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, x := range q.clients {
		if x == c {
			q.clients = append(q.clients[:i], q.clients[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the current circuit count (casStatsFetch's circuitCount).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.clients)
}

// Walk calls fn for every client currently queued, holding the lock
// for the whole walk (matches casr's read-only traversal). fn must not
// block or call back into the queue.
func (q *Queue) Walk(fn func(*circuit.Client)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.clients {
		fn(c)
	}
}

// Snapshot returns a shallow copy of the current client list, safe to
// range over after the lock is released.
func (q *Queue) Snapshot() []*circuit.Client {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*circuit.Client, len(q.clients))
	copy(out, q.clients)
	return out
}
