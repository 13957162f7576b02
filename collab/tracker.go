// Package collab implements the client-side optimistic concurrency layer for
// a shared canvas: a manipulation tracker that shields locally-in-flight
// edits from remote overwrite, and a session that merges remote snapshots
// into the authoritative in-memory object set.
package collab

import "sync"

// Tracker is a mutable set of object IDs currently under exclusive local
// edit. Callers must Mark before any optimistic mutation becomes observable
// and Unmark only after the corresponding store write has resolved;
// unmarking early opens a window where a remote update can overwrite an
// uncommitted local change. Marks are transient and lost on restart.
type Tracker struct {
	mu     sync.RWMutex
	marked map[string]struct{}
}

// NewTracker creates an empty Tracker. It is an injected instance owned by
// the session context, one per canvas session.
func NewTracker() *Tracker {
	return &Tracker{marked: make(map[string]struct{})}
}

// Mark inserts the given IDs. Idempotent.
func (t *Tracker) Mark(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.marked[id] = struct{}{}
	}
}

// Unmark removes the given IDs. Idempotent.
func (t *Tracker) Unmark(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		delete(t.marked, id)
	}
}

// IsMarked reports membership.
func (t *Tracker) IsMarked(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.marked[id]
	return ok
}

// MarkedCount returns the number of marked IDs.
func (t *Tracker) MarkedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.marked)
}
