// Package pubsub fans out canvas snapshots to in-process subscribers. Every
// object-store backend publishes through a Hub after a successful write,
// which is what turns a plain store into the realtime feed the collab
// session subscribes to.
package pubsub

import (
	"sync"

	"github.com/sirupsen/logrus"

	"iconboard/core"
)

// Hub is a per-canvas subscriber registry. Delivery is synchronous from the
// writer's goroutine and at-least-once; subscribers must tolerate duplicate
// snapshots.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]func(core.Snapshot)
	next int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]func(core.Snapshot))}
}

// Subscribe registers fn for snapshots of canvasID and returns an
// unsubscribe function. Unsubscribing twice is harmless.
func (h *Hub) Subscribe(canvasID string, fn func(core.Snapshot)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[canvasID] == nil {
		h.subs[canvasID] = make(map[int]func(core.Snapshot))
	}
	id := h.next
	h.next++
	h.subs[canvasID][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[canvasID], id)
		if len(h.subs[canvasID]) == 0 {
			delete(h.subs, canvasID)
		}
	}
}

// Publish delivers snap to every subscriber of its canvas. Callbacks run
// outside the hub lock so a subscriber may re-subscribe or publish without
// deadlocking.
func (h *Hub) Publish(snap core.Snapshot) {
	h.mu.RLock()
	fns := make([]func(core.Snapshot), 0, len(h.subs[snap.CanvasID]))
	for _, fn := range h.subs[snap.CanvasID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	if len(fns) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"canvas_id":   snap.CanvasID,
		"subscribers": len(fns),
		"objects":     len(snap.Objects),
	}).Debug("Publishing snapshot")
	for _, fn := range fns {
		fn(snap)
	}
}
