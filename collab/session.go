package collab

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"iconboard/core"
)

// Session owns the merged in-memory object set for one canvas. Remote
// snapshots are folded in through the manipulation tracker: while an object
// is marked, its local value wins; everything else adopts the remote value.
// The result feeds rendering, lock computation and viewport culling.
type Session struct {
	canvasID string
	store    core.ObjectStore
	tracker  *Tracker

	mu      sync.RWMutex
	objects map[string]core.Object
}

// NewSession creates a session for canvasID backed by store. A nil tracker
// gets a fresh one.
func NewSession(canvasID string, store core.ObjectStore, tracker *Tracker) *Session {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Session{
		canvasID: canvasID,
		store:    store,
		tracker:  tracker,
		objects:  make(map[string]core.Object),
	}
}

// Tracker exposes the session's manipulation tracker.
func (s *Session) Tracker() *Tracker {
	return s.tracker
}

// Load replaces the local object set with the store's current state. Meant
// to run once before Run.
func (s *Session) Load(ctx context.Context) error {
	objects, err := s.store.ListObjects(ctx, s.canvasID)
	if err != nil {
		return fmt.Errorf("failed to load objects for canvas %s: %w", s.canvasID, err)
	}

	s.mu.Lock()
	s.objects = core.IndexByID(objects)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"canvas_id": s.canvasID,
		"objects":   len(objects),
	}).Info("Session loaded")
	return nil
}

// Run subscribes to the store's snapshot feed and applies events until ctx
// is done. It always returns ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	unsubscribe := s.store.Subscribe(s.canvasID, s.ApplySnapshot)
	defer unsubscribe()

	<-ctx.Done()
	logrus.WithField("canvas_id", s.canvasID).Debug("Session stopped")
	return ctx.Err()
}

// ApplySnapshot merges a remote snapshot into the local object set.
//
// Marked IDs keep their current local value; unmarked IDs adopt the remote
// value. IDs present locally but absent remotely are removed as confirmed
// deletions unless marked, in which case they are an uncommitted local
// create and survive. Only the mark state at merge time matters, so the
// merge is safe under arbitrary interleaving with local marks.
func (s *Session) ApplySnapshot(snap core.Snapshot) {
	if snap.CanvasID != "" && snap.CanvasID != s.canvasID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]core.Object, len(snap.Objects))
	for id, remote := range snap.Objects {
		if s.tracker.IsMarked(id) {
			if local, ok := s.objects[id]; ok {
				merged[id] = local
				continue
			}
		}
		merged[id] = remote
	}
	for id, local := range s.objects {
		if _, inRemote := snap.Objects[id]; inRemote {
			continue
		}
		if s.tracker.IsMarked(id) {
			merged[id] = local
		}
	}
	s.objects = merged
}

// Objects returns the merged object set, sorted by draw order then ID for
// determinism.
func (s *Session) Objects() []core.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := make([]core.Object, 0, len(s.objects))
	for _, obj := range s.objects {
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].ZIndex == objects[j].ZIndex {
			return objects[i].ID < objects[j].ID
		}
		return objects[i].ZIndex < objects[j].ZIndex
	})
	return objects
}

// Object returns the merged value for id.
func (s *Session) Object(id string) (core.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	return obj, ok
}

// BeginEdit marks the given IDs and returns a release function that unmarks
// them. The release must run on every exit path of the gesture, success or
// failure.
func (s *Session) BeginEdit(ids ...string) func() {
	s.tracker.Mark(ids...)
	var once sync.Once
	return func() {
		once.Do(func() { s.tracker.Unmark(ids...) })
	}
}

// Stage applies an optimistic local mutation without writing to the store.
// The object must already be marked; staging an unmarked object would be
// overwritten by the next snapshot.
func (s *Session) Stage(obj core.Object) {
	s.mu.Lock()
	s.objects[obj.ID] = obj
	s.mu.Unlock()
}

// Commit stages obj, writes it to the store and unmarks it on both the
// success and failure path. On failure the local optimistic value is rolled
// back by re-fetching the canonical remote state for the ID.
func (s *Session) Commit(ctx context.Context, obj core.Object) error {
	s.tracker.Mark(obj.ID)
	s.Stage(obj)

	err := s.store.SaveObject(ctx, s.canvasID, &obj)
	s.tracker.Unmark(obj.ID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"canvas_id": s.canvasID,
			"object_id": obj.ID,
			"error":     err,
		}).Error("Commit failed, reverting optimistic state")
		s.revert(ctx, obj.ID)
		return fmt.Errorf("failed to commit object %s: %w", obj.ID, err)
	}
	return nil
}

// Delete removes the object locally and from the store. Deletion is
// immediate and irreversible; the ID is unmarked so no stale mark can
// shield a ghost object.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.tracker.Unmark(id)

	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()

	if err := s.store.DeleteObject(ctx, s.canvasID, id); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// revert restores the canonical remote value for id after a failed commit.
// A re-fetch failure leaves the optimistic value in place for the next
// snapshot to correct; it is logged, not propagated, since the commit error
// already reached the caller.
func (s *Session) revert(ctx context.Context, id string) {
	objects, err := s.store.ListObjects(ctx, s.canvasID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"canvas_id": s.canvasID,
			"object_id": id,
			"error":     err,
		}).Warn("Failed to re-fetch canonical state after failed commit")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	for _, obj := range objects {
		if obj.ID == id {
			s.objects[id] = obj
			break
		}
	}
}
