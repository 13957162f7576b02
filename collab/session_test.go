package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"iconboard/core"
)

// fakeStore is an in-memory core.ObjectStore with a switchable write
// failure, used to drive the session under test.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string]core.Object
	failSave bool
	saves    int
	deletes  int
	subs     []func(core.Snapshot)
}

func newFakeStore(objects ...core.Object) *fakeStore {
	return &fakeStore{objects: core.IndexByID(objects)}
}

func (f *fakeStore) ListObjects(ctx context.Context, canvasID string) ([]core.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Object, 0, len(f.objects))
	for _, obj := range f.objects {
		out = append(out, obj)
	}
	return out, nil
}

func (f *fakeStore) SaveObject(ctx context.Context, canvasID string, object *core.Object) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failSave {
		return fmt.Errorf("write refused")
	}
	f.objects[object.ID] = *object
	return nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, canvasID, objectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.objects, objectID)
	return nil
}

func (f *fakeStore) Subscribe(canvasID string, fn func(core.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func snapshot(objects ...core.Object) core.Snapshot {
	return core.Snapshot{CanvasID: "canvas-1", Objects: core.IndexByID(objects)}
}

func TestApplySnapshot_AdoptsRemoteWhenUnmarked(t *testing.T) {
	session := NewSession("canvas-1", newFakeStore(), nil)

	session.ApplySnapshot(snapshot(core.Object{ID: "a", Type: core.TypeRectangle, X: 10}))

	obj, ok := session.Object("a")
	if !ok || obj.X != 10 {
		t.Fatalf("Object(a) = %+v, %v; want adopted remote value", obj, ok)
	}

	session.ApplySnapshot(snapshot(core.Object{ID: "a", Type: core.TypeRectangle, X: 99}))
	obj, _ = session.Object("a")
	if obj.X != 99 {
		t.Errorf("Object(a).X = %v, want remote update 99", obj.X)
	}
}

func TestApplySnapshot_MarkedObjectKeepsLocalValue(t *testing.T) {
	session := NewSession("canvas-1", newFakeStore(), nil)
	session.ApplySnapshot(snapshot(core.Object{ID: "a", Type: core.TypeRectangle, X: 10}))

	release := session.BeginEdit("a")
	session.Stage(core.Object{ID: "a", Type: core.TypeRectangle, X: 50})

	// A remote update for a marked ID must be discarded.
	session.ApplySnapshot(snapshot(core.Object{ID: "a", Type: core.TypeRectangle, X: 77}))
	obj, _ := session.Object("a")
	if obj.X != 50 {
		t.Errorf("Object(a).X = %v, want in-flight local value 50", obj.X)
	}

	// After release, the next snapshot applies normally.
	release()
	session.ApplySnapshot(snapshot(core.Object{ID: "a", Type: core.TypeRectangle, X: 77}))
	obj, _ = session.Object("a")
	if obj.X != 77 {
		t.Errorf("Object(a).X = %v, want 77 after unmark", obj.X)
	}
}

func TestApplySnapshot_RemoteDeletionRemovesUnmarked(t *testing.T) {
	session := NewSession("canvas-1", newFakeStore(), nil)
	session.ApplySnapshot(snapshot(
		core.Object{ID: "a", Type: core.TypeRectangle},
		core.Object{ID: "b", Type: core.TypeCircle},
	))

	session.ApplySnapshot(snapshot(core.Object{ID: "b", Type: core.TypeCircle}))
	if _, ok := session.Object("a"); ok {
		t.Error("object absent from the snapshot should be removed as a confirmed deletion")
	}
	if _, ok := session.Object("b"); !ok {
		t.Error("object present in the snapshot must survive")
	}
}

func TestApplySnapshot_MarkedLocalCreateSurvivesAbsence(t *testing.T) {
	session := NewSession("canvas-1", newFakeStore(), nil)

	release := session.BeginEdit("new")
	defer release()
	session.Stage(core.Object{ID: "new", Type: core.TypeText})

	// The remote snapshot does not know the uncommitted create yet.
	session.ApplySnapshot(snapshot(core.Object{ID: "other", Type: core.TypeRectangle}))

	if _, ok := session.Object("new"); !ok {
		t.Error("marked local create must survive a snapshot that lacks it")
	}
	if _, ok := session.Object("other"); !ok {
		t.Error("remote object should still be adopted")
	}
}

func TestCommit_WritesAndUnmarks(t *testing.T) {
	store := newFakeStore()
	session := NewSession("canvas-1", store, nil)
	ctx := context.Background()

	obj := core.Object{ID: "a", Type: core.TypeRectangle, X: 5}
	if err := session.Commit(ctx, obj); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	if session.Tracker().IsMarked("a") {
		t.Error("Commit() must unmark on success")
	}
	if store.saves != 1 {
		t.Errorf("store saw %d saves, want 1", store.saves)
	}
	got, _ := session.Object("a")
	if got.X != 5 {
		t.Errorf("Object(a).X = %v, want committed value 5", got.X)
	}
}

func TestCommit_FailureUnmarksAndReverts(t *testing.T) {
	store := newFakeStore(core.Object{ID: "a", Type: core.TypeRectangle, X: 1})
	session := NewSession("canvas-1", store, nil)
	ctx := context.Background()
	if err := session.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	store.failSave = true
	err := session.Commit(ctx, core.Object{ID: "a", Type: core.TypeRectangle, X: 42})
	if err == nil {
		t.Fatal("Commit() should propagate the write failure")
	}

	if session.Tracker().IsMarked("a") {
		t.Error("Commit() must unmark on failure too; a permanent mark would block all remote updates")
	}
	got, _ := session.Object("a")
	if got.X != 1 {
		t.Errorf("Object(a).X = %v, want canonical value 1 after revert", got.X)
	}
}

func TestCommit_FailedCreateIsDroppedOnRevert(t *testing.T) {
	store := newFakeStore()
	store.failSave = true
	session := NewSession("canvas-1", store, nil)

	err := session.Commit(context.Background(), core.Object{ID: "ghost", Type: core.TypeCircle})
	if err == nil {
		t.Fatal("Commit() should propagate the write failure")
	}
	if _, ok := session.Object("ghost"); ok {
		t.Error("a failed create has no canonical value and must be dropped")
	}
}

func TestDelete_RemovesLocallyAndRemotely(t *testing.T) {
	store := newFakeStore(core.Object{ID: "a", Type: core.TypeRectangle})
	session := NewSession("canvas-1", store, nil)
	ctx := context.Background()
	if err := session.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	session.Tracker().Mark("a")
	if err := session.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, ok := session.Object("a"); ok {
		t.Error("Delete() should remove the object locally")
	}
	if session.Tracker().IsMarked("a") {
		t.Error("Delete() should clear the mark")
	}
	if store.deletes != 1 {
		t.Errorf("store saw %d deletes, want 1", store.deletes)
	}
}

func TestCrossObjectEditsAreIndependentlyGated(t *testing.T) {
	session := NewSession("canvas-1", newFakeStore(), nil)
	session.ApplySnapshot(snapshot(
		core.Object{ID: "mine", Type: core.TypeRectangle, X: 1},
		core.Object{ID: "theirs", Type: core.TypeRectangle, X: 1},
	))

	release := session.BeginEdit("mine")
	defer release()
	session.Stage(core.Object{ID: "mine", Type: core.TypeRectangle, X: 100})

	session.ApplySnapshot(snapshot(
		core.Object{ID: "mine", Type: core.TypeRectangle, X: 2},
		core.Object{ID: "theirs", Type: core.TypeRectangle, X: 2},
	))

	mine, _ := session.Object("mine")
	theirs, _ := session.Object("theirs")
	if mine.X != 100 {
		t.Errorf("mine.X = %v, want shielded local value 100", mine.X)
	}
	if theirs.X != 2 {
		t.Errorf("theirs.X = %v, want remote value 2; other users' edits must flow through", theirs.X)
	}
}

func TestBeginEdit_ReleaseIsIdempotent(t *testing.T) {
	session := NewSession("canvas-1", newFakeStore(), nil)

	release := session.BeginEdit("a")
	session.Tracker().Mark("a") // a second gesture re-marks the same object
	release()
	release()

	// The double release must not have cleared more than its own mark would;
	// after both calls the ID is unmarked exactly once.
	if session.Tracker().IsMarked("a") {
		t.Error("release should unmark the ID")
	}
}

func TestLoad_PopulatesFromStore(t *testing.T) {
	store := newFakeStore(
		core.Object{ID: "a", Type: core.TypeRectangle, ZIndex: 2},
		core.Object{ID: "b", Type: core.TypeCircle, ZIndex: 1},
	)
	session := NewSession("canvas-1", store, nil)

	if err := session.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	objects := session.Objects()
	if len(objects) != 2 {
		t.Fatalf("Objects() has %d entries, want 2", len(objects))
	}
	if objects[0].ID != "b" || objects[1].ID != "a" {
		t.Errorf("Objects() order = [%s %s], want draw order [b a]", objects[0].ID, objects[1].ID)
	}
}
