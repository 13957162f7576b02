package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"iconboard/core"
	"iconboard/stores/pubsub"
)

// memStore implements CanvasStore and ObjectStore in process memory. It is
// the default backend and the one the tests lean on.
type memStore struct {
	mu sync.RWMutex
	// canvases is keyed by userID, then canvasID.
	canvases map[string]map[string]*core.Canvas
	// objects is keyed by canvasID, then objectID.
	objects map[string]map[string]core.Object
	hub     *pubsub.Hub
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		canvases: make(map[string]map[string]*core.Canvas),
		objects:  make(map[string]map[string]core.Object),
		hub:      pubsub.NewHub(),
	}
}

// List returns metadata for all canvases owned by a user. Part of the CanvasStore interface.
func (s *memStore) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userCanvases, ok := s.canvases[userID]
	if !ok {
		return []*core.Canvas{}, nil // No canvases for this user, return empty slice
	}

	canvases := make([]*core.Canvas, 0, len(userCanvases))
	for _, canvas := range userCanvases {
		// Important: create a copy without the large `Data` field for the list view
		listCanvas := &core.Canvas{
			ID:        canvas.ID,
			UserID:    canvas.UserID,
			Name:      canvas.Name,
			Thumbnail: canvas.Thumbnail,
			CreatedAt: canvas.CreatedAt,
			UpdatedAt: canvas.UpdatedAt,
		}
		canvases = append(canvases, listCanvas)
	}
	sort.Slice(canvases, func(i, j int) bool { return canvases[i].ID < canvases[j].ID })

	logrus.WithField("user_id", userID).Infof("Listed %d canvases", len(canvases))
	return canvases, nil
}

// Get returns a single canvas by its ID, ensuring it belongs to the user. Part of the CanvasStore interface.
func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "canvas_id": id})

	userCanvases, ok := s.canvases[userID]
	if !ok {
		log.Warn("User has no canvases")
		return nil, fmt.Errorf("canvas with id %s not found for user %s", id, userID)
	}

	canvas, ok := userCanvases[id]
	if !ok {
		log.Warn("Canvas not found for user")
		return nil, fmt.Errorf("canvas with id %s not found for user %s", id, userID)
	}

	log.Info("Canvas retrieved successfully")
	return canvas, nil
}

// Save creates or updates a canvas for a user. Part of the CanvasStore interface.
func (s *memStore) Save(ctx context.Context, canvas *core.Canvas) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": canvas.UserID, "canvas_id": canvas.ID})

	if canvas.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if canvas.ID == "" {
		return fmt.Errorf("Canvas ID cannot be empty for save operation")
	}

	userCanvases, ok := s.canvases[canvas.UserID]
	if !ok {
		userCanvases = make(map[string]*core.Canvas)
		s.canvases[canvas.UserID] = userCanvases
	}

	now := time.Now()
	if existingCanvas, exists := userCanvases[canvas.ID]; exists {
		canvas.CreatedAt = existingCanvas.CreatedAt
		canvas.UpdatedAt = now
	} else {
		canvas.CreatedAt = now
		canvas.UpdatedAt = now
	}

	userCanvases[canvas.ID] = canvas
	log.Info("Canvas saved successfully")
	return nil
}

// Delete removes a canvas, ensuring it belongs to the user. Part of the CanvasStore interface.
func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "canvas_id": id})

	userCanvases, ok := s.canvases[userID]
	if !ok {
		log.Warn("User has no canvases to delete from")
		return fmt.Errorf("user %s has no canvases", userID)
	}

	if _, ok := userCanvases[id]; !ok {
		log.Warn("Canvas not found for deletion")
		return fmt.Errorf("canvas with id %s not found for user %s", id, userID)
	}

	delete(userCanvases, id)
	delete(s.objects, id)
	log.Info("Canvas deleted successfully")
	return nil
}

// ListObjects returns all objects of a canvas in draw order. Part of the ObjectStore interface.
func (s *memStore) ListObjects(ctx context.Context, canvasID string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvasObjects := s.objects[canvasID]
	objects := make([]core.Object, 0, len(canvasObjects))
	for _, obj := range canvasObjects {
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].ZIndex == objects[j].ZIndex {
			return objects[i].ID < objects[j].ID
		}
		return objects[i].ZIndex < objects[j].ZIndex
	})
	return objects, nil
}

// SaveObject stores one object and publishes the canvas snapshot. Part of the ObjectStore interface.
func (s *memStore) SaveObject(ctx context.Context, canvasID string, object *core.Object) error {
	if object.ID == "" {
		return fmt.Errorf("object ID cannot be empty")
	}

	s.mu.Lock()
	canvasObjects, ok := s.objects[canvasID]
	if !ok {
		canvasObjects = make(map[string]core.Object)
		s.objects[canvasID] = canvasObjects
	}

	now := time.Now()
	if existing, exists := canvasObjects[object.ID]; exists {
		object.CreatedAt = existing.CreatedAt
	} else if object.CreatedAt.IsZero() {
		object.CreatedAt = now
	}
	object.UpdatedAt = now
	canvasObjects[object.ID] = *object
	snap := s.snapshotLocked(canvasID)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"canvas_id": canvasID,
		"object_id": object.ID,
		"type":      object.Type,
	}).Info("Object saved successfully")

	s.hub.Publish(snap)
	return nil
}

// DeleteObject removes one object and publishes the canvas snapshot. Part of the ObjectStore interface.
func (s *memStore) DeleteObject(ctx context.Context, canvasID, objectID string) error {
	s.mu.Lock()
	canvasObjects, ok := s.objects[canvasID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("canvas %s has no objects", canvasID)
	}
	if _, ok := canvasObjects[objectID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("object with id %s not found in canvas %s", objectID, canvasID)
	}
	delete(canvasObjects, objectID)
	snap := s.snapshotLocked(canvasID)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"canvas_id": canvasID,
		"object_id": objectID,
	}).Info("Object deleted successfully")

	s.hub.Publish(snap)
	return nil
}

// Subscribe registers a snapshot callback for a canvas. Part of the ObjectStore interface.
func (s *memStore) Subscribe(canvasID string, fn func(core.Snapshot)) func() {
	return s.hub.Subscribe(canvasID, fn)
}

// snapshotLocked copies the current object set of a canvas. Caller holds s.mu.
func (s *memStore) snapshotLocked(canvasID string) core.Snapshot {
	canvasObjects := s.objects[canvasID]
	objects := make(map[string]core.Object, len(canvasObjects))
	for id, obj := range canvasObjects {
		objects[id] = obj
	}
	return core.Snapshot{CanvasID: canvasID, Objects: objects}
}
