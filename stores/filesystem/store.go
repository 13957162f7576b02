package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"iconboard/core"
	"iconboard/stores/pubsub"
)

type fsStore struct {
	basePath string
	hub      *pubsub.Hub
	// mu serializes read-modify-write of per-canvas object documents.
	mu sync.Mutex
}

// storedCanvas is the on-disk shape of a canvas. UserID is json:"-" on the
// API type but has to survive persistence.
type storedCanvas struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toStored(c *core.Canvas) storedCanvas {
	return storedCanvas{
		ID: c.ID, UserID: c.UserID, Name: c.Name, Thumbnail: c.Thumbnail,
		Data: c.Data, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (sc storedCanvas) toCanvas() *core.Canvas {
	return &core.Canvas{
		ID: sc.ID, UserID: sc.UserID, Name: sc.Name, Thumbnail: sc.Thumbnail,
		Data: sc.Data, CreatedAt: sc.CreatedAt, UpdatedAt: sc.UpdatedAt,
	}
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{basePath, filepath.Join(basePath, "canvases"), filepath.Join(basePath, "objects")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("failed to create base directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath, hub: pubsub.NewHub()}
}

func (s *fsStore) canvasPath(userID, id string) (string, error) {
	if filepath.Base(id) != id || id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("invalid canvas id: must be a simple name")
	}
	if filepath.Base(userID) != userID || userID == "" || userID == "." || userID == ".." {
		return "", fmt.Errorf("invalid user id: must be a simple name")
	}
	return filepath.Join(s.basePath, "canvases", userID, id+".json"), nil
}

func (s *fsStore) objectsPath(canvasID string) (string, error) {
	if filepath.Base(canvasID) != canvasID || canvasID == "" || canvasID == "." || canvasID == ".." {
		return "", fmt.Errorf("invalid canvas id: must be a simple name")
	}
	return filepath.Join(s.basePath, "objects", canvasID+".json"), nil
}

// CanvasStore implementation

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	dir := filepath.Join(s.basePath, "canvases", userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.Canvas{}, nil
		}
		return nil, err
	}

	canvases := []*core.Canvas{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logrus.WithError(err).Warn("Skipping unreadable canvas file")
			continue
		}
		var sc storedCanvas
		if err := json.Unmarshal(data, &sc); err != nil {
			logrus.WithError(err).Warn("Skipping undecodable canvas file")
			continue
		}
		canvas := sc.toCanvas()
		canvas.Data = nil // keep list views light
		canvases = append(canvases, canvas)
	}
	sort.Slice(canvases, func(i, j int) bool { return canvases[i].ID < canvases[j].ID })
	return canvases, nil
}

func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Canvas, error) {
	path, err := s.canvasPath(userID, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("canvas with id %s not found for user %s", id, userID)
		}
		return nil, err
	}
	var sc storedCanvas
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode canvas %s: %w", id, err)
	}
	return sc.toCanvas(), nil
}

func (s *fsStore) Save(ctx context.Context, canvas *core.Canvas) error {
	path, err := s.canvasPath(canvas.UserID, canvas.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	if existing, err := s.Get(ctx, canvas.UserID, canvas.ID); err == nil {
		canvas.CreatedAt = existing.CreatedAt
	} else if canvas.CreatedAt.IsZero() {
		canvas.CreatedAt = now
	}
	canvas.UpdatedAt = now

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(toStored(canvas))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.WithError(err).Error("Failed to write canvas file")
		return err
	}

	logrus.WithFields(logrus.Fields{"user_id": canvas.UserID, "canvas_id": canvas.ID}).Info("Canvas saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	path, err := s.canvasPath(userID, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("canvas with id %s not found for user %s", id, userID)
		}
		return err
	}

	if objPath, err := s.objectsPath(id); err == nil {
		if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Failed to delete objects of removed canvas")
		}
	}
	return nil
}

// ObjectStore implementation. A canvas's objects live in one JSON document;
// collaborative canvases are small enough that rewriting the document per
// save is cheaper than managing per-object files.

func (s *fsStore) ListObjects(ctx context.Context, canvasID string) ([]core.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.readObjects(canvasID)
	if err != nil {
		return nil, err
	}

	list := make([]core.Object, 0, len(objects))
	for _, obj := range objects {
		list = append(list, obj)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ZIndex == list[j].ZIndex {
			return list[i].ID < list[j].ID
		}
		return list[i].ZIndex < list[j].ZIndex
	})
	return list, nil
}

func (s *fsStore) SaveObject(ctx context.Context, canvasID string, object *core.Object) error {
	if object.ID == "" {
		return fmt.Errorf("object ID cannot be empty")
	}

	s.mu.Lock()
	objects, err := s.readObjects(canvasID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	now := time.Now()
	if existing, ok := objects[object.ID]; ok {
		object.CreatedAt = existing.CreatedAt
	} else if object.CreatedAt.IsZero() {
		object.CreatedAt = now
	}
	object.UpdatedAt = now
	objects[object.ID] = *object

	err = s.writeObjects(canvasID, objects)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.Publish(core.Snapshot{CanvasID: canvasID, Objects: objects})
	return nil
}

func (s *fsStore) DeleteObject(ctx context.Context, canvasID, objectID string) error {
	s.mu.Lock()
	objects, err := s.readObjects(canvasID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := objects[objectID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("object with id %s not found in canvas %s", objectID, canvasID)
	}
	delete(objects, objectID)

	err = s.writeObjects(canvasID, objects)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hub.Publish(core.Snapshot{CanvasID: canvasID, Objects: objects})
	return nil
}

func (s *fsStore) Subscribe(canvasID string, fn func(core.Snapshot)) func() {
	return s.hub.Subscribe(canvasID, fn)
}

// readObjects loads the object document of a canvas. Caller holds s.mu.
func (s *fsStore) readObjects(canvasID string) (map[string]core.Object, error) {
	path, err := s.objectsPath(canvasID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]core.Object{}, nil
		}
		return nil, err
	}
	objects := map[string]core.Object{}
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("failed to decode objects of canvas %s: %w", canvasID, err)
	}
	return objects, nil
}

// writeObjects persists the object document of a canvas. Caller holds s.mu.
func (s *fsStore) writeObjects(canvasID string, objects map[string]core.Object) error {
	path, err := s.objectsPath(canvasID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.WithError(err).Error("Failed to write objects file")
		return err
	}
	return nil
}
