package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"iconboard/core"
	"iconboard/stores/pubsub"
)

type sqliteStore struct {
	db  *sql.DB
	hub *pubsub.Hub
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	canvasTableStmt := `
	CREATE TABLE IF NOT EXISTS canvases (
		id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		name TEXT,
		thumbnail TEXT,
		data BLOB,
		created_at DATETIME,
		updated_at DATETIME,
		PRIMARY KEY (user_id, id)
	);`
	if _, err = db.Exec(canvasTableStmt); err != nil {
		log.Fatalf("failed to create canvases table: %v", err)
	}

	objectTableStmt := `
	CREATE TABLE IF NOT EXISTS objects (
		canvas_id TEXT NOT NULL,
		id TEXT NOT NULL,
		data BLOB,
		PRIMARY KEY (canvas_id, id)
	);`
	if _, err = db.Exec(objectTableStmt); err != nil {
		log.Fatalf("failed to create objects table: %v", err)
	}

	return &sqliteStore{db: db, hub: pubsub.NewHub()}
}

// CanvasStore implementation

func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Canvas, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, thumbnail, created_at, updated_at FROM canvases WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		logrus.WithError(err).Error("Failed to list canvases")
		return nil, err
	}
	defer rows.Close()

	canvases := []*core.Canvas{}
	for rows.Next() {
		canvas := &core.Canvas{}
		if err := rows.Scan(&canvas.ID, &canvas.UserID, &canvas.Name, &canvas.Thumbnail, &canvas.CreatedAt, &canvas.UpdatedAt); err != nil {
			return nil, err
		}
		canvases = append(canvases, canvas)
	}
	return canvases, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Canvas, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "canvas_id": id})
	canvas := &core.Canvas{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, thumbnail, data, created_at, updated_at FROM canvases WHERE user_id = ? AND id = ?",
		userID, id).Scan(&canvas.ID, &canvas.UserID, &canvas.Name, &canvas.Thumbnail, &canvas.Data, &canvas.CreatedAt, &canvas.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn("Canvas not found for user")
			return nil, fmt.Errorf("canvas with id %s not found for user %s", id, userID)
		}
		log.WithError(err).Error("Failed to retrieve canvas")
		return nil, err
	}
	log.Info("Canvas retrieved successfully")
	return canvas, nil
}

func (s *sqliteStore) Save(ctx context.Context, canvas *core.Canvas) error {
	if canvas.UserID == "" || canvas.ID == "" {
		return fmt.Errorf("UserID and ID are required to save a canvas")
	}

	now := time.Now()
	canvas.UpdatedAt = now
	if canvas.CreatedAt.IsZero() {
		canvas.CreatedAt = now
	}

	stmt := `
	INSERT INTO canvases (id, user_id, name, thumbnail, data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, id) DO UPDATE SET
		name = excluded.name,
		thumbnail = excluded.thumbnail,
		data = excluded.data,
		updated_at = excluded.updated_at;`
	_, err := s.db.ExecContext(ctx, stmt, canvas.ID, canvas.UserID, canvas.Name, canvas.Thumbnail, canvas.Data, canvas.CreatedAt, canvas.UpdatedAt)
	if err != nil {
		logrus.WithError(err).Error("Failed to save canvas")
		return err
	}

	logrus.WithFields(logrus.Fields{"user_id": canvas.UserID, "canvas_id": canvas.ID}).Info("Canvas saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM canvases WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete canvas")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("canvas with id %s not found for user %s", id, userID)
	}

	// Objects of a deleted canvas go with it.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE canvas_id = ?", id); err != nil {
		logrus.WithError(err).Warn("Failed to delete objects of removed canvas")
	}
	return nil
}

// ObjectStore implementation. Object rows carry the full object as JSON;
// per-field columns would buy nothing since the merge layer always works on
// whole objects.

func (s *sqliteStore) ListObjects(ctx context.Context, canvasID string) ([]core.Object, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM objects WHERE canvas_id = ? ORDER BY id", canvasID)
	if err != nil {
		logrus.WithError(err).Error("Failed to list objects")
		return nil, err
	}
	defer rows.Close()

	objects := []core.Object{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var obj core.Object
		if err := json.Unmarshal(data, &obj); err != nil {
			logrus.WithError(err).Warn("Skipping undecodable object row")
			continue
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

func (s *sqliteStore) SaveObject(ctx context.Context, canvasID string, object *core.Object) error {
	if object.ID == "" {
		return fmt.Errorf("object ID cannot be empty")
	}

	now := time.Now()
	if object.CreatedAt.IsZero() {
		object.CreatedAt = now
	}
	object.UpdatedAt = now

	data, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("failed to encode object %s: %w", object.ID, err)
	}

	stmt := `
	INSERT INTO objects (canvas_id, id, data) VALUES (?, ?, ?)
	ON CONFLICT (canvas_id, id) DO UPDATE SET data = excluded.data;`
	if _, err := s.db.ExecContext(ctx, stmt, canvasID, object.ID, data); err != nil {
		logrus.WithError(err).Error("Failed to save object")
		return err
	}

	return s.publish(ctx, canvasID)
}

func (s *sqliteStore) DeleteObject(ctx context.Context, canvasID, objectID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE canvas_id = ? AND id = ?", canvasID, objectID)
	if err != nil {
		logrus.WithError(err).Error("Failed to delete object")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("object with id %s not found in canvas %s", objectID, canvasID)
	}

	return s.publish(ctx, canvasID)
}

func (s *sqliteStore) Subscribe(canvasID string, fn func(core.Snapshot)) func() {
	return s.hub.Subscribe(canvasID, fn)
}

func (s *sqliteStore) publish(ctx context.Context, canvasID string) error {
	objects, err := s.ListObjects(ctx, canvasID)
	if err != nil {
		return err
	}
	s.hub.Publish(core.Snapshot{CanvasID: canvasID, Objects: core.IndexByID(objects)})
	return nil
}
