package core

import (
	"context"
	"time"
)

// ObjectType discriminates the canvas object union. Bounds derivation and
// group semantics switch on it.
type ObjectType string

const (
	TypeRectangle ObjectType = "rectangle"
	TypeCircle    ObjectType = "circle"
	TypeLine      ObjectType = "line"
	TypeText      ObjectType = "text"
	TypeImage     ObjectType = "image"
	TypeGroup     ObjectType = "group"
)

// ObjectTypes lists every valid object type, in a stable order.
var ObjectTypes = []ObjectType{TypeRectangle, TypeCircle, TypeLine, TypeText, TypeImage, TypeGroup}

type (
	// Object is a single visual element of a canvas. The ID is the sole join
	// key across storage, caching and locking; it never changes once created.
	Object struct {
		ID       string     `json:"id"`
		Type     ObjectType `json:"type"`
		ParentID string     `json:"parentId,omitempty"` // only group objects validly own children

		// Locked and Visible are tri-state: nil means unlocked / visible.
		Locked  *bool `json:"locked,omitempty"`
		Visible *bool `json:"visible,omitempty"`

		X      float64   `json:"x"`
		Y      float64   `json:"y"`
		Width  float64   `json:"width,omitempty"`
		Height float64   `json:"height,omitempty"`
		Radius float64   `json:"radius,omitempty"`
		Points []float64 `json:"points,omitempty"`

		Text string `json:"text,omitempty"`
		Src  string `json:"src,omitempty"` // image source: URL or data URI

		StrokeWidth float64 `json:"strokeWidth,omitempty"`
		ShadowBlur  float64 `json:"shadowBlur,omitempty"`
		ZIndex      int     `json:"zIndex"`

		CreatedBy string    `json:"createdBy,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Snapshot is a point-in-time payload of a canvas's full object set, as
	// delivered to subscribers of an ObjectStore.
	Snapshot struct {
		CanvasID string
		Objects  map[string]Object
	}

	// ObjectStore is the realtime object store contract: per-object CRUD plus
	// a subscription feed that delivers a Snapshot after every write. Snapshot
	// delivery is at-least-once with no ordering guarantee beyond the store's
	// native behavior; merge semantics are last-write-wins.
	ObjectStore interface {
		ListObjects(ctx context.Context, canvasID string) ([]Object, error)
		SaveObject(ctx context.Context, canvasID string, object *Object) error
		DeleteObject(ctx context.Context, canvasID, objectID string) error

		// Subscribe registers fn for snapshot events on a canvas and returns an
		// unsubscribe function. fn may be invoked from the writer's goroutine.
		Subscribe(canvasID string, fn func(Snapshot)) (unsubscribe func())
	}

	// StoredAsset identifies an uploaded blob: URL for consumers, Path for
	// later deletion.
	StoredAsset struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}

	// AssetStore persists binary assets that are too large to inline into an
	// object record.
	AssetStore interface {
		Upload(ctx context.Context, data []byte, contentType string) (*StoredAsset, error)
		Delete(ctx context.Context, path string) error
	}
)

// OwnLocked reports the object's own lock flag; absence means unlocked.
// Effective lock state additionally considers ancestors, see the hierarchy
// package.
func (o *Object) OwnLocked() bool {
	return o.Locked != nil && *o.Locked
}

// OwnVisible reports the object's own visibility flag; absence means visible.
func (o *Object) OwnVisible() bool {
	return o.Visible == nil || *o.Visible
}

// Bool returns a pointer to v, for the tri-state Locked/Visible fields.
func Bool(v bool) *bool {
	return &v
}

// IndexByID builds an id-keyed map over objects. Later duplicates win, which
// matches the store's last-write-wins behavior.
func IndexByID(objects []Object) map[string]Object {
	m := make(map[string]Object, len(objects))
	for _, o := range objects {
		m[o.ID] = o
	}
	return m
}
