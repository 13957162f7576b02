package objects

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"iconboard/assets"
	"iconboard/core"
	"iconboard/geometry"
	"iconboard/handlers/auth"
	"iconboard/hierarchy"
	"iconboard/middleware"
)

// validateObject checks an incoming object payload before it reaches the
// store. The ID is assigned server-side when absent, so only the shape
// fields are validated here.
func validateObject(obj *core.Object) error {
	types := make([]interface{}, len(core.ObjectTypes))
	for i, t := range core.ObjectTypes {
		types[i] = t
	}
	return validation.ValidateStruct(obj,
		validation.Field(&obj.Type, validation.Required, validation.In(types...)),
		validation.Field(&obj.Radius, validation.Min(0.0)),
		validation.Field(&obj.Width, validation.Min(0.0)),
		validation.Field(&obj.Height, validation.Min(0.0)),
		validation.Field(&obj.StrokeWidth, validation.Min(0.0)),
		validation.Field(&obj.ShadowBlur, validation.Min(0.0)),
	)
}

// viewFromQuery builds a culling view state from query parameters. All five
// parameters must be present; otherwise no culling is applied.
func viewFromQuery(r *http.Request) *geometry.ViewState {
	q := r.URL.Query()
	params := []string{"scale", "offsetX", "offsetY", "screenWidth", "screenHeight"}
	values := make([]float64, len(params))
	for i, name := range params {
		raw := q.Get(name)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		values[i] = v
	}
	return &geometry.ViewState{
		Scale:        values[0],
		OffsetX:      values[1],
		OffsetY:      values[2],
		ScreenWidth:  values[3],
		ScreenHeight: values[4],
	}
}

// HandleList returns the objects of a canvas, culled to the viewport when
// the query carries a view transform.
func HandleList(store core.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvasID")

		objects, err := store.ListObjects(r.Context(), canvasID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "canvas_id": canvasID}).Error("Failed to list objects")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list objects"})
			return
		}

		objects = geometry.FilterVisible(objects, viewFromQuery(r))
		render.JSON(w, r, objects)
	}
}

// HandleSave validates and persists one object. Oversized inline image
// payloads are moved to the asset store before the object is written.
func HandleSave(store core.ObjectStore, assetSvc *assets.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(middleware.ClaimsContextKey).(*auth.AppClaims)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User claims not found"})
			return
		}
		canvasID := chi.URLParam(r, "canvasID")

		var obj core.Object
		if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
			logrus.WithField("error", err).Error("Failed to decode object")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid object payload"})
			return
		}

		if err := validateObject(&obj); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": err.Error()})
			return
		}

		isCreate := obj.ID == ""
		if isCreate {
			obj.ID = ulid.Make().String()
			obj.CreatedBy = claims.Subject
		}

		if obj.Type == core.TypeImage && obj.Src != "" {
			src, err := assetSvc.Normalize(r.Context(), obj.Src)
			if err != nil {
				logrus.WithFields(logrus.Fields{"error": err, "object_id": obj.ID}).Error("Failed to store image asset")
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, map[string]string{"error": "Failed to store image asset"})
				return
			}
			obj.Src = src
		}

		if err := store.SaveObject(r.Context(), canvasID, &obj); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"canvas_id": canvasID,
				"object_id": obj.ID,
			}).Error("Failed to save object")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to save object"})
			return
		}

		if isCreate {
			render.Status(r, http.StatusCreated)
		}
		render.JSON(w, r, obj)
	}
}

// HandleDelete removes one object.
func HandleDelete(store core.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvasID")
		objectID := chi.URLParam(r, "objectID")

		if err := store.DeleteObject(r.Context(), canvasID, objectID); err != nil {
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"canvas_id": canvasID,
				"object_id": objectID,
			}).Warn("Failed to delete object")
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Object not found"})
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleToggleLock flips the lock flag of an object; for groups the new
// value cascades to every current descendant as one logical operation.
func HandleToggleLock(store core.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvasID")
		objectID := chi.URLParam(r, "objectID")

		objects, err := store.ListObjects(r.Context(), canvasID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "canvas_id": canvasID}).Error("Failed to list objects")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to load canvas objects"})
			return
		}

		changed := hierarchy.ToggleLock(objectID, core.IndexByID(objects))
		if changed == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Object not found"})
			return
		}

		for i := range changed {
			if err := store.SaveObject(r.Context(), canvasID, &changed[i]); err != nil {
				logrus.WithFields(logrus.Fields{
					"error":     err,
					"canvas_id": canvasID,
					"object_id": changed[i].ID,
				}).Error("Failed to persist lock toggle")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to persist lock toggle"})
				return
			}
		}

		render.JSON(w, r, changed)
	}
}

// HandleFlatten runs the one-time structural repair pass that promotes
// children of non-group parents to root.
func HandleFlatten(store core.ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvasID")

		objects, err := store.ListObjects(r.Context(), canvasID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "canvas_id": canvasID}).Error("Failed to list objects")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to load canvas objects"})
			return
		}

		result := hierarchy.FlattenNonGroupHierarchies(objects)
		index := core.IndexByID(result.Objects)
		for _, id := range result.FlattenedIDs {
			obj := index[id]
			if err := store.SaveObject(r.Context(), canvasID, &obj); err != nil {
				logrus.WithFields(logrus.Fields{
					"error":     err,
					"canvas_id": canvasID,
					"object_id": id,
				}).Error("Failed to persist flattened object")
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to persist flattened objects"})
				return
			}
		}

		logrus.WithFields(logrus.Fields{
			"canvas_id": canvasID,
			"flattened": result.FlattenedCount,
		}).Info("Flatten migration completed")

		render.JSON(w, r, map[string]interface{}{
			"flattenedCount": result.FlattenedCount,
			"flattenedIds":   result.FlattenedIDs,
		})
	}
}
