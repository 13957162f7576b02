package objects

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"iconboard/assets"
	"iconboard/core"
	"iconboard/handlers/auth"
	"iconboard/middleware"
	"iconboard/stores/memory"
)

// withClaims injects authenticated-user claims the way the JWT middleware
// would.
func withClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.AppClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
			Login:            "tester",
		}
		ctx := context.WithValue(r.Context(), middleware.ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestRouter(store core.ObjectStore) http.Handler {
	assetSvc := assets.NewService(memory.NewAssetStore())
	r := chi.NewRouter()
	r.Use(withClaims)
	r.Route("/canvases/{canvasID}/objects", func(r chi.Router) {
		r.Get("/", HandleList(store))
		r.Put("/", HandleSave(store, assetSvc))
		r.Post("/flatten", HandleFlatten(store))
		r.Route("/{objectID}", func(r chi.Router) {
			r.Delete("/", HandleDelete(store))
			r.Post("/toggle-lock", HandleToggleLock(store))
		})
	})
	return r
}

func newSeededStore(t *testing.T, objects ...core.Object) core.ObjectStore {
	t.Helper()
	s := memory.NewStore()
	for i := range objects {
		if err := s.SaveObject(context.Background(), "c1", &objects[i]); err != nil {
			t.Fatalf("seeding object failed: %v", err)
		}
	}
	return s
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleSave_CreatesObject(t *testing.T) {
	store := newSeededStore(t)
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodPut, "/canvases/c1/objects/", core.Object{
		Type: core.TypeRectangle, X: 1, Y: 2, Width: 10, Height: 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var created core.Object
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" {
		t.Error("server should assign an ID to a new object")
	}
	if created.CreatedBy != "user-1" {
		t.Errorf("CreatedBy = %q, want user-1", created.CreatedBy)
	}
}

func TestHandleSave_RejectsInvalidType(t *testing.T) {
	store := newSeededStore(t)
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodPut, "/canvases/c1/objects/", map[string]interface{}{
		"type": "hexagon",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSave_RejectsNegativeRadius(t *testing.T) {
	store := newSeededStore(t)
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodPut, "/canvases/c1/objects/", map[string]interface{}{
		"type":   "circle",
		"radius": -3,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleList_ReturnsSeededObjects(t *testing.T) {
	store := newSeededStore(t,
		core.Object{ID: "a", Type: core.TypeRectangle, X: 10, Y: 10, Width: 10, Height: 10},
		core.Object{ID: "b", Type: core.TypeRectangle, X: 9000, Y: 9000, Width: 10, Height: 10},
	)
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodGet, "/canvases/c1/objects/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var objects []core.Object
	if err := json.Unmarshal(rec.Body.Bytes(), &objects); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(objects) != 2 {
		t.Errorf("listed %d objects, want 2 without a view transform", len(objects))
	}
}

func TestHandleList_ViewportCulling(t *testing.T) {
	store := newSeededStore(t,
		core.Object{ID: "near", Type: core.TypeRectangle, X: 10, Y: 10, Width: 10, Height: 10},
		core.Object{ID: "far", Type: core.TypeRectangle, X: 9000, Y: 9000, Width: 10, Height: 10},
	)
	router := newTestRouter(store)

	path := "/canvases/c1/objects/?scale=1&offsetX=0&offsetY=0&screenWidth=100&screenHeight=100"
	rec := doJSON(t, router, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var objects []core.Object
	if err := json.Unmarshal(rec.Body.Bytes(), &objects); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(objects) != 1 || objects[0].ID != "near" {
		t.Errorf("culled list = %v, want just the near object", objects)
	}
}

func TestHandleDelete(t *testing.T) {
	store := newSeededStore(t, core.Object{ID: "a", Type: core.TypeCircle, Radius: 1})
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodDelete, "/canvases/c1/objects/a", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = doJSON(t, router, http.MethodDelete, "/canvases/c1/objects/a", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleToggleLock_CascadesThroughGroup(t *testing.T) {
	store := newSeededStore(t,
		core.Object{ID: "group", Type: core.TypeGroup},
		core.Object{ID: "leaf", Type: core.TypeRectangle, ParentID: "group"},
	)
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/canvases/c1/objects/group/toggle-lock", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}

	var changed []core.Object
	if err := json.Unmarshal(rec.Body.Bytes(), &changed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("toggle changed %d objects, want 2", len(changed))
	}
	for _, obj := range changed {
		if obj.Locked == nil || !*obj.Locked {
			t.Errorf("object %q should be locked after cascade", obj.ID)
		}
	}

	objects, err := store.ListObjects(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListObjects() failed: %v", err)
	}
	for _, obj := range objects {
		if obj.Locked == nil || !*obj.Locked {
			t.Errorf("persisted object %q should be locked", obj.ID)
		}
	}
}

func TestHandleToggleLock_MissingObject(t *testing.T) {
	store := newSeededStore(t)
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/canvases/c1/objects/ghost/toggle-lock", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleFlatten_RepairsAndIsIdempotent(t *testing.T) {
	store := newSeededStore(t,
		core.Object{ID: "rect", Type: core.TypeRectangle},
		core.Object{ID: "child", Type: core.TypeCircle, Radius: 1, ParentID: "rect"},
	)
	router := newTestRouter(store)

	for pass, wantCount := range []int{1, 0} {
		rec := doJSON(t, router, http.MethodPost, "/canvases/c1/objects/flatten", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("pass %d status = %d, want %d", pass, rec.Code, http.StatusOK)
		}
		var result struct {
			FlattenedCount int `json:"flattenedCount"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.FlattenedCount != wantCount {
			t.Errorf("pass %d flattenedCount = %d, want %d", pass, result.FlattenedCount, wantCount)
		}
	}
}

func TestHandleSave_ImageSrcPreserved(t *testing.T) {
	store := newSeededStore(t)
	router := newTestRouter(store)

	// A small data URI stays inlined.
	src := "data:image/png;base64,aWNvbg=="
	rec := doJSON(t, router, http.MethodPut, "/canvases/c1/objects/", core.Object{
		Type: core.TypeImage, Src: src, Width: 4, Height: 4,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var created core.Object
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.Src != src {
		t.Errorf("Src = %q, want the inline data URI preserved", created.Src)
	}
}

func TestViewFromQuery_PartialParamsIgnored(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?scale=1&offsetX=0", nil)
	if view := viewFromQuery(req); view != nil {
		t.Errorf("viewFromQuery() = %+v, want nil for partial parameters", view)
	}

	req = httptest.NewRequest(http.MethodGet, "/?scale=1&offsetX=0&offsetY=x&screenWidth=1&screenHeight=1", nil)
	if view := viewFromQuery(req); view != nil {
		t.Error("viewFromQuery() should reject unparsable values")
	}
}

