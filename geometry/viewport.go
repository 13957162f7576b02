package geometry

import "iconboard/core"

// DefaultViewportPadding expands the culling viewport on all sides so that
// near-offscreen content is loaded before it scrolls into view.
const DefaultViewportPadding = 100

// ViewState is a uniform pan/zoom transform from object space to screen
// space: screen = object*Scale + Offset.
type ViewState struct {
	Scale        float64 `json:"scale"`
	OffsetX      float64 `json:"offsetX"`
	OffsetY      float64 `json:"offsetY"`
	ScreenWidth  float64 `json:"screenWidth"`
	ScreenHeight float64 `json:"screenHeight"`
}

// ViewportBounds converts the visible screen rectangle into object-space
// coordinates, expanded by padding on all sides.
func ViewportBounds(view ViewState, padding float64) Box {
	scale := view.Scale
	if scale <= 0 {
		scale = 1
	}
	return Box{
		X:      -view.OffsetX/scale - padding,
		Y:      -view.OffsetY/scale - padding,
		Width:  view.ScreenWidth/scale + 2*padding,
		Height: view.ScreenHeight/scale + 2*padding,
	}
}

// InViewport reports whether the object's bounds intersect the padded
// viewport.
func InViewport(obj core.Object, view ViewState, padding float64) bool {
	return Bounds(obj).Intersects(ViewportBounds(view, padding))
}

// FilterVisible returns the objects whose bounds intersect the viewport. A
// nil view means no transform is available yet (e.g. before first render)
// and all objects pass through unfiltered.
func FilterVisible(objects []core.Object, view *ViewState) []core.Object {
	if view == nil {
		return objects
	}
	visible := make([]core.Object, 0, len(objects))
	for _, obj := range objects {
		if InViewport(obj, *view, DefaultViewportPadding) {
			visible = append(visible, obj)
		}
	}
	return visible
}
