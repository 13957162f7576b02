// Package geometry computes axis-aligned bounding boxes for canvas objects
// and tests them against the current viewport for render scheduling. All
// functions are pure; malformed numeric input must be sanitized upstream.
package geometry

import "iconboard/core"

// Box is an axis-aligned rectangle in object space.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const (
	// lineBoxHeight approximates the vertical extent of a line object. Exact
	// bounds of an arbitrarily rotated segment are deliberately not computed;
	// callers rely on this approximation.
	lineBoxHeight = 10

	// groupBoxSize is the placeholder extent used for group objects.
	// TODO: compute real group bounds as the union of child bounds once the
	// hierarchy walk is cheap enough to run per render pass.
	groupBoxSize = 100
)

// Bounds returns a box fully containing the object's visible extent. Stroke
// width and shadow blur are added as uniform padding on all four sides.
func Bounds(obj core.Object) Box {
	pad := obj.StrokeWidth/2 + obj.ShadowBlur

	switch obj.Type {
	case core.TypeCircle:
		side := 2*obj.Radius + 2*pad
		return Box{
			X:      obj.X - obj.Radius - pad,
			Y:      obj.Y - obj.Radius - pad,
			Width:  side,
			Height: side,
		}
	case core.TypeLine:
		return Box{
			X:      obj.X - pad,
			Y:      obj.Y - pad,
			Width:  obj.Width + 2*pad,
			Height: lineBoxHeight + 2*pad,
		}
	case core.TypeGroup:
		return Box{
			X:      obj.X - pad,
			Y:      obj.Y - pad,
			Width:  groupBoxSize + 2*pad,
			Height: groupBoxSize + 2*pad,
		}
	case core.TypeRectangle, core.TypeText, core.TypeImage:
		return Box{
			X:      obj.X - pad,
			Y:      obj.Y - pad,
			Width:  obj.Width + 2*pad,
			Height: obj.Height + 2*pad,
		}
	default:
		// Unknown types fall back to the rectangular rule rather than
		// disappearing from culling.
		return Box{
			X:      obj.X - pad,
			Y:      obj.Y - pad,
			Width:  obj.Width + 2*pad,
			Height: obj.Height + 2*pad,
		}
	}
}

// Intersects reports whether two boxes overlap, using open-interval
// comparisons: boxes that merely touch at an edge do not intersect.
func (b Box) Intersects(other Box) bool {
	return b.X < other.X+other.Width &&
		b.X+b.Width > other.X &&
		b.Y < other.Y+other.Height &&
		b.Y+b.Height > other.Y
}
