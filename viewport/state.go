// Package viewport holds the pan/zoom/rotation state of a view over a source
// image, the rules that keep it within bounds, and the transforms between
// view and source coordinates.
package viewport

import (
	"image"
	"math"

	"github.com/echoflaresat/subscale/vectors"
)

// State is the scale, translation and rotation mapping source pixels to view
// pixels.
//
// A source point s is shown at view point
//
//	rotate(s*Scale + Translate, Rotation) about the view centre.
type State struct {
	Scale     float64
	Translate vectors.Vec2

	// Rotation in radians, clockwise on screen.
	Rotation float64
}

// Padding insets the area the image is centred in. Left/Right and
// Top/Bottom ratios also decide where a smaller-than-view image rests.
type Padding struct {
	Left, Top, Right, Bottom int
}

// ScaleForDPI returns the scale at which a source pixel is shown at
// minimumDPI on a display of displayDPI.
func ScaleForDPI(displayDPI, minimumDPI float64) float64 {
	if displayDPI <= 0 || minimumDPI <= 0 {
		return 1
	}
	return displayDPI / minimumDPI
}

// RectF is an axis-aligned rectangle in floating point source or view
// coordinates.
type RectF struct {
	Min, Max vectors.Vec2
}

// Dx returns the width.
func (r RectF) Dx() float64 { return r.Max.X - r.Min.X }

// Dy returns the height.
func (r RectF) Dy() float64 { return r.Max.Y - r.Min.Y }

// Overlaps reports whether r and the integer rectangle q share any point.
// Touching edges count as overlapping so a tile on the viewport border is
// loaded before it scrolls in.
func (r RectF) Overlaps(q image.Rectangle) bool {
	return !(r.Min.X > float64(q.Max.X) ||
		float64(q.Min.X) > r.Max.X ||
		r.Min.Y > float64(q.Max.Y) ||
		float64(q.Min.Y) > r.Max.Y)
}

// Bounding returns the smallest RectF holding every point.
func Bounding(points ...vectors.Vec2) RectF {
	r := RectF{
		Min: vectors.Vec2{X: math.Inf(1), Y: math.Inf(1)},
		Max: vectors.Vec2{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range points {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}
