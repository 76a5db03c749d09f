package viewport

import (
	"image"

	"github.com/echoflaresat/subscale/vectors"
)

// Transform converts between view and source coordinates for one State.
type Transform struct {
	State    State
	ViewSize image.Point
}

func (t Transform) center() vectors.Vec2 {
	return vectors.Vec2{X: float64(t.ViewSize.X) / 2, Y: float64(t.ViewSize.Y) / 2}
}

// SourceToView maps a source point to the view.
func (t Transform) SourceToView(s vectors.Vec2) vectors.Vec2 {
	v := s.Scale(t.State.Scale).Add(t.State.Translate)
	return v.RotateAround(t.center(), t.State.Rotation)
}

// ViewToSource maps a view point back to the source. It returns NaN
// components when the scale is zero.
func (t Transform) ViewToSource(v vectors.Vec2) vectors.Vec2 {
	if t.State.Scale == 0 {
		return vectors.NaN()
	}
	v = v.RotateAround(t.center(), -t.State.Rotation)
	return v.Sub(t.State.Translate).Scale(1 / t.State.Scale)
}

// SourceToViewRect returns the view-space bounding box of a source
// rectangle. Without rotation it is the exact image of the rectangle.
func (t Transform) SourceToViewRect(r image.Rectangle) RectF {
	return Bounding(
		t.SourceToView(vectors.Vec2{X: float64(r.Min.X), Y: float64(r.Min.Y)}),
		t.SourceToView(vectors.Vec2{X: float64(r.Max.X), Y: float64(r.Min.Y)}),
		t.SourceToView(vectors.Vec2{X: float64(r.Max.X), Y: float64(r.Max.Y)}),
		t.SourceToView(vectors.Vec2{X: float64(r.Min.X), Y: float64(r.Max.Y)}),
	)
}

// VisibleSourceRect returns the source-space bounding box of the four view
// corners.
func (t Transform) VisibleSourceRect() RectF {
	w, h := float64(t.ViewSize.X), float64(t.ViewSize.Y)
	return Bounding(
		t.ViewToSource(vectors.Vec2{X: 0, Y: 0}),
		t.ViewToSource(vectors.Vec2{X: w, Y: 0}),
		t.ViewToSource(vectors.Vec2{X: w, Y: h}),
		t.ViewToSource(vectors.Vec2{X: 0, Y: h}),
	)
}

// Center returns the source point under the centre of the view.
func (t Transform) Center() vectors.Vec2 {
	return t.ViewToSource(t.center())
}
