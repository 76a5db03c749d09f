package vectors

import "math"

// Vec2 is a simple 2D vector with float64 components.
type Vec2 struct {
	X, Y float64
}

func Zero() Vec2 {
	return Vec2{X: 0.0, Y: 0.0}
}

// NaN returns a vector with both components set to NaN, used for
// coordinates that cannot be computed yet.
func NaN() Vec2 {
	return Vec2{X: math.NaN(), Y: math.NaN()}
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

// Scale returns v * s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// Dot returns the dot product v · o.
func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Norm returns the Euclidean length ||v||.
func (v Vec2) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Rotate returns v rotated by angle radians (counter-clockwise in a y-up
// frame, clockwise on screen).
func (v Vec2) Rotate(angle float64) Vec2 {
	if angle == 0 {
		return v
	}
	sin, cos := math.Sincos(angle)
	return Vec2{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// RotateAround rotates v by angle radians about the pivot c.
func (v Vec2) RotateAround(c Vec2, angle float64) Vec2 {
	if angle == 0 {
		return v
	}
	return v.Sub(c).Rotate(angle).Add(c)
}

// IsNaN reports whether either component is NaN.
func (v Vec2) IsNaN() bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y)
}

// Distance returns the euclidean distance between v and o.
func (v Vec2) Distance(o Vec2) float64 {
	return v.Sub(o).Norm()
}
