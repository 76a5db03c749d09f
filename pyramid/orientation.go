package pyramid

import (
	"fmt"
	"image"
)

// Orientation is a clockwise quarter-turn rotation applied to the source file
// before display.
type Orientation int

const (
	Orientation0   Orientation = 0
	Orientation90  Orientation = 90
	Orientation180 Orientation = 180
	Orientation270 Orientation = 270
)

// ParseOrientation validates degrees and converts them to an Orientation.
func ParseOrientation(degrees int) (Orientation, error) {
	o := Orientation(degrees)
	if !o.Valid() {
		return 0, fmt.Errorf("invalid orientation: %d", degrees)
	}
	return o, nil
}

// Valid reports whether o is one of the four supported rotations.
func (o Orientation) Valid() bool {
	switch o {
	case Orientation0, Orientation90, Orientation180, Orientation270:
		return true
	}
	return false
}

// SwapsAxes reports whether o exchanges width and height.
func (o Orientation) SwapsAxes() bool {
	return o == Orientation90 || o == Orientation270
}

// Size returns the displayed dimensions of a file of the given size.
func (o Orientation) Size(file image.Point) image.Point {
	if o.SwapsAxes() {
		return image.Pt(file.Y, file.X)
	}
	return file
}

// FileRect converts a rectangle in displayed (rotation normalised)
// coordinates to the rectangle of the file that must be decoded to produce
// it. file is the unrotated file size.
func (o Orientation) FileRect(r image.Rectangle, file image.Point) image.Rectangle {
	w, h := file.X, file.Y
	switch o {
	case Orientation90:
		return image.Rect(r.Min.Y, h-r.Max.X, r.Max.Y, h-r.Min.X)
	case Orientation180:
		return image.Rect(w-r.Max.X, h-r.Max.Y, w-r.Min.X, h-r.Min.Y)
	case Orientation270:
		return image.Rect(w-r.Max.Y, r.Min.X, w-r.Min.Y, r.Max.X)
	default:
		return r
	}
}
