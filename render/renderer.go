// Package render composites a subscale.Frame into an image.
//
// Tiles and bitmaps are stored in file orientation at their sample size.
// Each is drawn with one affine transform combining the subsampling, the
// quarter-turn orientation and the view's scale, translation and rotation.
package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/echoflaresat/subscale"
	"github.com/echoflaresat/subscale/colors"
	"github.com/echoflaresat/subscale/pyramid"
)

// debugAlpha is the opacity of the per-level debug tint.
const debugAlpha = 0.35

// Renderer draws frames. The zero value draws on a transparent background
// with bilinear filtering.
type Renderer struct {
	Background colors.Color4

	// Interpolator resamples tiles. Nil means draw.ApproxBiLinear.
	Interpolator draw.Interpolator

	// Debug tints every tile by its sample size.
	Debug bool
}

// New returns a Renderer with an opaque black background.
func New() *Renderer {
	return &Renderer{Background: colors.Black()}
}

// Render allocates an image of the frame's view size and draws into it.
func (r *Renderer) Render(f subscale.Frame) *image.NRGBA {
	dst := image.NewNRGBA(image.Rectangle{Max: f.ViewSize})
	r.Draw(dst, f)
	return dst
}

// Draw fills dst with the background and composites the frame on top.
func (r *Renderer) Draw(dst draw.Image, f subscale.Frame) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(r.background()), image.Point{}, draw.Src)

	interp := r.Interpolator
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	view := sourceToView(f)

	if f.Bitmap != nil {
		whole := image.Rectangle{Max: f.SourceSize}
		m := mul(view, imageToSource(f.Bitmap.Bounds(), whole, f.Orientation))
		interp.Transform(dst, m, f.Bitmap, f.Bitmap.Bounds(), draw.Over, nil)
	}

	for _, t := range f.Tiles {
		m := mul(view, imageToSource(t.Image.Bounds(), t.SourceRect, f.Orientation))
		interp.Transform(dst, m, t.Image, t.Image.Bounds(), draw.Over, nil)
		if r.Debug {
			tint := colors.LevelTint(t.SampleSize).WithAlpha(debugAlpha).ToNRGBA()
			rect := image.Rect(
				int(math.Floor(t.ViewRect.Min.X)), int(math.Floor(t.ViewRect.Min.Y)),
				int(math.Ceil(t.ViewRect.Max.X)), int(math.Ceil(t.ViewRect.Max.Y)),
			)
			draw.Draw(dst, rect.Intersect(dst.Bounds()), image.NewUniform(tint), image.Point{}, draw.Over)
		}
	}
}

func (r *Renderer) background() color.Color {
	return r.Background.ToNRGBA()
}

// sourceToView maps displayed source coordinates to the view: scale, then
// translate, then rotate about the view centre.
func sourceToView(f subscale.Frame) f64.Aff3 {
	s := f.Transform.State
	st := f64.Aff3{
		s.Scale, 0, s.Translate.X,
		0, s.Scale, s.Translate.Y,
	}
	if s.Rotation == 0 {
		return st
	}
	cx, cy := float64(f.ViewSize.X)/2, float64(f.ViewSize.Y)/2
	sin, cos := math.Sincos(s.Rotation)
	rot := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	return mul(rot, st)
}

// imageToSource maps the pixels of an image holding the file content of
// the displayed rectangle dst onto dst.
func imageToSource(b, dst image.Rectangle, o pyramid.Orientation) f64.Aff3 {
	file := o.Size(dst.Size())
	fw, fh := float64(file.X), float64(file.Y)
	kx := fw / float64(b.Dx())
	ky := fh / float64(b.Dy())

	// Image pixels to file units local to the tile.
	m := f64.Aff3{
		kx, 0, -float64(b.Min.X) * kx,
		0, ky, -float64(b.Min.Y) * ky,
	}

	// File units to displayed units, clockwise rotation.
	var turn f64.Aff3
	switch o {
	case pyramid.Orientation90:
		turn = f64.Aff3{0, -1, fh, 1, 0, 0}
	case pyramid.Orientation180:
		turn = f64.Aff3{-1, 0, fw, 0, -1, fh}
	case pyramid.Orientation270:
		turn = f64.Aff3{0, 1, 0, -1, 0, fw}
	default:
		turn = f64.Aff3{1, 0, 0, 0, 1, 0}
	}
	m = mul(turn, m)

	return mul(f64.Aff3{1, 0, float64(dst.Min.X), 0, 1, float64(dst.Min.Y)}, m)
}

// mul returns the transform applying b then a.
func mul(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3],
		a[0]*b[1] + a[1]*b[4],
		a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3],
		a[3]*b[1] + a[4]*b[4],
		a[3]*b[2] + a[4]*b[5] + a[5],
	}
}
