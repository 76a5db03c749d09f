package viewport

import (
	"image"
	"math"

	"github.com/echoflaresat/subscale/vectors"
)

// Bounds describes the limits a State must respect for a given view and
// source.
type Bounds struct {
	ViewSize image.Point

	// SourceSize is the displayed (orientation normalised) source size.
	SourceSize image.Point

	Padding Padding

	// MinScale overrides the derived fit scale when positive.
	MinScale float64
	MaxScale float64
}

// Ready reports whether both view and source have a usable size.
func (b Bounds) Ready() bool {
	return b.ViewSize.X > 0 && b.ViewSize.Y > 0 && b.SourceSize.X > 0 && b.SourceSize.Y > 0
}

// FitScale returns the scale at which the whole source fits inside the
// padded view.
func (b Bounds) FitScale() float64 {
	if b.SourceSize.X <= 0 || b.SourceSize.Y <= 0 {
		return 1
	}
	hPad := b.Padding.Left + b.Padding.Right
	vPad := b.Padding.Top + b.Padding.Bottom
	return math.Min(
		float64(b.ViewSize.X-hPad)/float64(b.SourceSize.X),
		float64(b.ViewSize.Y-vPad)/float64(b.SourceSize.Y),
	)
}

// MinScaleValue returns the effective minimum scale.
func (b Bounds) MinScaleValue() float64 {
	if b.MinScale > 0 {
		return b.MinScale
	}
	return b.FitScale()
}

// LimitedScale clamps scale to [MinScaleValue, MaxScale]. MaxScale wins when
// the two conflict.
func (b Bounds) LimitedScale(scale float64) float64 {
	scale = math.Max(b.MinScaleValue(), scale)
	if b.MaxScale > 0 {
		scale = math.Min(b.MaxScale, scale)
	}
	return scale
}

func (b Bounds) paddingRatios() (float64, float64) {
	xRatio, yRatio := 0.5, 0.5
	if b.Padding.Left > 0 || b.Padding.Right > 0 {
		xRatio = float64(b.Padding.Left) / float64(b.Padding.Left+b.Padding.Right)
	}
	if b.Padding.Top > 0 || b.Padding.Bottom > 0 {
		yRatio = float64(b.Padding.Top) / float64(b.Padding.Top+b.Padding.Bottom)
	}
	return xRatio, yRatio
}

// FitToBounds clamps the scale of s and adjusts its translation so the image
// stays in view.
//
// With center set the image covers the view wherever it is larger than the
// view, and is placed according to the padding ratios where it is smaller.
// Without it the image may be panned up to the view edge.
func (b Bounds) FitToBounds(center bool, s State) State {
	scale := b.LimitedScale(s.Scale)
	scaledW := scale * float64(b.SourceSize.X)
	scaledH := scale * float64(b.SourceSize.Y)
	w, h := float64(b.ViewSize.X), float64(b.ViewSize.Y)

	t := s.Translate
	if center {
		t.X = math.Max(t.X, w-scaledW)
		t.Y = math.Max(t.Y, h-scaledH)
	} else {
		t.X = math.Max(t.X, -scaledW)
		t.Y = math.Max(t.Y, -scaledH)
	}

	var maxX, maxY float64
	if center {
		xRatio, yRatio := b.paddingRatios()
		maxX = math.Max(0, (w-scaledW)*xRatio)
		maxY = math.Max(0, (h-scaledH)*yRatio)
	} else {
		maxX = math.Max(0, w)
		maxY = math.Max(0, h)
	}
	t.X = math.Min(t.X, maxX)
	t.Y = math.Min(t.Y, maxY)

	return State{Scale: scale, Translate: t, Rotation: s.Rotation}
}

// paddedCenter is the view point the image centre is aligned to.
func (b Bounds) paddedCenter() vectors.Vec2 {
	p := b.Padding
	return vectors.Vec2{
		X: float64(p.Left) + float64(b.ViewSize.X-p.Right-p.Left)/2,
		Y: float64(p.Top) + float64(b.ViewSize.Y-p.Bottom-p.Top)/2,
	}
}

// TranslateForCenter returns the translation that shows source point c at
// the padded view centre at the given scale, fitted to bounds.
func (b Bounds) TranslateForCenter(c vectors.Vec2, scale float64) vectors.Vec2 {
	s := State{
		Scale:     scale,
		Translate: b.paddedCenter().Sub(c.Scale(scale)),
	}
	return b.FitToBounds(true, s).Translate
}

// LimitedCenter returns the source point closest to c that can actually sit
// at the padded view centre at the given scale.
func (b Bounds) LimitedCenter(c vectors.Vec2, scale float64) vectors.Vec2 {
	t := b.TranslateForCenter(c, scale)
	if scale == 0 {
		return c
	}
	return b.paddedCenter().Sub(t).Scale(1 / scale)
}

// StateForCenter returns the fitted state showing c at the padded view
// centre at the given scale.
func (b Bounds) StateForCenter(c vectors.Vec2, scale, rotation float64) State {
	scale = b.LimitedScale(scale)
	return State{
		Scale:     scale,
		Translate: b.TranslateForCenter(c, scale),
		Rotation:  rotation,
	}
}

// Initial returns the state shown when an image first appears: minimum scale,
// centred.
func (b Bounds) Initial() State {
	c := vectors.Vec2{X: float64(b.SourceSize.X) / 2, Y: float64(b.SourceSize.Y) / 2}
	return b.StateForCenter(c, b.MinScaleValue(), 0)
}
