package viewport

import (
	"image"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/echoflaresat/subscale/vectors"
)

const eps = 1e-6

func near(a, b float64) bool {
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestScaleForDPI(t *testing.T) {
	if got := ScaleForDPI(320, 160); got != 2 {
		t.Errorf("ScaleForDPI(320, 160) = %v, want 2", got)
	}
	if got := ScaleForDPI(0, 160); got != 1 {
		t.Errorf("ScaleForDPI(0, 160) = %v, want 1", got)
	}
}

func TestBounds_FitScaleWithPadding(t *testing.T) {
	b := Bounds{
		ViewSize:   image.Pt(1000, 800),
		SourceSize: image.Pt(10000, 8000),
		Padding:    Padding{Left: 100, Right: 100},
	}
	if got := b.FitScale(); !near(got, 0.08) {
		t.Errorf("FitScale() = %v, want 0.08", got)
	}
	b.MinScale = 0.5
	if got := b.MinScaleValue(); got != 0.5 {
		t.Errorf("MinScaleValue() = %v, want explicit 0.5", got)
	}
}

func TestBounds_LimitedScale(t *testing.T) {
	b := Bounds{ViewSize: image.Pt(1000, 800), SourceSize: image.Pt(10000, 8000), MaxScale: 2}
	cases := []struct {
		in, want float64
	}{
		{0.01, 0.1},
		{0.5, 0.5},
		{5, 2},
	}
	for _, c := range cases {
		if got := b.LimitedScale(c.in); !near(got, c.want) {
			t.Errorf("LimitedScale(%v) = %v, want %v", c.in, got, c.want)
		}
	}

	// A tiny source whose fit scale exceeds the maximum is capped.
	b.SourceSize = image.Pt(10, 10)
	if got := b.LimitedScale(1); got != 2 {
		t.Errorf("LimitedScale on tiny source = %v, want MaxScale", got)
	}
}

func TestBounds_FitToBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for range 2000 {
		b := Bounds{
			ViewSize:   image.Pt(1+rng.IntN(3000), 1+rng.IntN(3000)),
			SourceSize: image.Pt(1+rng.IntN(50000), 1+rng.IntN(50000)),
		}
		b.MaxScale = b.FitScale() * (1 + rng.Float64()*20)
		in := State{
			Scale: rng.Float64() * b.MaxScale * 2,
			Translate: vectors.Vec2{
				X: (rng.Float64() - 0.5) * 1e6,
				Y: (rng.Float64() - 0.5) * 1e6,
			},
		}
		out := b.FitToBounds(true, in)

		if out.Scale < b.MinScaleValue()-eps || out.Scale > b.MaxScale+eps {
			t.Fatalf("scale %v outside [%v, %v]", out.Scale, b.MinScaleValue(), b.MaxScale)
		}

		check := func(axis string, tr, view, src float64) {
			scaled := out.Scale * src
			if scaled >= view {
				if tr < view-scaled-eps || tr > eps {
					t.Fatalf("%s translate %v outside [%v, 0] (view %v, scaled %v)", axis, tr, view-scaled, view, scaled)
				}
			} else if !near(tr, (view-scaled)/2) {
				t.Fatalf("%s translate %v not centred (want %v)", axis, tr, (view-scaled)/2)
			}
		}
		check("x", out.Translate.X, float64(b.ViewSize.X), float64(b.SourceSize.X))
		check("y", out.Translate.Y, float64(b.ViewSize.Y), float64(b.SourceSize.Y))
	}
}

func TestBounds_FitToBoundsUncentred(t *testing.T) {
	b := Bounds{ViewSize: image.Pt(100, 100), SourceSize: image.Pt(1000, 1000), MaxScale: 4}
	out := b.FitToBounds(false, State{Scale: 1, Translate: vectors.Vec2{X: 500, Y: -5000}})
	if out.Translate.X != 100 {
		t.Errorf("x = %v, want clamp to view width", out.Translate.X)
	}
	if out.Translate.Y != -1000 {
		t.Errorf("y = %v, want clamp to -scaled height", out.Translate.Y)
	}
}

func TestBounds_PaddingRatioPlacement(t *testing.T) {
	b := Bounds{
		ViewSize:   image.Pt(1000, 1000),
		SourceSize: image.Pt(100, 100),
		Padding:    Padding{Left: 300, Right: 100},
		MaxScale:   1,
	}
	out := b.FitToBounds(true, State{Scale: 1})
	// 900 px of slack split 3:1 between left and right.
	if !near(out.Translate.X, 675) {
		t.Errorf("x = %v, want 675", out.Translate.X)
	}
	if !near(out.Translate.Y, 450) {
		t.Errorf("y = %v, want 450", out.Translate.Y)
	}
}

func TestBounds_CenterRoundTrip(t *testing.T) {
	b := Bounds{ViewSize: image.Pt(1000, 800), SourceSize: image.Pt(10000, 8000), MaxScale: 2}
	c := vectors.Vec2{X: 5000, Y: 4000}
	s := b.StateForCenter(c, 1, 0)
	got := Transform{State: s, ViewSize: b.ViewSize}.Center()
	if !near(got.X, c.X) || !near(got.Y, c.Y) {
		t.Errorf("Center() = %v, want %v", got, c)
	}

	// A corner cannot sit in the middle of the view once zoomed in.
	limited := b.LimitedCenter(vectors.Vec2{X: 0, Y: 0}, 1)
	if !near(limited.X, 500) || !near(limited.Y, 400) {
		t.Errorf("LimitedCenter(0,0) = %v, want (500,400)", limited)
	}
}

func TestBounds_Initial(t *testing.T) {
	b := Bounds{ViewSize: image.Pt(1000, 800), SourceSize: image.Pt(10000, 8000), MaxScale: 2}
	s := b.Initial()
	if !near(s.Scale, 0.1) {
		t.Errorf("scale = %v, want 0.1", s.Scale)
	}
	if !near(s.Translate.X, 0) || !near(s.Translate.Y, 0) {
		t.Errorf("translate = %v, want origin", s.Translate)
	}
}

func TestTransform_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	for range 1000 {
		tr := Transform{
			State: State{
				Scale:     0.01 + rng.Float64()*4,
				Translate: vectors.Vec2{X: rng.Float64()*2000 - 1000, Y: rng.Float64()*2000 - 1000},
				Rotation:  rng.Float64() * 2 * math.Pi,
			},
			ViewSize: image.Pt(1+rng.IntN(2000), 1+rng.IntN(2000)),
		}
		s := vectors.Vec2{X: rng.Float64() * 10000, Y: rng.Float64() * 10000}
		back := tr.ViewToSource(tr.SourceToView(s))
		if s.Distance(back) > 1e-6 {
			t.Fatalf("round trip %v -> %v", s, back)
		}
	}
}

func TestTransform_ZeroScale(t *testing.T) {
	tr := Transform{ViewSize: image.Pt(10, 10)}
	if !tr.ViewToSource(vectors.Vec2{X: 1, Y: 1}).IsNaN() {
		t.Error("ViewToSource at zero scale should be NaN")
	}
}

func TestTransform_VisibleSourceRect(t *testing.T) {
	tr := Transform{
		State:    State{Scale: 0.5, Translate: vectors.Vec2{X: -100, Y: -50}},
		ViewSize: image.Pt(400, 300),
	}
	r := tr.VisibleSourceRect()
	want := RectF{Min: vectors.Vec2{X: 200, Y: 100}, Max: vectors.Vec2{X: 1000, Y: 700}}
	if !near(r.Min.X, want.Min.X) || !near(r.Min.Y, want.Min.Y) || !near(r.Max.X, want.Max.X) || !near(r.Max.Y, want.Max.Y) {
		t.Fatalf("VisibleSourceRect() = %+v, want %+v", r, want)
	}

	cases := []struct {
		tile image.Rectangle
		want bool
	}{
		{image.Rect(0, 0, 100, 100), false},
		{image.Rect(0, 0, 200, 100), true}, // touching corner counts
		{image.Rect(500, 500, 600, 600), true},
		{image.Rect(1001, 0, 2000, 2000), false},
		{image.Rect(0, 701, 2000, 2000), false},
	}
	for _, c := range cases {
		if got := r.Overlaps(c.tile); got != c.want {
			t.Errorf("Overlaps(%v) = %v, want %v", c.tile, got, c.want)
		}
	}
}

func TestTransform_RotatedVisibleRectGrows(t *testing.T) {
	base := Transform{State: State{Scale: 1}, ViewSize: image.Pt(200, 100)}
	rotated := base
	rotated.State.Rotation = math.Pi / 4
	a, b := base.VisibleSourceRect(), rotated.VisibleSourceRect()
	if b.Dx() <= a.Dx() || b.Dy() <= a.Dy() {
		t.Errorf("rotated bounding box %+v not larger than %+v", b, a)
	}
}
