package pyramid

import (
	"errors"
	"image"
	"math/rand/v2"
	"testing"
)

// checkCoverage verifies that a level tiles [0,w)×[0,h) exactly: every tile
// lies inside the source, no two tiles overlap and the areas add up.
func checkCoverage(t *testing.T, size image.Point, tiles []*Tile) {
	t.Helper()
	bounds := image.Rectangle{Max: size}
	area := 0
	for i, a := range tiles {
		if a.SourceRect.Empty() {
			t.Fatalf("tile %d is empty: %v", i, a.SourceRect)
		}
		if !a.SourceRect.In(bounds) {
			t.Fatalf("tile %d %v outside source %v", i, a.SourceRect, bounds)
		}
		area += a.SourceRect.Dx() * a.SourceRect.Dy()
		for j := i + 1; j < len(tiles); j++ {
			if a.SourceRect.Overlaps(tiles[j].SourceRect) {
				t.Fatalf("tiles %v and %v overlap", a.SourceRect, tiles[j].SourceRect)
			}
		}
	}
	if area != size.X*size.Y {
		t.Fatalf("tile area %d != source area %d", area, size.X*size.Y)
	}
}

func TestBuild_CoarseBaseLayer(t *testing.T) {
	size := image.Pt(10000, 8000)
	viewport := image.Pt(1000, 800)
	maxTile := image.Pt(2048, 2048)

	fit := CalculateInSampleSize(size.X, size.Y, 0.1, 0)
	base := BaseSampleSize(fit, true)
	if base != 8 {
		t.Fatalf("base sample size = %d, want 8", base)
	}

	p, err := Build(size, base, maxTile, viewport)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	baseLayer := p.BaseLayer()
	if len(baseLayer) != 1 {
		t.Fatalf("base layer has %d tiles, want 1", len(baseLayer))
	}
	if baseLayer[0].SourceRect != image.Rect(0, 0, 10000, 8000) {
		t.Errorf("base tile rect = %v", baseLayer[0].SourceRect)
	}
	if !baseLayer[0].Visible {
		t.Error("base tile should start visible")
	}

	if got := p.SampleSizes(); len(got) != 4 || got[0] != 8 || got[3] != 1 {
		t.Errorf("SampleSizes() = %v, want [8 4 2 1]", got)
	}

	full := p.Level(1)
	if len(full) < 2 {
		t.Fatalf("full resolution level has %d tiles, want a multi-tile grid", len(full))
	}
	for _, tile := range full {
		if tile.Visible {
			t.Fatalf("non-base tile %v starts visible", tile.SourceRect)
		}
		sub := tile.SourceRect.Size()
		if float64(sub.X) > 1.25*float64(viewport.X) || float64(sub.Y) > 1.25*float64(viewport.Y) {
			t.Errorf("tile %v larger than 1.25× viewport", tile.SourceRect)
		}
	}
	checkCoverage(t, size, full)
}

func TestBuild_DefaultBaseIsOneLevelFiner(t *testing.T) {
	size := image.Pt(10000, 8000)
	fit := CalculateInSampleSize(size.X, size.Y, 0.1, 0)
	p, err := Build(size, BaseSampleSize(fit, false), image.Pt(2048, 2048), image.Pt(1000, 800))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.BaseSampleSize() != 4 {
		t.Fatalf("BaseSampleSize() = %d, want 4", p.BaseSampleSize())
	}
	// 10000/4 = 2500 px does not fit under 2048, so the base splits in two
	// columns; 8000/4 = 2000 px still fits in one row.
	if n := len(p.BaseLayer()); n != 2 {
		t.Errorf("base layer has %d tiles, want 2", n)
	}
}

func TestBuild_CoverageProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 60 {
		size := image.Pt(1+rng.IntN(3000), 1+rng.IntN(3000))
		maxTile := image.Pt(128+rng.IntN(4096), 128+rng.IntN(4096))
		viewport := image.Pt(300+rng.IntN(2000), 300+rng.IntN(2000))
		base := 1 << rng.IntN(6)

		p, err := Build(size, base, maxTile, viewport)
		if err != nil {
			t.Fatalf("Build(%v, %d, %v, %v): %v", size, base, maxTile, viewport, err)
		}
		for _, s := range p.SampleSizes() {
			level := p.Level(s)
			checkCoverage(t, size, level)
			for _, tile := range level {
				if tile.SampleSize != s {
					t.Fatalf("tile sample size %d in level %d", tile.SampleSize, s)
				}
			}
		}
	}
}

func TestBuild_TilesFitMaxDimension(t *testing.T) {
	size := image.Pt(20000, 15000)
	maxTile := image.Pt(512, 256)
	p, err := Build(size, 16, maxTile, image.Pt(1920, 1080))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, s := range p.SampleSizes() {
		for _, tile := range p.Level(s) {
			// The last column and row may carry the division remainder.
			if tile.Col == 0 && tile.Row == 0 {
				sub := tile.SourceRect.Size().Div(s)
				if sub.X > maxTile.X || sub.Y > maxTile.Y {
					t.Errorf("level %d tile %v subsamples to %v, above %v", s, tile.SourceRect, sub, maxTile)
				}
			}
		}
	}
}

func TestBuild_InvalidGeometry(t *testing.T) {
	cases := []struct {
		name    string
		size    image.Point
		base    int
		maxTile image.Point
	}{
		{"empty source", image.Pt(0, 10), 1, image.Pt(100, 100)},
		{"base not power of two", image.Pt(10, 10), 3, image.Pt(100, 100)},
		{"zero max tile", image.Pt(10, 10), 1, image.Pt(0, 100)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Build(c.size, c.base, c.maxTile, image.Pt(100, 100))
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("err = %v, want ErrInvalidGeometry", err)
			}
		})
	}
}

func TestPyramid_BaseLayerReadyAndClear(t *testing.T) {
	p, err := Build(image.Pt(4000, 4000), 4, image.Pt(512, 512), image.Pt(800, 800))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.BaseLayerReady() {
		t.Fatal("fresh pyramid reports base layer ready")
	}
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	for _, tile := range p.BaseLayer() {
		tile.Image = img
	}
	if !p.BaseLayerReady() {
		t.Fatal("base layer with all images not ready")
	}
	p.BaseLayer()[0].Loading = true
	if p.BaseLayerReady() {
		t.Fatal("loading tile counted as ready")
	}
	if !p.HasMissing(p.BaseSampleSize()) {
		t.Fatal("HasMissing = false with a loading visible tile")
	}

	p.Clear()
	count := 0
	p.Each(func(tile *Tile) {
		count++
		if tile.Visible || tile.Image != nil {
			t.Fatalf("tile %v not cleared", tile.SourceRect)
		}
	})
	if count == 0 {
		t.Fatal("Each visited no tiles")
	}
}
