// Package pyramid builds the level-of-detail tile grids used to display a
// large image at any scale while decoding only what is on screen.
//
// Each level is identified by its power-of-two sample size. The coarsest
// level, the base layer, is kept loaded at all times so that the screen never
// shows a gap while finer tiles are still decoding.
//
// Thread safety: Pyramid is NOT thread-safe. It is owned by the scheduler,
// which serialises every access.
package pyramid

import (
	"errors"
	"fmt"
	"image"
)

// viewportSlack bounds tile size on levels finer than the base layer
// relative to the viewport, keeping tile memory in check even when the
// maximum tile dimension is generous.
const viewportSlack = 1.25

// ErrInvalidGeometry is returned by Build for unusable dimensions.
var ErrInvalidGeometry = errors.New("pyramid: invalid geometry")

// Pyramid maps sample sizes to the grid of tiles covering the source image.
type Pyramid struct {
	// levels holds one grid per sample size.
	levels map[int][]*Tile

	// sampleSizes lists the levels from the base layer down to 1.
	sampleSizes []int

	baseSampleSize int
	size           image.Point
}

// Build creates the tile grids for a source of the given (orientation
// normalised) size.
//
// For every sample size from baseSampleSize down to 1 the grid grows until
// each tile, once subsampled, fits under maxTile and, below the base layer,
// under 1.25× the viewport. The last column and row absorb the remainder of
// the integer division. Only base layer tiles start visible.
func Build(size image.Point, baseSampleSize int, maxTile, viewport image.Point) (*Pyramid, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: source size %v", ErrInvalidGeometry, size)
	}
	if !IsPowerOfTwo(baseSampleSize) {
		return nil, fmt.Errorf("%w: base sample size %d", ErrInvalidGeometry, baseSampleSize)
	}
	if maxTile.X <= 0 || maxTile.Y <= 0 {
		return nil, fmt.Errorf("%w: max tile size %v", ErrInvalidGeometry, maxTile)
	}

	p := &Pyramid{
		levels:         make(map[int][]*Tile),
		baseSampleSize: baseSampleSize,
		size:           size,
	}

	xTiles, yTiles := 1, 1
	for sampleSize := baseSampleSize; sampleSize >= 1; sampleSize /= 2 {
		belowBase := sampleSize < baseSampleSize
		xTiles = splitCount(size.X, xTiles, sampleSize, maxTile.X, viewport.X, belowBase)
		yTiles = splitCount(size.Y, yTiles, sampleSize, maxTile.Y, viewport.Y, belowBase)

		p.levels[sampleSize] = grid(size, xTiles, yTiles, sampleSize, sampleSize == baseSampleSize)
		p.sampleSizes = append(p.sampleSizes, sampleSize)
	}
	return p, nil
}

// splitCount grows the number of tiles along one axis, starting from the
// count used by the previous level, until the subsampled tile length fits.
func splitCount(length, tiles, sampleSize, maxTile, viewport int, belowBase bool) int {
	tooBig := func(tiles int) bool {
		sub := length / tiles / sampleSize
		if sub+tiles+1 > maxTile {
			return true
		}
		return belowBase && viewport > 0 && float64(sub) > float64(viewport)*viewportSlack
	}
	// Tiles are never narrower than one source pixel.
	for tiles < length && tooBig(tiles) {
		tiles++
	}
	return tiles
}

func grid(size image.Point, xTiles, yTiles, sampleSize int, visible bool) []*Tile {
	tileW := size.X / xTiles
	tileH := size.Y / yTiles

	tiles := make([]*Tile, 0, xTiles*yTiles)
	for row := range yTiles {
		for col := range xTiles {
			r := image.Rect(col*tileW, row*tileH, (col+1)*tileW, (row+1)*tileH)
			if col == xTiles-1 {
				r.Max.X = size.X
			}
			if row == yTiles-1 {
				r.Max.Y = size.Y
			}
			tiles = append(tiles, &Tile{
				SourceRect: r,
				SampleSize: sampleSize,
				Col:        col,
				Row:        row,
				Visible:    visible,
			})
		}
	}
	return tiles
}

// Size returns the source size the pyramid covers.
func (p *Pyramid) Size() image.Point {
	return p.size
}

// BaseSampleSize returns the sample size of the base layer.
func (p *Pyramid) BaseSampleSize() int {
	return p.baseSampleSize
}

// SampleSizes returns the level sample sizes from the base layer down to 1.
// The returned slice must not be modified.
func (p *Pyramid) SampleSizes() []int {
	return p.sampleSizes
}

// Level returns the tiles of the level with the given sample size, or nil.
func (p *Pyramid) Level(sampleSize int) []*Tile {
	return p.levels[sampleSize]
}

// BaseLayer returns the base layer tiles.
func (p *Pyramid) BaseLayer() []*Tile {
	return p.levels[p.baseSampleSize]
}

// Each calls fn for every tile, coarsest level first.
func (p *Pyramid) Each(fn func(*Tile)) {
	for _, s := range p.sampleSizes {
		for _, t := range p.levels[s] {
			fn(t)
		}
	}
}

// BaseLayerReady reports whether every base layer tile holds an image.
func (p *Pyramid) BaseLayerReady() bool {
	for _, t := range p.BaseLayer() {
		if !t.Ready() {
			return false
		}
	}
	return true
}

// HasMissing reports whether any visible tile of the level has nothing to
// draw yet.
func (p *Pyramid) HasMissing(sampleSize int) bool {
	for _, t := range p.levels[sampleSize] {
		if t.Missing() {
			return true
		}
	}
	return false
}

// Clear evicts every tile at every level.
func (p *Pyramid) Clear() {
	p.Each(func(t *Tile) {
		t.Evict()
	})
}
