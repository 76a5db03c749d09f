package pyramid

import "image"

// Tile is a rectangular region of the source image at one level of detail.
//
// SourceRect is expressed in displayed (orientation normalised) source
// coordinates at full resolution, independent of SampleSize, so that tiles
// from different levels line up exactly.
//
// Tiles are owned by the scheduling goroutine. Decode workers never read or
// write a Tile; they receive the rectangle and sample size by value and hand
// the decoded image back for the owner to store.
type Tile struct {
	SourceRect image.Rectangle
	SampleSize int

	// Col and Row locate the tile in its level's grid.
	Col, Row int

	// Image is the decoded pixel buffer, nil while absent.
	Image image.Image

	// Loading is set while exactly one decode task for this tile is in
	// flight.
	Loading bool

	// Visible marks tiles the renderer should draw.
	Visible bool
}

// Ready reports whether the tile holds a decoded image and no decode is
// pending.
func (t *Tile) Ready() bool {
	return t.Image != nil && !t.Loading
}

// Missing reports whether a visible tile still has nothing to draw.
func (t *Tile) Missing() bool {
	return t.Visible && (t.Loading || t.Image == nil)
}

// Evict hides the tile and frees its image. A pending decode is not
// cancelled; its result is discarded when it completes.
func (t *Tile) Evict() {
	t.Visible = false
	t.Image = nil
}
