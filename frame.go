package subscale

import (
	"image"
	"iter"
	"slices"

	"github.com/echoflaresat/subscale/pyramid"
	"github.com/echoflaresat/subscale/viewport"
)

// TileRef is a snapshot of a loaded tile ready to draw.
//
// Image holds the file pixels of the tile, in file orientation, subsampled
// by SampleSize. SourceRect is where they go in displayed source
// coordinates.
type TileRef struct {
	SourceRect image.Rectangle
	ViewRect   viewport.RectF
	SampleSize int
	Image      image.Image
}

// Frame is everything needed to draw the view once. It is a snapshot and
// stays valid after the view changes.
type Frame struct {
	ViewSize image.Point

	// SourceSize is the displayed image size, orientation applied.
	SourceSize image.Point

	// FileSize is the size of the file (or region) before orientation.
	FileSize image.Point

	Transform   viewport.Transform
	Orientation pyramid.Orientation

	// Tiles are listed in draw order, coarse levels first.
	Tiles []TileRef

	// Bitmap, when set, covers the whole file and is drawn instead of
	// tiles. Preview marks a low resolution stand-in.
	Bitmap  image.Image
	Preview bool

	TargetSampleSize int
}

// Empty reports whether the frame has nothing to draw.
func (f Frame) Empty() bool {
	return len(f.Tiles) == 0 && f.Bitmap == nil
}

// Frame returns what to draw for the current viewport.
//
// Once the base layer is loaded the target level is drawn; while some of
// its visible tiles are missing every loaded level is drawn coarse to fine
// so that finer tiles cover coarser ones. Before that the full image or the
// preview is drawn, if any.
func (v *View) Frame() Frame {
	v.lock()
	defer v.unlock()

	t := v.transform()
	f := Frame{
		ViewSize:    v.viewSize,
		SourceSize:  v.sourceSize(),
		FileSize:    v.fileSize,
		Transform:   t,
		Orientation: v.orientation,
	}
	if !v.laidOut {
		return f
	}

	if v.pyramid != nil {
		target := v.targetSampleSize()
		f.TargetSampleSize = target

		if v.pyramid.BaseLayerReady() {
			levels := []int{target}
			if v.pyramid.HasMissing(target) {
				levels = v.pyramid.SampleSizes()
			}
			for _, s := range levels {
				for _, tile := range v.pyramid.Level(s) {
					if !tile.Visible || !tile.Ready() {
						continue
					}
					f.Tiles = append(f.Tiles, TileRef{
						SourceRect: tile.SourceRect,
						ViewRect:   t.SourceToViewRect(tile.SourceRect),
						SampleSize: tile.SampleSize,
						Image:      tile.Image,
					})
				}
			}
			return f
		}
	}

	if v.bitmap != nil {
		f.Bitmap = v.bitmap
		f.Preview = v.bitmapPreview
	}
	return f
}

// VisibleTiles yields the tiles of the current frame in draw order.
func (v *View) VisibleTiles() iter.Seq[TileRef] {
	return slices.Values(v.Frame().Tiles)
}

// LoadedSampleSizes returns, for each level, the number of tiles holding an
// image. Levels without loaded tiles are omitted.
func (v *View) LoadedSampleSizes() map[int]int {
	v.lock()
	defer v.unlock()

	loaded := make(map[int]int)
	if v.pyramid == nil {
		return loaded
	}
	v.pyramid.Each(func(t *pyramid.Tile) {
		if t.Image != nil {
			loaded[t.SampleSize]++
		}
	})
	return loaded
}
