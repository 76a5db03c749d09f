package subscale

import (
	"image"
	"log/slog"

	"github.com/echoflaresat/subscale/decoder"
	"github.com/echoflaresat/subscale/viewport"
)

// Executor runs decode tasks off the calling goroutine. Submit is called
// with the view lock held and must not block.
type Executor interface {
	Submit(fn func())
}

// Config holds the settings of a View. Start from DefaultConfig and override
// fields; zero values of numeric fields are not replaced.
type Config struct {
	// MaxTileSize bounds the subsampled size of a decoded tile. It is
	// usually the maximum texture size of the renderer.
	MaxTileSize image.Point

	// DisplayDPI is the density of the output surface.
	DisplayDPI float64

	// MinimumDPI, when positive, sets the maximum scale so that a source
	// pixel is never shown larger than at this density. It overrides
	// MaxScale.
	MinimumDPI float64

	// MinimumTileDPI lowers the resolution of decoded tiles on dense
	// displays: tiles are chosen as if the display had this density. It is
	// capped at DisplayDPI. Zero disables the adjustment.
	MinimumTileDPI float64

	// MinScale, when positive, replaces the fit-to-view minimum scale.
	MinScale float64
	MaxScale float64

	// EagerLoading keeps loading tiles during gestures. When false tiles
	// are only requested once the gesture ends.
	EagerLoading bool

	// Workers sizes the default executor. Zero uses GOMAXPROCS.
	Workers int

	// Executor, when set, replaces the default worker pool. The View does
	// not close it.
	Executor Executor

	// NewRegionDecoder creates the decoder for each image. The default is a
	// decoder.Pool of file decoders.
	NewRegionDecoder func() decoder.RegionDecoder

	// ImageDecoder decodes small images and previews in one go.
	ImageDecoder decoder.ImageDecoder

	Padding viewport.Padding

	// CoarseBaseLayer loads the base layer at the sample size that fits
	// the whole image in the view instead of one level finer.
	CoarseBaseLayer bool

	Listener Listener
	Logger   *slog.Logger
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		MaxTileSize:    image.Pt(2048, 2048),
		DisplayDPI:     160,
		MinimumTileDPI: 320,
		MaxScale:       2,
		EagerLoading:   true,
	}
}

// maxScale returns the configured maximum scale.
func (c Config) maxScale() float64 {
	if c.MinimumDPI > 0 {
		return viewport.ScaleForDPI(c.DisplayDPI, c.MinimumDPI)
	}
	return c.MaxScale
}

// densityFactor converts MinimumTileDPI into the scale multiplier used for
// sample size selection.
func (c Config) densityFactor() float64 {
	if c.MinimumTileDPI <= 0 || c.DisplayDPI <= 0 {
		return 0
	}
	return min(c.MinimumTileDPI, c.DisplayDPI) / c.DisplayDPI
}

func (c Config) maxTileSize() image.Point {
	if c.MaxTileSize.X <= 0 || c.MaxTileSize.Y <= 0 {
		return image.Pt(2048, 2048)
	}
	return c.MaxTileSize
}
