package subscale

import "github.com/echoflaresat/subscale/decoder"

// Listener receives View events. Nil fields are skipped. Callbacks run
// without the view lock held, on the goroutine that caused the event.
type Listener struct {
	// OnReady fires once per image, when something can be drawn: the base
	// layer, the full image or a preview.
	OnReady func()

	// OnImageLoaded fires once per image when the full image or the whole
	// base layer is loaded.
	OnImageLoaded func()

	OnPreviewLoadError func(err error)

	// OnImageLoadError reports a failed decode of a whole image on the
	// untiled path.
	OnImageLoadError func(err error)

	OnTileLoadError func(err *decoder.TileDecodeError)

	// OnPreviewReleased fires when a preview is dropped because better
	// pixels are available.
	OnPreviewReleased func()

	// OnTileLoaded fires after each tile is stored.
	OnTileLoaded func()
}
