// Package subscale displays arbitrarily large images in a limited viewport by
// decoding only the visible part at the resolution the current scale needs.
//
// A View owns one image at a time. The image is split into a pyramid of tile
// grids, one per power-of-two sample size. As the viewport changes the View
// picks the level matching the scale, decodes the visible tiles of that
// level on an executor and evicts tiles that are no longer needed. The
// coarsest level, the base layer, stays loaded so there is always something
// to draw.
//
// Thread safety: View is safe for concurrent use. Every method takes the
// view lock; decode workers never touch the pyramid and hand their results
// back through a mailbox drained by the view's own goroutine.
package subscale

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/echoflaresat/subscale/decoder"
	"github.com/echoflaresat/subscale/internal/logging"
	"github.com/echoflaresat/subscale/internal/parallel"
	"github.com/echoflaresat/subscale/pyramid"
	"github.com/echoflaresat/subscale/vectors"
	"github.com/echoflaresat/subscale/viewport"
)

var (
	// ErrEmptySource is returned by SetImage for a source naming nothing.
	ErrEmptySource = errors.New("subscale: empty image source")

	// ErrEmptyRegion is returned when a source region does not intersect
	// the image.
	ErrEmptyRegion = errors.New("subscale: region outside image")

	// ErrPreviewDimensions is returned when a preview is given for a source
	// without declared dimensions.
	ErrPreviewDimensions = errors.New("subscale: preview requires declared source dimensions")

	// ErrPreviewWithImage is returned when a preview is given for a
	// pre-decoded image source.
	ErrPreviewWithImage = errors.New("subscale: preview cannot be used with an image source")

	// ErrClosed is returned by SetImage after Close.
	ErrClosed = errors.New("subscale: view closed")
)

// View schedules tile decoding for one image and exposes what to draw.
type View struct {
	cfg      Config
	logger   *slog.Logger
	listener Listener

	exec    Executor
	ownExec *parallel.WorkerPool

	mu     sync.Mutex
	after  []func()
	closed bool

	// gen identifies the current image. Results of tasks dispatched for an
	// older generation are dropped.
	gen uint64

	src      ImageSource
	decoder  decoder.RegionDecoder
	pyramid  *pyramid.Pyramid
	fileSize image.Point
	region   *image.Rectangle

	fullSampleSize int

	// bitmap is the whole image, decoded on the untiled path, given as an
	// image source or shown as a preview.
	bitmap        image.Image
	bitmapPreview bool
	bitmapLoading bool

	orientation pyramid.Orientation
	viewSize    image.Point
	state       viewport.State
	laidOut     bool
	pending     *ViewState

	gestureActive bool

	readyFired  bool
	loadedFired bool

	// inflight counts dispatched tasks whose result has not been applied.
	inflight int
	idle     chan struct{}

	mailbox mailbox
	done    chan struct{}
	loopWG  sync.WaitGroup

	// bg tracks decoders being recycled in the background.
	bg sync.WaitGroup
}

// New creates a View. It starts the goroutine applying decode results and,
// unless cfg.Executor is set, a worker pool; Close stops both.
func New(cfg Config) *View {
	v := &View{
		cfg:      cfg,
		logger:   logging.OrNop(cfg.Logger),
		listener: cfg.Listener,
		exec:     cfg.Executor,
		idle:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	close(v.idle)
	v.mailbox.wake = make(chan struct{}, 1)

	if v.exec == nil {
		v.ownExec = parallel.NewWorkerPool(cfg.Workers)
		v.exec = v.ownExec
		v.logger.Debug("started decode workers", "workers", v.ownExec.Workers())
	}
	if v.cfg.NewRegionDecoder == nil {
		logger := v.logger
		v.cfg.NewRegionDecoder = func() decoder.RegionDecoder {
			return decoder.NewPool(
				decoder.FileFactory(decoder.WithFileLogger(logger)),
				decoder.WithLogger(logger),
			)
		}
	}
	if v.cfg.ImageDecoder == nil {
		v.cfg.ImageDecoder = decoder.StdImageDecoder{}
	}

	v.loopWG.Add(1)
	go v.loop()
	return v
}

// lock and unlock guard the view. Work queued with defer runs after the
// lock is released, in order.
func (v *View) lock() {
	v.mu.Lock()
}

func (v *View) unlock() {
	fns := v.after
	v.after = nil
	v.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (v *View) afterUnlock(fn func()) {
	v.after = append(v.after, fn)
}

// fire queues a listener callback to run once the lock is released.
func (v *View) fire(fn func()) {
	if fn != nil {
		v.afterUnlock(fn)
	}
}

// ImageOption configures SetImage.
type ImageOption func(*imageOptions)

type imageOptions struct {
	preview *ImageSource
	state   *ViewState
}

// WithPreview shows a low resolution image until the base layer is loaded.
// The main source must declare its dimensions.
func WithPreview(preview ImageSource) ImageOption {
	return func(o *imageOptions) {
		o.preview = &preview
	}
}

// WithState restores a saved scale, centre and orientation once the image
// is laid out. A zero Scale keeps the initial fitted position.
func WithState(state ViewState) ImageOption {
	return func(o *imageOptions) {
		o.state = &state
	}
}

// SetImage replaces the displayed image.
//
// The source is opened synchronously so that failures are returned here, as
// a *decoder.SourceInitError. Tiles are decoded in the background.
func (v *View) SetImage(src ImageSource, opts ...ImageOption) error {
	var o imageOptions
	for _, opt := range opts {
		opt(&o)
	}
	if src.empty() {
		return ErrEmptySource
	}
	if o.preview != nil {
		if src.Image != nil {
			return ErrPreviewWithImage
		}
		if _, ok := src.declared(); !ok {
			return ErrPreviewDimensions
		}
	}
	if o.state != nil && !o.state.Orientation.Valid() {
		return fmt.Errorf("subscale: invalid orientation %d", o.state.Orientation)
	}

	v.lock()
	if v.closed {
		v.unlock()
		return ErrClosed
	}
	v.resetLocked()
	gen := v.gen
	v.src = src
	v.pending = o.state
	if o.state != nil {
		v.orientation = o.state.Orientation
	}

	if src.Image != nil {
		err := v.setBitmapSource(src)
		v.unlock()
		return err
	}

	if size, ok := src.declared(); ok {
		v.fileSize = size
		if src.Region != nil {
			if r := src.Region.Intersect(image.Rectangle{Max: size}); !r.Empty() {
				v.fileSize = r.Size()
			}
		}
	}
	if o.preview != nil {
		v.dispatchPreview(*o.preview)
	}
	v.unlock()

	// Opening the source may be slow; keep the view responsive meanwhile.
	dec := v.cfg.NewRegionDecoder()
	size, err := dec.Init(src.Source)

	v.lock()
	defer v.unlock()
	if gen != v.gen {
		// Superseded by another SetImage or Reset while opening.
		v.recycleAsync(dec)
		return nil
	}
	if err != nil {
		v.recycleAsync(dec)
		v.resetLocked()
		return &decoder.SourceInitError{Source: src.Source, Err: err}
	}

	if src.Region != nil {
		r := src.Region.Intersect(image.Rectangle{Max: size})
		if r.Empty() {
			v.recycleAsync(dec)
			v.resetLocked()
			return &decoder.SourceInitError{Source: src.Source, Err: ErrEmptyRegion}
		}
		v.region = &r
		size = r.Size()
	}

	if declared, ok := src.declared(); ok && v.fileSize != size {
		v.logger.Warn("declared image dimensions do not match the source",
			"source", src.Source, "declared", declared, "actual", size)
		v.releasePreview()
		v.laidOut = false
	}

	v.decoder = dec
	v.fileSize = size
	v.layout()
	return nil
}

func (v *View) setBitmapSource(src ImageSource) error {
	img, err := crop(src.Image, src.Region)
	if err != nil {
		v.resetLocked()
		return err
	}
	v.bitmap = img
	v.fileSize = img.Bounds().Size()
	v.layout()
	return nil
}

// SetViewSize sets the size of the output surface. The source point at the
// centre of the view and the scale are kept.
func (v *View) SetViewSize(w, h int) {
	v.lock()
	defer v.unlock()

	size := image.Pt(w, h)
	if size == v.viewSize {
		return
	}
	var center vectors.Vec2
	wasLaidOut := v.laidOut && v.viewSize.X > 0 && v.viewSize.Y > 0
	if wasLaidOut {
		center = v.transform().Center()
	}
	v.viewSize = size

	if wasLaidOut {
		b := v.bounds()
		if b.Ready() {
			v.state = b.StateForCenter(center, v.state.Scale, v.state.Rotation)
		}
	}
	v.layout()
	v.refreshRequiredTiles(v.loadAllowed())
}

// SetOrientation rotates the displayed image. Tiles are rebuilt for the new
// orientation and the view returns to its initial scale.
func (v *View) SetOrientation(o pyramid.Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("subscale: invalid orientation %d", o)
	}

	v.lock()
	defer v.unlock()
	if o == v.orientation {
		return nil
	}
	v.orientation = o
	if v.pyramid != nil {
		// In-flight decodes belong to the old grid.
		v.gen++
		v.pyramid = nil
		v.readyFired = false
		v.loadedFired = false
	}
	v.laidOut = false
	v.layout()
	return nil
}

// SetViewport applies a candidate scale, translation and rotation, fitted to
// bounds, and schedules the tiles it needs.
func (v *View) SetViewport(scale float64, translate vectors.Vec2, rotation float64) {
	v.lock()
	defer v.unlock()

	s := viewport.State{Scale: scale, Translate: translate, Rotation: rotation}
	if b := v.bounds(); b.Ready() {
		s = b.FitToBounds(true, s)
	}
	v.state = s
	v.refreshRequiredTiles(v.loadAllowed())
}

// SetScaleAndCenter shows the source point center at the middle of the view
// at the given scale. Before layout the values are kept and applied then.
func (v *View) SetScaleAndCenter(scale float64, center vectors.Vec2) {
	v.lock()
	defer v.unlock()

	b := v.bounds()
	if !v.laidOut || !b.Ready() {
		v.pending = &ViewState{Scale: scale, Center: center, Orientation: v.orientation}
		return
	}
	v.state = b.StateForCenter(center, scale, v.state.Rotation)
	v.refreshRequiredTiles(v.loadAllowed())
}

// ResetScaleAndCenter returns to the minimum scale with the image centred.
func (v *View) ResetScaleAndCenter() {
	v.lock()
	defer v.unlock()

	v.pending = nil
	if b := v.bounds(); b.Ready() {
		v.state = b.Initial()
		v.refreshRequiredTiles(v.loadAllowed())
	}
}

// SetGestureActive tells the view whether a pan or zoom gesture is in
// progress. Ending a gesture loads everything now visible.
func (v *View) SetGestureActive(active bool) {
	v.lock()
	defer v.unlock()

	v.gestureActive = active
	if !active {
		v.refreshRequiredTiles(true)
	}
}

// OnGestureBoundaryChanged reschedules tiles with loading allowed.
func (v *View) OnGestureBoundaryChanged() {
	v.lock()
	defer v.unlock()
	v.refreshRequiredTiles(true)
}

// CurrentTargetSampleSize returns the sample size of the level matching the
// current scale, or 0 before the image is laid out.
func (v *View) CurrentTargetSampleSize() int {
	v.lock()
	defer v.unlock()
	if v.pyramid == nil {
		return 0
	}
	return v.targetSampleSize()
}

// State returns the scale, centre and orientation to restore the current
// position later. It reports false before the image is laid out.
func (v *View) State() (ViewState, bool) {
	v.lock()
	defer v.unlock()
	if !v.laidOut || v.viewSize.X <= 0 || v.viewSize.Y <= 0 {
		return ViewState{}, false
	}
	return ViewState{
		Scale:       v.state.Scale,
		Center:      v.transform().Center(),
		Orientation: v.orientation,
	}, true
}

// Transform returns the current view/source mapping.
func (v *View) Transform() viewport.Transform {
	v.lock()
	defer v.unlock()
	return v.transform()
}

// Orientation returns the current orientation.
func (v *View) Orientation() pyramid.Orientation {
	v.lock()
	defer v.unlock()
	return v.orientation
}

// SourceSize returns the displayed (orientation applied) image size, zero
// while unknown.
func (v *View) SourceSize() image.Point {
	v.lock()
	defer v.unlock()
	return v.sourceSize()
}

// Ready reports whether there is something to draw.
func (v *View) Ready() bool {
	v.lock()
	defer v.unlock()
	return v.readyFired
}

// Reset drops the current image. Its decoder is recycled in the background.
func (v *View) Reset() {
	v.lock()
	defer v.unlock()
	v.resetLocked()
}

// Recycle drops the current image and waits until its decoder is recycled.
func (v *View) Recycle() {
	v.Reset()
	v.bg.Wait()
}

// Close recycles the image, stops the default executor and the result
// goroutine. The view cannot be used afterwards.
func (v *View) Close() {
	v.lock()
	if v.closed {
		v.unlock()
		return
	}
	v.closed = true
	v.resetLocked()
	v.unlock()

	v.bg.Wait()
	if v.ownExec != nil {
		v.ownExec.Close()
	}
	close(v.done)
	v.loopWG.Wait()
}

// WaitIdle blocks until every dispatched decode has completed and its
// result has been applied.
func (v *View) WaitIdle(ctx context.Context) error {
	for {
		v.lock()
		idle := v.idle
		v.unlock()

		select {
		case <-idle:
			v.lock()
			n := v.inflight
			v.unlock()
			if n == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *View) resetLocked() {
	v.gen++
	if v.decoder != nil {
		v.recycleAsync(v.decoder)
		v.decoder = nil
	}
	if v.bitmap != nil && v.bitmapPreview {
		v.fire(v.listener.OnPreviewReleased)
	}
	v.pyramid = nil
	v.bitmap = nil
	v.bitmapPreview = false
	v.bitmapLoading = false
	v.src = ImageSource{}
	v.fileSize = image.Point{}
	v.region = nil
	v.fullSampleSize = 0
	v.state = viewport.State{}
	v.laidOut = false
	v.pending = nil
	v.readyFired = false
	v.loadedFired = false
}

func (v *View) recycleAsync(dec decoder.RegionDecoder) {
	v.bg.Add(1)
	go func() {
		defer v.bg.Done()
		dec.Recycle()
	}()
}

func (v *View) loadAllowed() bool {
	return !v.gestureActive || v.cfg.EagerLoading
}

func (v *View) sourceSize() image.Point {
	return v.orientation.Size(v.fileSize)
}

func (v *View) bounds() viewport.Bounds {
	return viewport.Bounds{
		ViewSize:   v.viewSize,
		SourceSize: v.sourceSize(),
		Padding:    v.cfg.Padding,
		MinScale:   v.cfg.MinScale,
		MaxScale:   v.cfg.maxScale(),
	}
}

func (v *View) transform() viewport.Transform {
	return viewport.Transform{State: v.state, ViewSize: v.viewSize}
}

// layout sets the initial viewport once both view and image sizes are known
// and builds the base layer.
func (v *View) layout() {
	b := v.bounds()
	if !b.Ready() {
		return
	}
	if !v.laidOut {
		if p := v.pending; p != nil && p.Scale > 0 {
			v.state = b.StateForCenter(p.Center, p.Scale, 0)
			v.pending = nil
		} else {
			v.state = b.Initial()
		}
		v.laidOut = true
	}
	if v.decoder != nil && v.pyramid == nil && !v.bitmapLoading {
		v.initialiseBaseLayer()
	}
	v.checkReady()
	v.checkImageLoaded()
}

func (v *View) checkReady() {
	if v.readyFired || v.viewSize.X <= 0 || v.viewSize.Y <= 0 || v.fileSize.X <= 0 || v.fileSize.Y <= 0 {
		return
	}
	if v.bitmap != nil || (v.pyramid != nil && v.pyramid.BaseLayerReady()) {
		v.readyFired = true
		v.fire(v.listener.OnReady)
	}
}

func (v *View) checkImageLoaded() {
	if v.loadedFired {
		return
	}
	if (v.bitmap != nil && !v.bitmapPreview) || (v.pyramid != nil && v.pyramid.BaseLayerReady()) {
		v.loadedFired = true
		v.fire(v.listener.OnImageLoaded)
	}
}

// releasePreview drops a preview bitmap.
func (v *View) releasePreview() {
	if v.bitmap == nil || !v.bitmapPreview {
		return
	}
	v.bitmap = nil
	v.bitmapPreview = false
	v.fire(v.listener.OnPreviewReleased)
}
