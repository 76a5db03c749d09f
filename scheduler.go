package subscale

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/echoflaresat/subscale/decoder"
	"github.com/echoflaresat/subscale/pyramid"
	"github.com/echoflaresat/subscale/viewport"
)

type resultKind int

const (
	tileResult resultKind = iota
	imageResult
	previewResult
)

// result carries a finished decode back to the view goroutine. tile is an
// opaque handle for the owner; workers never dereference it.
type result struct {
	gen        uint64
	kind       resultKind
	tile       *pyramid.Tile
	rect       image.Rectangle
	sampleSize int

	img image.Image
	err error
}

// mailbox is an unbounded queue of results. Posting never blocks so that
// workers cannot stall on a busy view.
type mailbox struct {
	mu      sync.Mutex
	results []result
	wake    chan struct{}
}

func (m *mailbox) post(r result) {
	m.mu.Lock()
	m.results = append(m.results, r)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []result {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := m.results
	m.results = nil
	return rs
}

func (v *View) loop() {
	defer v.loopWG.Done()
	for {
		select {
		case <-v.mailbox.wake:
			for _, r := range v.mailbox.drain() {
				v.apply(r)
			}
		case <-v.done:
			return
		}
	}
}

// apply stores one result. The in-flight count drops only after listeners
// have run, so WaitIdle observes their effects.
func (v *View) apply(r result) {
	v.lock()
	if r.gen == v.gen {
		switch r.kind {
		case tileResult:
			v.applyTile(r)
		case imageResult:
			v.applyImage(r)
		case previewResult:
			v.applyPreview(r)
		}
	}
	v.unlock()

	v.lock()
	v.inflight--
	if v.inflight == 0 {
		close(v.idle)
	}
	v.unlock()
}

// applyTile stores a finished decode. It never refreshes: a failed tile is
// retried on the next viewport change or gesture boundary, not in a loop
// against a decoder that keeps failing.
func (v *View) applyTile(r result) {
	t := r.tile
	t.Loading = false

	if r.err != nil {
		if errors.Is(r.err, decoder.ErrPoolRecycled) {
			return
		}
		tileErr := &decoder.TileDecodeError{Rect: r.rect, SampleSize: r.sampleSize, Err: r.err}
		v.logger.Warn("failed to decode tile", "rect", r.rect, "sample_size", r.sampleSize, "error", r.err)
		if fn := v.listener.OnTileLoadError; fn != nil {
			v.afterUnlock(func() { fn(tileErr) })
		}
		return
	}
	if !t.Visible {
		// Evicted while decoding.
		return
	}

	t.Image = r.img
	v.checkReady()
	v.checkImageLoaded()
	if v.pyramid.BaseLayerReady() {
		v.releasePreview()
	}
	v.fire(v.listener.OnTileLoaded)
}

func (v *View) applyImage(r result) {
	v.bitmapLoading = false
	if r.err != nil {
		v.logger.Warn("failed to decode image", "source", v.src.Source, "error", r.err)
		if fn := v.listener.OnImageLoadError; fn != nil {
			err := r.err
			v.afterUnlock(func() { fn(err) })
		}
		return
	}

	if v.bitmapPreview {
		v.fire(v.listener.OnPreviewReleased)
	}
	v.bitmap = r.img
	v.bitmapPreview = false
	if v.fileSize == (image.Point{}) {
		v.fileSize = r.img.Bounds().Size()
	}
	v.layout()
}

func (v *View) applyPreview(r result) {
	if r.err != nil {
		v.logger.Warn("failed to decode preview", "error", r.err)
		if fn := v.listener.OnPreviewLoadError; fn != nil {
			err := r.err
			v.afterUnlock(func() { fn(err) })
		}
		return
	}
	if v.bitmap != nil || v.loadedFired || (v.pyramid != nil && v.pyramid.BaseLayerReady()) {
		return
	}
	v.bitmap = r.img
	v.bitmapPreview = true
	v.layout()
}

// targetSampleSize returns the level the current scale calls for, never
// coarser than the base layer.
func (v *View) targetSampleSize() int {
	size := v.sourceSize()
	s := pyramid.CalculateInSampleSize(size.X, size.Y, v.state.Scale, v.cfg.densityFactor())
	return min(s, v.pyramid.BaseSampleSize())
}

// initialiseBaseLayer picks the base sample size for the fitted scale and
// either decodes the whole image at once or builds the pyramid and loads its
// base layer.
func (v *View) initialiseBaseLayer() {
	size := v.sourceSize()
	fit := v.bounds().FitToBounds(true, viewport.State{})
	fitSample := pyramid.CalculateInSampleSize(size.X, size.Y, fit.Scale, v.cfg.densityFactor())
	full := pyramid.BaseSampleSize(fitSample, v.cfg.CoarseBaseLayer)
	v.fullSampleSize = full

	maxTile := v.cfg.maxTileSize()
	if full == 1 && v.region == nil && size.X < maxTile.X && size.Y < maxTile.Y {
		// Small enough to show without tiling.
		v.recycleAsync(v.decoder)
		v.decoder = nil
		v.dispatchImage()
		return
	}

	p, err := pyramid.Build(size, full, maxTile, v.viewSize)
	if err != nil {
		v.logger.Error("failed to build tile pyramid", "size", size, "sample_size", full, "error", err)
		return
	}
	v.pyramid = p
	v.logger.Debug("built tile pyramid", "size", size, "base_sample_size", full,
		"base_tiles", len(p.BaseLayer()), "levels", len(p.SampleSizes()))

	for _, t := range p.BaseLayer() {
		v.dispatchTile(t)
	}
	v.refreshRequiredTiles(true)
}

// refreshRequiredTiles makes the tiles of the target level that intersect
// the view visible and, when load is set, schedules the missing ones. Tiles
// of other levels are evicted, except the base layer which stays visible.
func (v *View) refreshRequiredTiles(load bool) {
	if v.pyramid == nil || v.decoder == nil {
		return
	}
	target := v.targetSampleSize()
	base := v.pyramid.BaseSampleSize()
	visible := v.transform().VisibleSourceRect()

	for _, s := range v.pyramid.SampleSizes() {
		for _, t := range v.pyramid.Level(s) {
			if s < target || (s > target && s != base) {
				t.Evict()
			}
			switch {
			case s == target:
				if visible.Overlaps(t.SourceRect) {
					t.Visible = true
					if load && !t.Loading && t.Image == nil {
						v.dispatchTile(t)
					}
				} else if s != base {
					t.Evict()
				}
			case s == base:
				t.Visible = true
				if load && !t.Loading && t.Image == nil {
					// A failed base tile leaves a gap at every zoom.
					v.dispatchTile(t)
				}
			}
		}
	}
}

// dispatchTile marks t as loading and queues its decode. At most one task
// per tile is in flight because callers skip loading tiles.
func (v *View) dispatchTile(t *pyramid.Tile) {
	t.Loading = true

	dec := v.decoder
	rect := v.orientation.FileRect(t.SourceRect, v.fileSize)
	if v.region != nil {
		rect = rect.Add(v.region.Min)
	}
	sampleSize := t.SampleSize

	v.submit(result{gen: v.gen, kind: tileResult, tile: t, rect: t.SourceRect, sampleSize: sampleSize},
		func() (image.Image, error) {
			if !dec.IsReady() {
				return nil, decoder.ErrPoolRecycled
			}
			return dec.DecodeRegion(rect, sampleSize)
		})
}

func (v *View) dispatchImage() {
	v.bitmapLoading = true
	dec := v.cfg.ImageDecoder
	src := v.src.Source
	v.submit(result{gen: v.gen, kind: imageResult}, func() (image.Image, error) {
		return dec.Decode(src)
	})
}

func (v *View) dispatchPreview(preview ImageSource) {
	dec := v.cfg.ImageDecoder
	v.submit(result{gen: v.gen, kind: previewResult}, func() (image.Image, error) {
		if preview.Image != nil {
			return crop(preview.Image, preview.Region)
		}
		img, err := dec.Decode(preview.Source)
		if err != nil {
			return nil, err
		}
		return crop(img, preview.Region)
	})
}

func (v *View) submit(r result, decode func() (image.Image, error)) {
	if v.inflight == 0 {
		v.idle = make(chan struct{})
	}
	v.inflight++
	if v.ownExec != nil {
		v.logger.Debug("queued decode", "rect", r.rect, "sample_size", r.sampleSize, "pending", v.ownExec.Pending())
	}

	v.exec.Submit(func() {
		r.img, r.err = safeDecode(decode)
		v.mailbox.post(r)
	})
}

// safeDecode turns a decoder panic into an error.
func safeDecode(decode func() (image.Image, error)) (img image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("subscale: decoder panic: %v", p)
		}
	}()
	img, err = decode()
	if err == nil && img == nil {
		err = errors.New("subscale: decoder returned no image")
	}
	return img, err
}
