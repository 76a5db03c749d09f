package decoder

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/echoflaresat/subscale/internal/logging"
)

// maxGrowthFailures stops pool growth after this many decoders failed to
// initialise.
const maxGrowthFailures = 3

// Pool is a RegionDecoder backed by several decoders over the same source,
// so that independent tiles decode in parallel.
//
// The pool starts with one decoder created by Init. The first request for a
// region smaller than the image starts a background goroutine that keeps
// adding decoders while the GrowthPolicy allows it.
//
// Each decoder is used by at most one goroutine at a time. Recycle blocks
// until every acquired decoder has been released.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	factory Factory
	policy  GrowthPolicy
	logger  *slog.Logger

	// recycleMu is read-held by every outstanding Handle and write-held by
	// Recycle.
	recycleMu sync.RWMutex
	closing   atomic.Bool

	// sem holds one permit per free decoder.
	sem      *semaphore.Weighted
	capacity int

	mu         sync.Mutex
	decoders   []*pooled
	recycled   bool
	src        Source
	size       image.Point
	fileLength int64
	lengthOK   bool
	growing    bool
	cancel     context.CancelFunc
	growWG     sync.WaitGroup
}

type pooled struct {
	dec  RegionDecoder
	busy bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithGrowthPolicy replaces the default growth policy.
func WithGrowthPolicy(g GrowthPolicy) PoolOption {
	return func(p *Pool) {
		p.policy = g
	}
}

// WithLogger sets the logger used for growth diagnostics.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logging.OrNop(l)
	}
}

// NewPool returns an empty pool creating decoders with factory.
func NewPool(factory Factory, opts ...PoolOption) *Pool {
	p := &Pool{
		factory: factory,
		policy:  DefaultGrowthPolicy(),
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.capacity = p.policy.Capacity()
	p.sem = semaphore.NewWeighted(int64(p.capacity))
	// Permits are handed out as decoders are added.
	p.sem.TryAcquire(int64(p.capacity))
	return p
}

// Init creates the first decoder synchronously and returns the image
// dimensions.
func (p *Pool) Init(src Source) (image.Point, error) {
	dec := p.factory()
	size, err := dec.Init(src)
	if err != nil {
		return image.Point{}, err
	}

	p.mu.Lock()
	if p.recycled || len(p.decoders) > 0 {
		p.mu.Unlock()
		dec.Recycle()
		if p.recycled {
			return image.Point{}, ErrPoolRecycled
		}
		return image.Point{}, errors.New("decoder: pool already initialized")
	}
	p.src = src
	p.size = size
	p.fileLength, p.lengthOK = src.Length()
	p.decoders = append(p.decoders, &pooled{dec: dec})
	p.mu.Unlock()

	p.sem.Release(1)
	return size, nil
}

// Handle is exclusive use of one pooled decoder.
type Handle struct {
	pool     *Pool
	d        *pooled
	released atomic.Bool
}

// Decoder returns the acquired decoder. It must not be used after Release.
func (h *Handle) Decoder() RegionDecoder {
	return h.d.dec
}

// Release returns the decoder to the pool. Releasing twice is a no-op.
func (h *Handle) Release() {
	h.pool.Release(h)
}

// Acquire waits for a free decoder and marks it busy. It fails with
// ErrPoolRecycled once the pool is being recycled.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.closing.Load() {
		return nil, ErrPoolRecycled
	}
	p.recycleMu.RLock()
	if p.closing.Load() {
		p.recycleMu.RUnlock()
		return nil, ErrPoolRecycled
	}

	p.mu.Lock()
	empty := len(p.decoders) == 0
	p.mu.Unlock()
	if empty {
		p.recycleMu.RUnlock()
		return nil, ErrNotInitialized
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.recycleMu.RUnlock()
		return nil, err
	}
	if p.closing.Load() {
		p.sem.Release(1)
		p.recycleMu.RUnlock()
		return nil, ErrPoolRecycled
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.decoders {
		if !d.busy {
			d.busy = true
			return &Handle{pool: p, d: d}, nil
		}
	}
	// A permit always matches a free decoder.
	p.sem.Release(1)
	p.recycleMu.RUnlock()
	return nil, errors.New("decoder: no free decoder for permit")
}

// Release returns h to the pool.
func (p *Pool) Release(h *Handle) {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	h.d.busy = false
	p.mu.Unlock()
	p.sem.Release(1)
	p.recycleMu.RUnlock()
}

// DecodeRegion decodes rect with a free decoder, waiting for one if all are
// busy.
func (p *Pool) DecodeRegion(rect image.Rectangle, sampleSize int) (image.Image, error) {
	p.maybeGrow(rect)

	h, err := p.Acquire(context.Background())
	if err != nil {
		return nil, err
	}
	defer h.Release()

	if !h.d.dec.IsReady() {
		return nil, ErrPoolRecycled
	}
	return h.d.dec.DecodeRegion(rect, sampleSize)
}

// maybeGrow starts the growth goroutine the first time a region smaller than
// the image is requested, provided the source length is known.
func (p *Pool) maybeGrow(rect image.Rectangle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.growing || p.recycled || !p.lengthOK || len(p.decoders) == 0 {
		return
	}
	if rect.Dx() >= p.size.X && rect.Dy() >= p.size.Y {
		return
	}
	p.growing = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.growWG.Add(1)
	go p.grow(ctx)
}

func (p *Pool) grow(ctx context.Context) {
	defer p.growWG.Done()

	failures := 0
	for ctx.Err() == nil {
		count := p.Size()
		if ok, reason := p.policy.Allow(count, p.fileLength); !ok {
			p.logger.Debug("decoder pool stopped growing", "decoders", count, "reason", reason)
			return
		}

		dec := p.factory()
		if _, err := dec.Init(p.src); err != nil {
			failures++
			p.logger.Warn("failed to add decoder", "source", p.src, "error", err)
			if failures >= maxGrowthFailures {
				return
			}
			continue
		}
		if !p.add(dec) {
			dec.Recycle()
			return
		}
		p.logger.Debug("decoder pool grew", "decoders", count+1)
	}
}

func (p *Pool) add(dec RegionDecoder) bool {
	p.mu.Lock()
	if p.recycled || p.closing.Load() || len(p.decoders) >= p.capacity {
		p.mu.Unlock()
		return false
	}
	p.decoders = append(p.decoders, &pooled{dec: dec})
	p.mu.Unlock()
	p.sem.Release(1)
	return true
}

// Size returns the number of decoders in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.decoders)
}

// IsReady reports whether the pool holds at least one decoder and has not
// been recycled.
func (p *Pool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.recycled && len(p.decoders) > 0
}

// Recycle stops growth, waits for every outstanding handle and recycles all
// decoders. Later calls to Acquire fail with ErrPoolRecycled.
func (p *Pool) Recycle() {
	p.closing.Store(true)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.growWG.Wait()

	p.recycleMu.Lock()
	defer p.recycleMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.decoders {
		d.dec.Recycle()
	}
	p.decoders = nil
	p.recycled = true
}
