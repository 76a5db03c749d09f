package decoder

import (
	"image"
	"sync"
)

// Single wraps one RegionDecoder and serialises every call to it.
type Single struct {
	factory Factory

	mu       sync.Mutex
	dec      RegionDecoder
	recycled bool
}

// NewSingle returns a Single that creates its decoder with factory on Init.
func NewSingle(factory Factory) *Single {
	return &Single{factory: factory}
}

func (s *Single) Init(src Source) (image.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recycled {
		return image.Point{}, ErrPoolRecycled
	}
	dec := s.factory()
	size, err := dec.Init(src)
	if err != nil {
		return image.Point{}, err
	}
	s.dec = dec
	return size, nil
}

func (s *Single) DecodeRegion(rect image.Rectangle, sampleSize int) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.recycled:
		return nil, ErrPoolRecycled
	case s.dec == nil:
		return nil, ErrNotInitialized
	}
	return s.dec.DecodeRegion(rect, sampleSize)
}

func (s *Single) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.recycled && s.dec != nil && s.dec.IsReady()
}

// Recycle waits for a running decode to finish and releases the decoder.
func (s *Single) Recycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dec != nil {
		s.dec.Recycle()
		s.dec = nil
	}
	s.recycled = true
}
