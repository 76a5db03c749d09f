package decoder

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrPoolRecycled is returned by decoders that have been recycled. Work
	// failing with it belongs to an image that is gone and can be dropped.
	ErrPoolRecycled = errors.New("decoder: recycled")

	// ErrNotInitialized is returned when decoding before Init succeeded.
	ErrNotInitialized = errors.New("decoder: not initialized")

	// ErrOutOfMemory is returned when a decode would exceed the memory
	// budget of the decoder.
	ErrOutOfMemory = errors.New("decoder: out of memory")
)

// SourceInitError reports that a source could not be opened or its
// dimensions read.
type SourceInitError struct {
	Source Source
	Err    error
}

func (e *SourceInitError) Error() string {
	return fmt.Sprintf("init %s: %v", e.Source, e.Err)
}

func (e *SourceInitError) Unwrap() error { return e.Err }

// TileDecodeError reports that one tile could not be decoded.
type TileDecodeError struct {
	Rect       image.Rectangle
	SampleSize int
	Err        error
}

func (e *TileDecodeError) Error() string {
	return fmt.Sprintf("decode tile %v at sample size %d: %v", e.Rect, e.SampleSize, e.Err)
}

func (e *TileDecodeError) Unwrap() error { return e.Err }
