// Package decoder defines the region decoding capability the tile scheduler
// consumes, its single-threaded and pooled variants, and file-backed
// implementations.
package decoder

import (
	"fmt"
	"image"
	"os"
)

// Source identifies encoded image data, either a file path or an in-memory
// buffer.
type Source struct {
	Path string
	Data []byte
}

// FileSource returns a Source reading the file at path.
func FileSource(path string) Source {
	return Source{Path: path}
}

// BytesSource returns a Source over an in-memory buffer.
func BytesSource(data []byte) Source {
	return Source{Data: data}
}

// Length returns the encoded size in bytes and whether it is known.
func (s Source) Length() (int64, bool) {
	if s.Data != nil {
		return int64(len(s.Data)), true
	}
	if s.Path == "" {
		return 0, false
	}
	fi, err := os.Stat(s.Path)
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

// Empty reports whether the source names nothing.
func (s Source) Empty() bool {
	return s.Path == "" && s.Data == nil
}

func (s Source) String() string {
	if s.Path != "" {
		return s.Path
	}
	return fmt.Sprintf("<%d bytes>", len(s.Data))
}

// RegionDecoder decodes rectangles of one source at a reduced sample size.
//
// Rectangles are in file coordinates at full resolution. A decoded image has
// roughly rect.Size()/sampleSize pixels. Implementations need not be safe for
// concurrent use; Pool and Single add the locking.
type RegionDecoder interface {
	// Init opens the source and returns its dimensions.
	Init(src Source) (image.Point, error)
	DecodeRegion(rect image.Rectangle, sampleSize int) (image.Image, error)
	IsReady() bool
	Recycle()
}

// ImageDecoder decodes a whole source in one go. It serves small images
// that need no tiling.
type ImageDecoder interface {
	Decode(src Source) (image.Image, error)
}

// Factory creates an uninitialised RegionDecoder.
type Factory func() RegionDecoder
