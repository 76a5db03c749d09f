package subscale

import (
	"image"

	"github.com/echoflaresat/subscale/decoder"
)

// ImageSource is the image shown by a View: encoded data opened through a
// region decoder, or an already decoded image.
type ImageSource struct {
	Source decoder.Source

	// Image is a pre-decoded image. It is shown as is, without tiling.
	Image image.Image

	// Region restricts display to a rectangle of the file, in file
	// coordinates. It is clamped to the image bounds.
	Region *image.Rectangle

	// Width and Height declare the file dimensions up front. They are
	// required to show a preview before the source is opened.
	Width, Height int
}

// File returns a source reading the image file at path.
func File(path string) ImageSource {
	return ImageSource{Source: decoder.FileSource(path)}
}

// Bytes returns a source over encoded image data.
func Bytes(data []byte) ImageSource {
	return ImageSource{Source: decoder.BytesSource(data)}
}

// FromImage returns a source showing img without decoding.
func FromImage(img image.Image) ImageSource {
	return ImageSource{Image: img}
}

// WithRegion returns s restricted to r.
func (s ImageSource) WithRegion(r image.Rectangle) ImageSource {
	s.Region = &r
	return s
}

// WithDimensions returns s with declared dimensions.
func (s ImageSource) WithDimensions(w, h int) ImageSource {
	s.Width, s.Height = w, h
	return s
}

func (s ImageSource) empty() bool {
	return s.Image == nil && s.Source.Empty()
}

func (s ImageSource) declared() (image.Point, bool) {
	if s.Width > 0 && s.Height > 0 {
		return image.Pt(s.Width, s.Height), true
	}
	return image.Point{}, false
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// crop returns the part of img inside region, or img when region is nil.
func crop(img image.Image, region *image.Rectangle) (image.Image, error) {
	if region == nil {
		return img, nil
	}
	if si, ok := img.(subImager); ok {
		r := region.Add(img.Bounds().Min).Intersect(img.Bounds())
		if r.Empty() {
			return nil, ErrEmptyRegion
		}
		return si.SubImage(r), nil
	}
	return decoder.Subsample(img, *region, 1)
}
