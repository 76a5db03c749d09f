package decoder

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Subsample cuts rect out of img keeping every sampleSize-th pixel in both
// directions, starting at rect.Min. The result has bounds
// (0, 0, ceil(w/s), ceil(h/s)), matching the TIFF region reader so that
// tiles from either path line up.
func Subsample(img image.Image, rect image.Rectangle, sampleSize int) (image.Image, error) {
	b := img.Bounds()
	rect = rect.Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image %v", b)
	}
	if sampleSize < 1 {
		sampleSize = 1
	}

	w := (rect.Dx() + sampleSize - 1) / sampleSize
	h := (rect.Dy() + sampleSize - 1) / sampleSize
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if sampleSize == 1 {
		draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
		return dst, nil
	}
	for oy := range h {
		for ox := range w {
			dst.Set(ox, oy, img.At(rect.Min.X+ox*sampleSize, rect.Min.Y+oy*sampleSize))
		}
	}
	return dst, nil
}
