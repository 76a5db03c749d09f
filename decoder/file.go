package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG format with image.Decode
	_ "image/png"  // register PNG format with image.Decode
	"io"
	"log/slog"
	"os"

	"github.com/echoflaresat/tiff"
	_ "golang.org/x/image/bmp"  // register BMP format with image.Decode
	_ "golang.org/x/image/tiff" // register TIFF format with image.Decode
	_ "golang.org/x/image/webp" // register WebP format with image.Decode

	"github.com/echoflaresat/subscale/internal/logging"
	regiontiff "github.com/echoflaresat/subscale/texture/tiff"
)

// FileDecoder is a RegionDecoder for files and buffers.
//
// TIFF files with 8-bit strips or tiles are read region by region through a
// memory map. Everything else is decoded fully once on Init and regions are
// cut from the decoded image.
type FileDecoder struct {
	logger *slog.Logger
	budget int64

	reader *regiontiff.Reader
	img    image.Image
}

// FileOption configures a FileDecoder.
type FileOption func(*FileDecoder)

// WithFileLogger sets the logger used to report region reader fallbacks.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(d *FileDecoder) {
		d.logger = logging.OrNop(l)
	}
}

// WithMemoryBudget limits the size in bytes of a single decoded region.
// Larger requests fail with ErrOutOfMemory.
func WithMemoryBudget(n int64) FileOption {
	return func(d *FileDecoder) {
		d.budget = n
	}
}

// NewFileDecoder returns an uninitialised FileDecoder.
func NewFileDecoder(opts ...FileOption) *FileDecoder {
	d := &FileDecoder{logger: logging.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FileFactory returns a Factory creating FileDecoders with opts.
func FileFactory(opts ...FileOption) Factory {
	return func() RegionDecoder {
		return NewFileDecoder(opts...)
	}
}

func (d *FileDecoder) Init(src Source) (image.Point, error) {
	if src.Empty() {
		return image.Point{}, errors.New("empty source")
	}

	var (
		r   *regiontiff.Reader
		err error
	)
	if src.Path != "" {
		r, err = regiontiff.Open(src.Path)
	} else {
		r, err = regiontiff.NewReader(bytes.NewReader(src.Data))
	}
	if err == nil {
		d.reader = r
		return r.Size(), nil
	}
	if !errors.Is(err, regiontiff.ErrInvalidTiffHeader) {
		d.logger.Warn("failed to open TIFF region reader", "source", src, "error", err)
	}

	img, err := StdImageDecoder{}.Decode(src)
	if err != nil {
		return image.Point{}, err
	}
	d.img = img
	return img.Bounds().Size(), nil
}

func (d *FileDecoder) DecodeRegion(rect image.Rectangle, sampleSize int) (image.Image, error) {
	if !d.IsReady() {
		return nil, ErrPoolRecycled
	}
	if sampleSize < 1 {
		sampleSize = 1
	}
	if d.budget > 0 {
		w := int64(rect.Dx()+sampleSize-1) / int64(sampleSize)
		h := int64(rect.Dy()+sampleSize-1) / int64(sampleSize)
		if w*h*4 > d.budget {
			return nil, fmt.Errorf("%w: %dx%d region", ErrOutOfMemory, w, h)
		}
	}
	if d.reader != nil {
		return d.reader.DecodeRegion(rect, sampleSize)
	}
	return Subsample(d.img, rect, sampleSize)
}

func (d *FileDecoder) IsReady() bool {
	return d.reader != nil || d.img != nil
}

func (d *FileDecoder) Recycle() {
	if d.reader != nil {
		if err := d.reader.Close(); err != nil {
			d.logger.Warn("failed to close TIFF reader", "error", err)
		}
		d.reader = nil
	}
	d.img = nil
}

// StdImageDecoder decodes whole images with the registered image codecs.
// Files are tried with the echoflaresat TIFF decoder first.
type StdImageDecoder struct{}

func (StdImageDecoder) Decode(src Source) (image.Image, error) {
	if src.Path == "" {
		img, _, err := image.Decode(bytes.NewReader(src.Data))
		return img, err
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)

	// fallback to image codecs
	if err != nil {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		img, _, err = image.Decode(f)
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}
