// Package tiff reads rectangular regions of 8-bit TIFF images at a reduced
// sample size without decoding the whole file.
//
// The file is memory mapped and split into its natural chunks (strips or
// tiles). A region decode inflates only the chunks it touches, in parallel,
// and keeps recently inflated chunks in an LRU cache so that neighbouring
// regions share work.
package tiff

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"io"
	"runtime"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/exp/mmap"
	"golang.org/x/image/tiff/lzw"
	"golang.org/x/sync/errgroup"

	"github.com/echoflaresat/subscale/texture/tiff/compression"
	"github.com/echoflaresat/subscale/texture/tiff/photometric"
)

const defaultCacheSize = 64

// Reader decodes regions of a single TIFF image.
//
// Thread safety: Reader is safe for concurrent use. Close must not be called
// while a decode is running.
type Reader struct {
	header Header
	layout layout
	r      io.ReaderAt
	closer io.Closer

	cache       *lru.Cache // chunk index -> []byte
	concurrency int
}

// Option configures a Reader.
type Option func(*Reader)

// WithCacheSize sets how many inflated chunks are kept.
func WithCacheSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.cache, _ = lru.New(n)
		}
	}
}

// WithConcurrency bounds the number of chunks inflated at once by a single
// region decode.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// Open memory maps the file at path and parses its header.
func Open(path string, opts ...Option) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(m, opts...)
	if err != nil {
		m.Close()
		return nil, err
	}
	r.closer = m
	return r, nil
}

// NewReader parses the header of the TIFF image in ra.
func NewReader(ra io.ReaderAt, opts ...Option) (*Reader, error) {
	header, err := parseHeader(ra)
	if err != nil {
		return nil, err
	}
	if err := header.validate(readerSize(ra)); err != nil {
		return nil, err
	}

	r := &Reader{
		header:      header,
		layout:      header.layout(),
		r:           ra,
		concurrency: runtime.GOMAXPROCS(0),
	}
	r.cache, _ = lru.New(defaultCacheSize)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// readerSize returns the length of ra, or -1 when it cannot tell.
func readerSize(ra io.ReaderAt) int64 {
	switch r := ra.(type) {
	case interface{ Size() int64 }:
		return r.Size()
	case interface{ Len() int }:
		return int64(r.Len())
	}
	return -1
}

// Header returns the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// Size returns the image dimensions.
func (r *Reader) Size() image.Point {
	return image.Pt(r.header.Width, r.header.Height)
}

// Bounds returns the image rectangle.
func (r *Reader) Bounds() image.Rectangle {
	return image.Rectangle{Max: r.Size()}
}

// Close unmaps the file when the Reader was created by Open.
func (r *Reader) Close() error {
	r.cache.Purge()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// DecodeRegion returns rect subsampled by sampleSize: every sampleSize-th
// pixel in both directions, starting at rect.Min. The result has bounds
// (0, 0, ceil(w/sampleSize), ceil(h/sampleSize)).
func (r *Reader) DecodeRegion(rect image.Rectangle, sampleSize int) (*image.NRGBA, error) {
	rect = rect.Intersect(r.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region %v outside image %v", rect, r.Bounds())
	}
	if sampleSize < 1 {
		sampleSize = 1
	}

	l := r.layout
	c0, c1 := rect.Min.X/l.width, (rect.Max.X-1)/l.width
	r0, r1 := rect.Min.Y/l.height, (rect.Max.Y-1)/l.height
	across := c1 - c0 + 1

	chunks := make([][]byte, across*(r1-r0+1))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			slot := (row-r0)*across + (col - c0)
			index := row*l.across + col
			g.Go(func() error {
				buf, err := r.chunk(index)
				if err != nil {
					return err
				}
				chunks[slot] = buf
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outW := (rect.Dx() + sampleSize - 1) / sampleSize
	outH := (rect.Dy() + sampleSize - 1) / sampleSize
	dst := image.NewNRGBA(image.Rect(0, 0, outW, outH))

	spp := r.header.SamplesPerPixel
	stride := l.width * spp
	for oy := range outH {
		sy := rect.Min.Y + oy*sampleSize
		row := sy / l.height
		localY := sy - row*l.height
		line := dst.Pix[oy*dst.Stride:]
		for ox := range outW {
			sx := rect.Min.X + ox*sampleSize
			col := sx / l.width
			buf := chunks[(row-r0)*across+(col-c0)]
			off := localY*stride + (sx-col*l.width)*spp
			r.pixel(line[ox*4:ox*4+4], buf[off:off+spp])
		}
	}
	return dst, nil
}

// pixel converts one chunky sample group to non-premultiplied RGBA.
func (r *Reader) pixel(dst, src []byte) {
	switch len(src) {
	case 1, 2:
		v := src[0]
		if r.header.Photometric == photometric.WhiteIsZero {
			v = 255 - v
		}
		dst[0], dst[1], dst[2] = v, v, v
		dst[3] = 255
		if len(src) == 2 {
			dst[3] = src[1]
		}
	default:
		dst[0], dst[1], dst[2] = src[0], src[1], src[2]
		dst[3] = 255
		if len(src) == 4 {
			dst[3] = src[3]
		}
	}
}

// chunk returns the inflated bytes of a strip or tile, from the cache when
// possible.
func (r *Reader) chunk(index int) ([]byte, error) {
	if val, ok := r.cache.Get(index); ok {
		return val.([]byte), nil
	}
	buf, err := r.loadChunk(index)
	if err != nil {
		return nil, err
	}
	r.cache.Add(index, buf)
	return buf, nil
}

func (r *Reader) loadChunk(index int) ([]byte, error) {
	h := r.header
	offsets, counts := h.StripOffsets, h.StripByteCounts
	if h.Tiled() {
		offsets, counts = h.TileOffsets, h.TileByteCounts
	}

	raw := make([]byte, counts[index])
	if _, err := r.r.ReadAt(raw, int64(offsets[index])); err != nil {
		return nil, fmt.Errorf("read chunk %d: %w", index, err)
	}

	buf, err := inflate(h.Compression, raw)
	if err != nil {
		return nil, fmt.Errorf("inflate chunk %d: %w", index, err)
	}

	// Tiles are always full size. The last strip may be short but is padded
	// here so that every chunk shares one stride.
	stride := r.layout.width * h.SamplesPerPixel
	rows := r.layout.height
	if !h.Tiled() {
		rows = min(rows, h.Height-index*r.layout.height)
	}
	if len(buf) < stride*rows {
		return nil, fmt.Errorf("chunk %d: got %d bytes, want %d", index, len(buf), stride*rows)
	}
	if full := stride * r.layout.height; len(buf) < full {
		padded := make([]byte, full)
		copy(padded, buf)
		buf = padded
	}

	if h.Predictor == predictorHorizontal {
		undoPredictor(buf[:stride*rows], stride, h.SamplesPerPixel)
	}
	return buf, nil
}

func inflate(c int, raw []byte) ([]byte, error) {
	switch c {
	case compression.None:
		return raw, nil
	case compression.LZW:
		lr := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer lr.Close()
		return io.ReadAll(lr)
	case compression.Deflate, compression.DeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
}

// undoPredictor reverses horizontal differencing row by row.
func undoPredictor(buf []byte, stride, spp int) {
	for start := 0; start+stride <= len(buf); start += stride {
		row := buf[start : start+stride]
		for i := spp; i < len(row); i++ {
			row[i] += row[i-spp]
		}
	}
}
