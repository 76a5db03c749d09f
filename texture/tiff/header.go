package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/echoflaresat/subscale/texture/tiff/compression"
	"github.com/echoflaresat/subscale/texture/tiff/photometric"
)

// Header holds the fields of the first IFD needed to decode pixels.
type Header struct {
	ByteOrder       binary.ByteOrder
	Width, Height   int
	SamplesPerPixel int
	BitsPerSample   []int
	Photometric     int
	Compression     int
	PlanarConfig    int
	Predictor       int

	// Strip layout
	RowsPerStrip    int
	StripOffsets    []int
	StripByteCounts []int

	// Tile layout
	TileWidth      int
	TileHeight     int
	TileOffsets    []int
	TileByteCounts []int
}

// https://www.loc.gov/preservation/digital/formats/content/tiff_tags.shtml
const (
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagPlanarConfiguration       = 284
	TagPredictor                 = 317
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
)

// Field types the parser understands.
const (
	typeByte  = 1
	typeShort = 3
	typeLong  = 4
)

// maxValues bounds the length of a single IFD array.
const maxValues = 1 << 24

const (
	predictorNone       = 1
	predictorHorizontal = 2
)

var (
	// ErrInvalidTiffHeader is returned when the data is not a TIFF file at
	// all. Callers use it to fall back to other decoders silently.
	ErrInvalidTiffHeader = errors.New("invalid TIFF header")

	// ErrUnsupported is returned for valid TIFF files using features the
	// region reader does not implement.
	ErrUnsupported = errors.New("unsupported TIFF layout")
)

func parseHeader(reader io.ReaderAt) (Header, error) {
	read := func(offset int64, size int) ([]byte, error) {
		buf := make([]byte, size)
		_, err := reader.ReadAt(buf, offset)
		return buf, err
	}

	// Read 8-byte header
	header, err := read(0, 8)
	if err != nil {
		return Header{}, ErrInvalidTiffHeader
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return Header{}, ErrInvalidTiffHeader
	}
	if bo.Uint16(header[2:4]) != 42 {
		return Header{}, ErrInvalidTiffHeader
	}
	ifdOffset := int64(bo.Uint32(header[4:8]))

	entryCountRaw, err := read(ifdOffset, 2)
	if err != nil {
		return Header{}, fmt.Errorf("read IFD: %w", err)
	}
	numEntries := int(bo.Uint16(entryCountRaw))
	entriesRaw, err := read(ifdOffset+2, numEntries*12)
	if err != nil {
		return Header{}, fmt.Errorf("read IFD entries: %w", err)
	}

	hdr := Header{
		ByteOrder:       bo,
		SamplesPerPixel: 1,
		Photometric:     -1,
		Compression:     compression.None,
		PlanarConfig:    1,
		Predictor:       predictorNone,
	}

	for i := range numEntries {
		entry := entriesRaw[i*12 : (i+1)*12]
		tag := bo.Uint16(entry[0:2])

		values, err := readValues(reader, bo, entry)
		if err != nil {
			return Header{}, fmt.Errorf("tag %d: %w", tag, err)
		}
		if len(values) == 0 {
			continue
		}
		first := values[0]

		switch tag {
		case TagImageWidth:
			hdr.Width = first
		case TagImageLength:
			hdr.Height = first
		case TagBitsPerSample:
			hdr.BitsPerSample = values
		case TagCompression:
			hdr.Compression = first
		case TagPhotometricInterpretation:
			hdr.Photometric = first
		case TagStripOffsets:
			hdr.StripOffsets = values
		case TagSamplesPerPixel:
			hdr.SamplesPerPixel = first
		case TagRowsPerStrip:
			hdr.RowsPerStrip = first
		case TagStripByteCounts:
			hdr.StripByteCounts = values
		case TagPlanarConfiguration:
			hdr.PlanarConfig = first
		case TagPredictor:
			hdr.Predictor = first
		case TagTileWidth:
			hdr.TileWidth = first
		case TagTileLength:
			hdr.TileHeight = first
		case TagTileOffsets:
			hdr.TileOffsets = values
		case TagTileByteCounts:
			hdr.TileByteCounts = values
		}
	}

	return hdr, nil
}

// readValues decodes the integer values of an IFD entry, inline or at its
// offset. Unknown field types yield no values.
func readValues(reader io.ReaderAt, bo binary.ByteOrder, entry []byte) ([]int, error) {
	typ := bo.Uint16(entry[2:4])
	count := int(bo.Uint32(entry[4:8]))

	var size int
	switch typ {
	case typeByte:
		size = 1
	case typeShort:
		size = 2
	case typeLong:
		size = 4
	default:
		return nil, nil
	}

	if count < 0 || count > maxValues {
		return nil, fmt.Errorf("%w: %d values", ErrUnsupported, count)
	}

	data := entry[8:12]
	if total := count * size; total > 4 {
		data = make([]byte, total)
		if _, err := reader.ReadAt(data, int64(bo.Uint32(entry[8:12]))); err != nil {
			return nil, err
		}
	}

	out := make([]int, count)
	for i := range out {
		switch size {
		case 1:
			out[i] = int(data[i])
		case 2:
			out[i] = int(bo.Uint16(data[i*2:]))
		case 4:
			out[i] = int(bo.Uint32(data[i*4:]))
		}
	}
	return out, nil
}

// Tiled reports whether the image is stored in tiles rather than strips.
func (h Header) Tiled() bool {
	return h.TileWidth > 0 && h.TileHeight > 0 && len(h.TileOffsets) > 0
}

// maxChunkBytes bounds the encoded size of a single strip or tile.
const maxChunkBytes = 256 << 20

// validate rejects layouts the reader cannot decode. When size is not
// negative every chunk must lie within the first size bytes.
func (h Header) validate(size int64) error {
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrUnsupported, h.Width, h.Height)
	}
	if !compression.Supported(h.Compression) {
		return fmt.Errorf("%w: compression %d", ErrUnsupported, h.Compression)
	}
	if h.PlanarConfig != 1 {
		return fmt.Errorf("%w: planar configuration %d", ErrUnsupported, h.PlanarConfig)
	}
	if h.Predictor != predictorNone && h.Predictor != predictorHorizontal {
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, h.Predictor)
	}
	if h.SamplesPerPixel < 1 || h.SamplesPerPixel > 4 {
		return fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, h.SamplesPerPixel)
	}
	for _, b := range h.BitsPerSample {
		if b != 8 {
			return fmt.Errorf("%w: bits per sample %v", ErrUnsupported, h.BitsPerSample)
		}
	}

	switch h.Photometric {
	case photometric.WhiteIsZero, photometric.BlackIsZero:
		if h.SamplesPerPixel > 2 {
			return fmt.Errorf("%w: grayscale with %d samples", ErrUnsupported, h.SamplesPerPixel)
		}
	case photometric.RGB:
		if h.SamplesPerPixel < 3 {
			return fmt.Errorf("%w: RGB with %d samples", ErrUnsupported, h.SamplesPerPixel)
		}
	default:
		return fmt.Errorf("%w: photometric %d", ErrUnsupported, h.Photometric)
	}

	offsets, counts := h.StripOffsets, h.StripByteCounts
	if h.Tiled() {
		offsets, counts = h.TileOffsets, h.TileByteCounts
	}
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return fmt.Errorf("%w: invalid chunk offset/length", ErrUnsupported)
	}
	if want := h.layout().count(); len(offsets) < want {
		return fmt.Errorf("%w: %d chunks, want %d", ErrUnsupported, len(offsets), want)
	}
	for i, off := range offsets {
		n := counts[i]
		if off < 0 || n < 0 || n > maxChunkBytes {
			return fmt.Errorf("%w: chunk %d at %d with %d bytes", ErrUnsupported, i, off, n)
		}
		if size >= 0 && int64(off)+int64(n) > size {
			return fmt.Errorf("%w: chunk %d ends at %d past %d bytes", ErrUnsupported, i, off+n, size)
		}
	}
	return nil
}

// layout describes how the image is split into independently compressed
// chunks. Strips are chunks one image-width wide.
type layout struct {
	width, height int
	across, down  int
}

func (h Header) layout() layout {
	if h.Tiled() {
		return layout{
			width:  h.TileWidth,
			height: h.TileHeight,
			across: (h.Width + h.TileWidth - 1) / h.TileWidth,
			down:   (h.Height + h.TileHeight - 1) / h.TileHeight,
		}
	}
	rows := h.RowsPerStrip
	if rows <= 0 || rows > h.Height {
		rows = h.Height
	}
	return layout{
		width:  h.Width,
		height: rows,
		across: 1,
		down:   (h.Height + rows - 1) / rows,
	}
}

func (l layout) count() int {
	return l.across * l.down
}
