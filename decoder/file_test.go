package decoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	xtiff "golang.org/x/image/tiff"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeTIFF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := xtiff.Encode(&buf, img, &xtiff.Options{Compression: xtiff.Deflate}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFileDecoder(t *testing.T) {
	img := testImage(120, 80)
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "img.png")
	if err := os.WriteFile(pngPath, encodePNG(t, img), 0o644); err != nil {
		t.Fatal(err)
	}
	tifPath := filepath.Join(dir, "img.tif")
	if err := os.WriteFile(tifPath, encodeTIFF(t, img), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		src        Source
		wantRegion bool
	}{
		{"tiff bytes", BytesSource(encodeTIFF(t, img)), true},
		{"tiff file", FileSource(tifPath), true},
		{"png bytes", BytesSource(encodePNG(t, img)), false},
		{"png file", FileSource(pngPath), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := NewFileDecoder()
			size, err := d.Init(c.src)
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			if size != image.Pt(120, 80) {
				t.Fatalf("size = %v", size)
			}
			if got := d.reader != nil; got != c.wantRegion {
				t.Errorf("region reader used = %v, want %v", got, c.wantRegion)
			}

			rect := image.Rect(10, 20, 70, 60)
			out, err := d.DecodeRegion(rect, 2)
			if err != nil {
				t.Fatalf("DecodeRegion: %v", err)
			}
			if out.Bounds() != image.Rect(0, 0, 30, 20) {
				t.Fatalf("bounds = %v", out.Bounds())
			}
			// The top-left sample is the same for both paths.
			want := img.NRGBAAt(10, 20)
			if got := color.NRGBAModel.Convert(out.At(0, 0)).(color.NRGBA); got != want {
				t.Errorf("pixel (0,0) = %v, want %v", got, want)
			}

			d.Recycle()
			if d.IsReady() {
				t.Error("ready after Recycle")
			}
			if _, err := d.DecodeRegion(rect, 1); !errors.Is(err, ErrPoolRecycled) {
				t.Errorf("DecodeRegion after Recycle err = %v", err)
			}
		})
	}
}

func TestFileDecoder_MemoryBudget(t *testing.T) {
	d := NewFileDecoder(WithMemoryBudget(100 * 100 * 4))
	if _, err := d.Init(BytesSource(encodePNG(t, testImage(400, 400)))); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := d.DecodeRegion(image.Rect(0, 0, 400, 400), 1); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("full decode err = %v, want ErrOutOfMemory", err)
	}
	if _, err := d.DecodeRegion(image.Rect(0, 0, 400, 400), 4); err != nil {
		t.Errorf("subsampled decode within budget: %v", err)
	}
}

func TestFileDecoder_InitErrors(t *testing.T) {
	d := NewFileDecoder()
	if _, err := d.Init(Source{}); err == nil {
		t.Error("empty source accepted")
	}
	if _, err := d.Init(BytesSource([]byte("not an image"))); err == nil {
		t.Error("garbage accepted")
	}
	if _, err := d.Init(FileSource(filepath.Join(t.TempDir(), "missing.png"))); err == nil {
		t.Error("missing file accepted")
	}
}

func TestStdImageDecoder(t *testing.T) {
	img := testImage(16, 9)
	out, err := StdImageDecoder{}.Decode(BytesSource(encodePNG(t, img)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Bounds().Size() != image.Pt(16, 9) {
		t.Errorf("size = %v", out.Bounds().Size())
	}
}

func TestSubsample(t *testing.T) {
	img := testImage(10, 10)
	cases := []struct {
		rect   image.Rectangle
		sample int
		want   image.Point
	}{
		{image.Rect(0, 0, 10, 10), 1, image.Pt(10, 10)},
		{image.Rect(0, 0, 10, 10), 3, image.Pt(4, 4)},
		{image.Rect(2, 3, 7, 10), 2, image.Pt(3, 4)},
		{image.Rect(8, 8, 20, 20), 1, image.Pt(2, 2)},
	}
	for _, c := range cases {
		out, err := Subsample(img, c.rect, c.sample)
		if err != nil {
			t.Fatalf("Subsample(%v, %d): %v", c.rect, c.sample, err)
		}
		if out.Bounds().Size() != c.want {
			t.Errorf("Subsample(%v, %d) size = %v, want %v", c.rect, c.sample, out.Bounds().Size(), c.want)
		}
	}

	exact, _ := Subsample(img, image.Rect(2, 3, 7, 10), 1)
	if got := color.NRGBAModel.Convert(exact.At(0, 0)).(color.NRGBA); got != img.NRGBAAt(2, 3) {
		t.Errorf("copy origin = %v, want %v", got, img.NRGBAAt(2, 3))
	}
	if _, err := Subsample(img, image.Rect(20, 20, 30, 30), 1); err == nil {
		t.Error("region outside image accepted")
	}
}

func TestSourceLength(t *testing.T) {
	if n, ok := BytesSource(make([]byte, 42)).Length(); !ok || n != 42 {
		t.Errorf("bytes Length() = %d, %v", n, ok)
	}
	path := filepath.Join(t.TempDir(), "f")
	os.WriteFile(path, make([]byte, 7), 0o644)
	if n, ok := FileSource(path).Length(); !ok || n != 7 {
		t.Errorf("file Length() = %d, %v", n, ok)
	}
	if _, ok := FileSource(path + ".missing").Length(); ok {
		t.Error("missing file has a length")
	}
}
