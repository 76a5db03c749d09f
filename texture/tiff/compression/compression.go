// Package compression lists the TIFF Compression tag values.
package compression

const (
	None       = 1
	LZW        = 5
	Deflate    = 8
	DeflateOld = 32946
)

// Supported reports whether the region reader can inflate chunks using c.
func Supported(c int) bool {
	switch c {
	case None, LZW, Deflate, DeflateOld:
		return true
	}
	return false
}
