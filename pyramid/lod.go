package pyramid

import "math"

// SentinelSampleSize is returned by CalculateInSampleSize when the requested
// output has a zero dimension. It asks for a cheap decode; a fit pass always
// follows and computes the real value.
const SentinelSampleSize = 32

// CalculateInSampleSize returns the power-of-two subsampling factor needed to
// display a sWidth×sHeight image at the given scale.
//
// densityFactor is the minimum tile density divided by the display density
// (minimumTileDPI / displayDPI). It lets tiles be decoded at lower resolution
// on high density screens. Values <= 0 disable the adjustment.
//
// The ideal integer ratio is always rounded down to a power of two:
// under-subsampling only costs memory, over-subsampling loses detail.
func CalculateInSampleSize(sWidth, sHeight int, scale, densityFactor float64) int {
	if densityFactor > 0 {
		scale *= densityFactor
	}

	reqWidth := int(float64(sWidth) * scale)
	reqHeight := int(float64(sHeight) * scale)
	if reqWidth <= 0 || reqHeight <= 0 {
		return SentinelSampleSize
	}

	ratio := 1
	if sHeight > reqHeight || sWidth > reqWidth {
		heightRatio := round(float64(sHeight) / float64(reqHeight))
		widthRatio := round(float64(sWidth) / float64(reqWidth))
		ratio = min(heightRatio, widthRatio)
	}

	power := 1
	for power*2 <= ratio {
		power *= 2
	}
	return power
}

// BaseSampleSize derives the base layer sample size from the sample size that
// fits the whole image in the viewport.
//
// The base layer is loaded one level finer than the fit: the next level down
// is split into four tiles and near the centre all four would be needed, so
// tiling only starts to pay off at the level below that. coarse disables the
// refinement and uses the fit level itself.
func BaseSampleSize(fitSampleSize int, coarse bool) int {
	if fitSampleSize > 1 && !coarse {
		return fitSampleSize / 2
	}
	return max(fitSampleSize, 1)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// round mirrors the usual half-up rounding of a positive ratio.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
