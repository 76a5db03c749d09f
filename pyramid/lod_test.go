package pyramid

import (
	"math/rand/v2"
	"testing"
)

func TestCalculateInSampleSize(t *testing.T) {
	cases := []struct {
		name    string
		w, h    int
		scale   float64
		density float64
		want    int
	}{
		{"full resolution", 10000, 8000, 1.0, 0, 1},
		{"magnified", 1000, 800, 3.0, 0, 1},
		{"fit 10x", 10000, 8000, 0.1, 0, 8},
		{"exact power", 1600, 1600, 1.0 / 16, 0, 16},
		{"half", 4000, 3000, 0.5, 0, 2},
		{"ratio rounds to 3", 3000, 3000, 1.0 / 2.6, 0, 2},
		{"smaller ratio wins", 10000, 1000, 0.01, 0, 64},
		{"density halves scale", 10000, 8000, 0.1, 0.5, 16},
		{"density doubles scale", 10000, 8000, 0.1, 2, 4},
		{"zero scale", 10000, 8000, 0, 0, SentinelSampleSize},
		{"tiny scale", 100, 100, 0.001, 0, SentinelSampleSize},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CalculateInSampleSize(c.w, c.h, c.scale, c.density)
			if got != c.want {
				t.Errorf("CalculateInSampleSize(%d, %d, %v, %v) = %d, want %d",
					c.w, c.h, c.scale, c.density, got, c.want)
			}
		})
	}
}

func TestCalculateInSampleSize_AlwaysPowerOfTwo(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 5000 {
		w := 1 + rng.IntN(50000)
		h := 1 + rng.IntN(50000)
		scale := rng.Float64() * 2
		got := CalculateInSampleSize(w, h, scale, 0)
		if !IsPowerOfTwo(got) {
			t.Fatalf("CalculateInSampleSize(%d, %d, %v) = %d, not a power of two", w, h, scale, got)
		}

		// Rounding down never asks for less detail than the screen needs.
		reqW := int(float64(w) * scale)
		reqH := int(float64(h) * scale)
		if reqW > 0 && reqH > 0 && got > 1 {
			ratio := min(round(float64(w)/float64(reqW)), round(float64(h)/float64(reqH)))
			if got > ratio {
				t.Fatalf("sample size %d exceeds ideal ratio %d (w=%d h=%d scale=%v)", got, ratio, w, h, scale)
			}
		}
	}
}

func TestBaseSampleSize(t *testing.T) {
	cases := []struct {
		fit    int
		coarse bool
		want   int
	}{
		{8, false, 4},
		{8, true, 8},
		{2, false, 1},
		{1, false, 1},
		{1, true, 1},
		{0, false, 1},
		{32, false, 16},
	}
	for _, c := range cases {
		if got := BaseSampleSize(c.fit, c.coarse); got != c.want {
			t.Errorf("BaseSampleSize(%d, %v) = %d, want %d", c.fit, c.coarse, got, c.want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 4, 1024} {
		if !IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = false", n)
		}
	}
	for _, n := range []int{-4, 0, 3, 6, 1000} {
		if IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = true", n)
		}
	}
}
