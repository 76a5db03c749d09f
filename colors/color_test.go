package colors

import (
	"image/color"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want color.NRGBA
	}{
		{"#000000", color.NRGBA{0, 0, 0, 255}},
		{"ff8000", color.NRGBA{255, 128, 0, 255}},
		{"#f80", color.NRGBA{255, 136, 0, 255}},
		{"#10203040", color.NRGBA{16, 32, 48, 64}},
		{"white", color.NRGBA{255, 255, 255, 255}},
		{"Purple", color.NRGBA{128, 0, 128, 255}},
		{"transparent", color.NRGBA{}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", c.in, err)
			continue
		}
		if n := got.ToNRGBA(); n != c.want {
			t.Errorf("Parse(%q) = %v, want %v", c.in, n, c.want)
		}
	}

	for _, bad := range []string{"", "#12", "#gggggg", "notacolor"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) accepted", bad)
		}
	}
}

func TestFromStandardColorRoundTrip(t *testing.T) {
	in := color.NRGBA{R: 200, G: 100, B: 50, A: 255}
	if got := FromStandardColor(in).ToNRGBA(); got != in {
		t.Errorf("round trip = %v, want %v", got, in)
	}
	if got := FromStandardColor(color.Transparent); got != Transparent() {
		t.Errorf("transparent = %v", got)
	}
}

func TestLevelTintDistinct(t *testing.T) {
	seen := map[color.NRGBA]int{}
	for _, s := range []int{1, 2, 4, 8, 16, 32} {
		c := LevelTint(s).ToNRGBA()
		if prev, ok := seen[c]; ok {
			t.Errorf("levels %d and %d share tint %v", prev, s, c)
		}
		seen[c] = s
	}
}

func TestMixAndAlpha(t *testing.T) {
	red := New(1, 0, 0, 1)
	cases := []struct {
		name string
		got  Color4
		want color.NRGBA
	}{
		{"start", red.Mix(White(), 0), color.NRGBA{255, 0, 0, 255}},
		{"end", red.Mix(Black(), 1), color.NRGBA{0, 0, 0, 255}},
		{"half", red.Mix(White(), 0.5), color.NRGBA{255, 128, 128, 255}},
		{"alpha", red.WithAlpha(0.5), color.NRGBA{255, 0, 0, 128}},
	}
	for _, c := range cases {
		if n := c.got.ToNRGBA(); n != c.want {
			t.Errorf("%s = %v, want %v", c.name, n, c.want)
		}
	}
}

func TestLevelTintIsPastel(t *testing.T) {
	// Sample size 1 is pure red lightened by a fifth.
	if got, want := LevelTint(1).ToNRGBA(), (color.NRGBA{255, 51, 51, 255}); got != want {
		t.Errorf("LevelTint(1) = %v, want %v", got, want)
	}
}
