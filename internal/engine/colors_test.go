package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeColorPalettePassthrough(t *testing.T) {
	for i, c := range StatusPalette {
		if got := NormalizeColor(c, i); got != c {
			t.Errorf("palette color %q changed to %q", c, got)
		}
	}

	// Case and whitespace do not matter.
	assert.Equal(t, "#98cbff", NormalizeColor("  #98CBFF ", 0))
}

func TestNormalizeColorKeywords(t *testing.T) {
	tests := []struct {
		color string
		want  string
	}{
		{"#blue", "#98cbff"},
		{"light-blue", "#98cbff"},
		{"green", "#87f2c0"},
		{"red", "#ff8f92"},
		{"pink", "#ff8f92"},
		{"purple", "#eb93ff"},
		{"violet", "#eb93ff"},
		{"yellow", "#fff000"},
		{"orange", "#ffce5a"},
	}
	for _, tt := range tests {
		t.Run(tt.color, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColor(tt.color, 0))
		})
	}
}

func TestNormalizeColorHexFamilies(t *testing.T) {
	tests := []struct {
		color string
		want  string
	}{
		{"#0000ff", "#98cbff"}, // pure blue
		{"#ff0000", "#ff8f92"}, // pure red
		{"#00ff00", "#87f2c0"}, // pure green
		{"#ffff00", "#fff000"}, // pure yellow
		{"#ffa500", "#ffce5a"}, // orange
		{"#99ccff", "#98cbff"}, // the legacy default shade lands in blue
		{"#f00", "#ff8f92"},    // short form expands
	}
	for _, tt := range tests {
		t.Run(tt.color, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColor(tt.color, 0))
		})
	}
}

func TestNormalizeColorFallback(t *testing.T) {
	n := len(StatusPalette)

	assert.Equal(t, StatusPalette[0], NormalizeColor("", 0))
	assert.Equal(t, StatusPalette[3], NormalizeColor("not-a-color", 3))
	assert.Equal(t, StatusPalette[(n+2)%n], NormalizeColor("garbage", n+2))
}

func TestNormalizeColorIdempotent(t *testing.T) {
	inputs := []string{"#blue", "#99ccff", "nonsense", "#0000ff", "ORANGE", StatusPalette[7]}
	for i, c := range inputs {
		once := NormalizeColor(c, i)
		twice := NormalizeColor(once, i)
		assert.Equal(t, once, twice, "normalizing %q twice diverged", c)
	}
}

func TestNormalizeColorAlwaysInPalette(t *testing.T) {
	inputs := []string{"", "#123456", "#zzz", "blueish", "#ff00ff", "#808080", DefaultStageColor}
	for i, c := range inputs {
		got := NormalizeColor(c, i)
		if _, ok := paletteSet[got]; !ok {
			t.Errorf("NormalizeColor(%q) = %q, not a palette member", c, got)
		}
	}
}
