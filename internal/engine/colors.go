package engine

import (
	"strconv"
	"strings"
)

// StatusPalette is the closed set of colors the CRM accepts on stages.
// Fixed by the vendor; identical across all tenants.
var StatusPalette = []string{
	"#fffeb2", "#fffd7f", "#fff000", "#ffeab2", "#ffdc7f", "#ffce5a",
	"#ffdbdb", "#ffc8c8", "#ff8f92", "#d6eaff", "#c1e0ff", "#98cbff",
	"#ebffb1", "#deff81", "#87f2c0", "#f9deff", "#f3beff", "#ccc8f9",
	"#eb93ff", "#f2f3f4", "#e6e8ea",
}

// DefaultStageColor is the placeholder used when the master carries no color.
const DefaultStageColor = "#99ccff"

var paletteSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(StatusPalette))
	for _, c := range StatusPalette {
		set[c] = struct{}{}
	}
	return set
}()

// Family representatives inside the palette.
const (
	paletteBlue   = "#98cbff"
	paletteGreen  = "#87f2c0"
	paletteRed    = "#ff8f92"
	palettePurple = "#eb93ff"
	paletteYellow = "#fff000"
	paletteOrange = "#ffce5a"
)

var colorKeywords = []struct {
	keyword string
	color   string
}{
	{"blue", paletteBlue},
	{"green", paletteGreen},
	{"red", paletteRed},
	{"pink", paletteRed},
	{"purple", palettePurple},
	{"violet", palettePurple},
	{"yellow", paletteYellow},
	{"orange", paletteOrange},
}

// NormalizeColor maps an arbitrary master color to a palette member.
// Palette members pass through; everything else is classified into a color
// family by keyword or hex channels; unclassifiable values fall back to the
// palette entry at the stage's position among its pipeline's processed
// stages. Idempotent: normalizing a normalized color is a no-op.
func NormalizeColor(color string, fallbackIndex int) string {
	c := strings.ToLower(strings.TrimSpace(color))
	if _, ok := paletteSet[c]; ok {
		return c
	}
	if family, ok := classifyKeyword(c); ok {
		return family
	}
	if family, ok := classifyHex(c); ok {
		return family
	}
	if fallbackIndex < 0 {
		fallbackIndex = -fallbackIndex
	}
	return StatusPalette[fallbackIndex%len(StatusPalette)]
}

func classifyKeyword(c string) (string, bool) {
	for _, kw := range colorKeywords {
		if strings.Contains(c, kw.keyword) {
			return kw.color, true
		}
	}
	return "", false
}

func classifyHex(c string) (string, bool) {
	hex := strings.TrimPrefix(c, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return "", false
	}
	val, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "", false
	}
	r := int((val >> 16) & 0xff)
	g := int((val >> 8) & 0xff)
	b := int(val & 0xff)

	switch {
	case r > 200 && g > 200 && b < 128:
		return paletteYellow, true
	case r > 200 && g > 100 && g < 200 && b < 100:
		return paletteOrange, true
	case r >= g && r >= b && r-b > 40:
		return paletteRed, true
	case b >= r && b >= g && b-r > 40 && b-g > 40:
		return paletteBlue, true
	case g >= r && g >= b && g-r > 40:
		return paletteGreen, true
	case r > 100 && b > 100 && g < r && g < b:
		return palettePurple, true
	}
	return "", false
}
