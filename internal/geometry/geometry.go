// Package geometry provides the unit conversion, rectangle spacing and
// luminance math used by the metric calculators.
package geometry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tmsikora/uiquality/internal/uitree"
)

// ToDP converts raw pixels to density-independent units.
func ToDP(px, density float64) float64 {
	return px / density
}

// GapBetween returns the pixel clearance between a and b along the axis that
// already separates them. Rectangles overlapping on both axes have gap 0.
// This is not the Euclidean distance: a diagonal neighbour reports the larger
// of its horizontal and vertical gaps.
func GapBetween(a, b uitree.Rect) int {
	horizontal := max(0, b.Left-a.Right, a.Left-b.Right)
	vertical := max(0, b.Top-a.Bottom, a.Top-b.Bottom)
	return max(horizontal, vertical)
}

// Color is an sRGB color with 8-bit channels.
type Color struct {
	R, G, B uint8
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("geometry: invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("geometry: invalid color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// channel linearises one normalised sRGB channel.
func channel(c uint8) float64 {
	x := float64(c) / 255
	if x <= 0.03928 {
		return x / 12.92
	}
	return math.Pow((x+0.055)/1.055, 2.4)
}

// RelativeLuminance returns L = 0.2126R + 0.7152G + 0.0722B over linearised channels.
func RelativeLuminance(c Color) float64 {
	return 0.2126*channel(c.R) + 0.7152*channel(c.G) + 0.0722*channel(c.B)
}

// ContrastRatio returns (Lmax+0.05)/(Lmin+0.05), in [1, 21].
func ContrastRatio(a, b Color) float64 {
	la, lb := RelativeLuminance(a), RelativeLuminance(b)
	return (max(la, lb) + 0.05) / (min(la, lb) + 0.05)
}
