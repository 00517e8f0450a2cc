package footprint

import (
	"fmt"
	"math"
)

// Color is an RGBA colour with alpha in [0, 1].
type Color struct {
	R uint8   `json:"r"`
	G uint8   `json:"g"`
	B uint8   `json:"b"`
	A float64 `json:"a"`
}

// Hex returns the colour as #rrggbb, ignoring alpha.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// WithAlpha returns c with alpha a.
func (c Color) WithAlpha(a float64) Color {
	c.A = a
	return c
}

// PlaneColor spreads plane hues evenly around the colour wheel at fixed
// saturation 0.8 and lightness 0.6. Planes outside [0, numPlanes) wrap.
func PlaneColor(plane, numPlanes int) Color {
	if numPlanes <= 0 {
		numPlanes = 1
	}
	plane = ((plane % numPlanes) + numPlanes) % numPlanes
	return hsl(float64(plane)*360/float64(numPlanes), 0.8, 0.6)
}

func hsl(h, s, l float64) Color {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := l - c/2
	return Color{R: channel(r + m), G: channel(g + m), B: channel(b + m), A: 1}
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
