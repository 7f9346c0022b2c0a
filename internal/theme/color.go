package theme

import (
	"fmt"
	"strings"
)

// Color is an opaque sRGB color.
type Color struct {
	R, G, B uint8
}

// ParseHex parses "#rrggbb" or "rrggbb" (case-insensitive).
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid hex color %q", s)
	}
	var c Color
	if _, err := fmt.Sscanf(strings.ToLower(s), "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return c, nil
}

// MustHex parses a hex color and panics on failure. For static registry entries.
func MustHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats the color as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Interpolate blends a toward b linearly in RGB. Exact at the boundaries:
// t<=0 returns a, t>=1 returns b.
func Interpolate(a, b Color, t float64) Color {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return Color{
		R: lerpByte(a.R, b.R, t),
		G: lerpByte(a.G, b.G, t),
		B: lerpByte(a.B, b.B, t),
	}
}

// Shift blends base toward tint by amount, used for error color treatment.
func Shift(base, tint Color, amount float64) Color {
	return Interpolate(base, tint, clamp01(amount))
}

// Scale multiplies each channel by v in [0,1].
func Scale(c Color, v float64) Color {
	v = clamp01(v)
	return Color{
		R: uint8(float64(c.R) * v),
		G: uint8(float64(c.G) * v),
		B: uint8(float64(c.B) * v),
	}
}

func lerpByte(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// GradientStop is one anchor of a background gradient.
type GradientStop struct {
	Offset float64 `json:"offset"`
	Color  Color   `json:"color"`
}

// interpolateStops blends two stop sequences pairwise. Unequal lengths are
// handled by padding the shorter sequence with repeats of its last stop.
func interpolateStops(from, to []GradientStop, t float64) []GradientStop {
	n := len(from)
	if len(to) > n {
		n = len(to)
	}
	if n == 0 {
		return nil
	}
	out := make([]GradientStop, n)
	for i := 0; i < n; i++ {
		f := stopAt(from, i)
		g := stopAt(to, i)
		out[i] = GradientStop{
			Offset: f.Offset + (g.Offset-f.Offset)*clamp01(t),
			Color:  Interpolate(f.Color, g.Color, t),
		}
	}
	return out
}

func stopAt(stops []GradientStop, i int) GradientStop {
	if len(stops) == 0 {
		return GradientStop{}
	}
	if i >= len(stops) {
		return stops[len(stops)-1]
	}
	return stops[i]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
