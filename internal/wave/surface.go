package wave

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wavecalm/wavecalm/internal/theme"
)

// Surface is the drawing target the renderer blits completed frames onto.
type Surface interface {
	Size() (width, height int)
	Blit(pixels []theme.Color, width, height int, status string) error
	Close() error
}

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
	}
}

// shadePalette maps luminance to glyph density for the terminal surface.
var shadePalette = []rune(" ░▒▓█")

// TermSurface renders frames as ANSI-256 colored block rows.
type TermSurface struct {
	out     io.Writer
	width   int
	height  int
	useANSI bool
	builder strings.Builder
}

// NewTermSurface creates a terminal surface of the given cell dimensions.
func NewTermSurface(out io.Writer, width, height int, useANSI bool) (*TermSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}
	return &TermSurface{out: out, width: width, height: height, useANSI: useANSI}, nil
}

func (s *TermSurface) Size() (int, int) { return s.width, s.height }

// Resize updates the cell dimensions (terminal was resized).
func (s *TermSurface) Resize(width, height int) {
	if width > 0 {
		s.width = width
	}
	if height > 0 {
		s.height = height
	}
}

func (s *TermSurface) Blit(pixels []theme.Color, width, height int, status string) error {
	if len(pixels) < width*height {
		return fmt.Errorf("short pixel buffer: have %d want %d", len(pixels), width*height)
	}
	b := &s.builder
	b.Reset()
	b.Grow(width * height * 8)
	b.WriteString("\x1b[H")

	for y := 0; y < height; y++ {
		lastColor := -1
		row := pixels[y*width : (y+1)*width]
		for _, px := range row {
			lum := luminance(px)
			glyph := shadePalette[glyphIndex(lum)]
			if s.useANSI {
				code := rgbToANSI(px)
				if code != lastColor {
					b.WriteString(precomputedANSI[code])
					lastColor = code
				}
			}
			b.WriteRune(glyph)
		}
		if s.useANSI {
			b.WriteString(resetANSI)
		}
		b.WriteByte('\n')
	}
	if status != "" {
		b.WriteString(status)
	}

	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *TermSurface) Close() error { return nil }

func luminance(c theme.Color) float64 {
	return (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255.0
}

func glyphIndex(lum float64) int {
	idx := int(lum*float64(len(shadePalette)-1) + 0.5)
	if idx < 0 {
		return 0
	}
	if idx >= len(shadePalette) {
		return len(shadePalette) - 1
	}
	return idx
}

// rgbToANSI maps a color onto the xterm 256 palette, preferring the grayscale
// ramp for near-neutral colors.
func rgbToANSI(c theme.Color) int {
	r := float64(c.R) / 255.0
	g := float64(c.G) / 255.0
	b := float64(c.B) / 255.0

	if absF(r-g) < 0.02 && absF(g-b) < 0.02 {
		gray := int(clampF(r*23+0.5, 0, 23))
		return 232 + gray
	}

	ri := int(clampF(r*5+0.5, 0, 5))
	gi := int(clampF(g*5+0.5, 0, 5))
	bi := int(clampF(b*5+0.5, 0, 5))
	return 16 + 36*ri + 6*gi + bi
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampF(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
