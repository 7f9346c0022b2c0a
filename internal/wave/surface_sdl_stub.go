//go:build !sdl

package wave

import "errors"

// NewSDLSurface is unavailable without the sdl build tag.
func NewSDLSurface(title string, width, height int) (Surface, error) {
	return nil, errors.New("SDL surface not enabled; rebuild with -tags sdl")
}

// SupportsSDL reports whether the binary was built with the sdl tag.
func SupportsSDL() bool { return false }
