//go:build sdl

package wave

import (
	"errors"
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/wavecalm/wavecalm/internal/theme"
)

// ErrSurfaceClosed is returned from Blit when the window was closed by the
// user.
var ErrSurfaceClosed = errors.New("wave: surface closed")

// SDLSurface renders frames into a streaming texture in an SDL window.
type SDLSurface struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	pixels   []byte
	width    int
	height   int
	pitch    int
	title    string
}

// NewSDLSurface opens a window of the given pixel dimensions.
func NewSDLSurface(title string, width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	window, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height), sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create window: %w", err)
	}
	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STREAMING,
		int32(width), int32(height))
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		return nil, fmt.Errorf("create texture: %w", err)
	}
	_ = renderer.SetLogicalSize(int32(width), int32(height))

	return &SDLSurface{
		window:   window,
		renderer: renderer,
		texture:  texture,
		pixels:   make([]byte, width*height*4),
		width:    width,
		height:   height,
		pitch:    width * 4,
		title:    title,
	}, nil
}

func (s *SDLSurface) Size() (int, int) { return s.width, s.height }

func (s *SDLSurface) Blit(pixels []theme.Color, width, height int, status string) error {
	if width != s.width || height != s.height {
		return fmt.Errorf("frame size %dx%d does not match surface %dx%d", width, height, s.width, s.height)
	}
	if len(pixels) < width*height {
		return fmt.Errorf("short pixel buffer: have %d want %d", len(pixels), width*height)
	}
	for i, px := range pixels[:width*height] {
		off := i * 4
		s.pixels[off+0] = px.R
		s.pixels[off+1] = px.G
		s.pixels[off+2] = px.B
		s.pixels[off+3] = 255
	}
	if status != "" && status != s.title {
		_ = s.window.SetTitle(status)
		s.title = status
	}
	if err := s.texture.Update(nil, s.pixels, s.pitch); err != nil {
		return err
	}
	if err := s.renderer.Clear(); err != nil {
		return err
	}
	if err := s.renderer.Copy(s.texture, nil, nil); err != nil {
		return err
	}
	s.renderer.Present()
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if _, ok := event.(*sdl.QuitEvent); ok {
			return ErrSurfaceClosed
		}
	}
	return nil
}

func (s *SDLSurface) Close() error {
	if s.texture != nil {
		s.texture.Destroy()
		s.texture = nil
	}
	if s.renderer != nil {
		s.renderer.Destroy()
		s.renderer = nil
	}
	if s.window != nil {
		s.window.Destroy()
		s.window = nil
	}
	sdl.QuitSubSystem(sdl.INIT_VIDEO)
	return nil
}

// SupportsSDL reports whether the binary was built with the sdl tag.
func SupportsSDL() bool { return true }
