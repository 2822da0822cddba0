package video

import (
	"image"
	"sync"
)

// Screen is a double-buffered frame shared between the emulation goroutine,
// which publishes, and a renderer, which reads. Only one goroutine may call
// Publish.
type Screen struct {
	mu      sync.RWMutex
	front   *image.RGBA
	back    *image.RGBA
	overlay bool
	frames  uint64
}

func NewScreen(overlay bool) *Screen {
	return &Screen{
		front:   NewImage(),
		back:    NewImage(),
		overlay: overlay,
	}
}

// Publish decodes vram into the back buffer and swaps it to the front.
func (s *Screen) Publish(vram []byte) {
	s.mu.RLock()
	overlay := s.overlay
	s.mu.RUnlock()

	Decode(vram, s.back, overlay)

	s.mu.Lock()
	s.front, s.back = s.back, s.front
	s.frames++
	s.mu.Unlock()
}

// View calls fn with the current front buffer. fn must not retain the image.
func (s *Screen) View(fn func(img *image.RGBA)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.front)
}

// Snapshot returns a copy of the current frame.
func (s *Screen) Snapshot() *image.RGBA {
	img := NewImage()
	s.View(func(front *image.RGBA) {
		copy(img.Pix, front.Pix)
	})
	return img
}

// Frames reports how many frames have been published.
func (s *Screen) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// SetOverlay switches the colour gel on or off from the next frame.
func (s *Screen) SetOverlay(on bool) {
	s.mu.Lock()
	s.overlay = on
	s.mu.Unlock()
}
