package video

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestDecodeRotation(t *testing.T) {
	vram := make([]byte, MemorySize)
	vram[0] = 0x01  // column 0, bottom pixel
	vram[1] = 0x01  // column 0, eight pixels up
	vram[32] = 0x80 // column 1, bit 7
	vram[MemorySize-1] = 0x80

	img := NewImage()
	Decode(vram, img, false)

	assert.Equal(t, White, img.RGBAAt(0, 255))
	assert.Equal(t, White, img.RGBAAt(0, 247))
	assert.Equal(t, White, img.RGBAAt(1, 248))
	assert.Equal(t, White, img.RGBAAt(Width-1, 0))
	assert.Equal(t, Black, img.RGBAAt(0, 254))
	assert.Equal(t, Black, img.RGBAAt(2, 255))
}

func TestDecodeCountsEveryPixel(t *testing.T) {
	vram := make([]byte, MemorySize)
	for i := range vram {
		vram[i] = 0xFF
	}
	img := NewImage()
	Decode(vram, img, false)

	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if img.RGBAAt(x, y) != White {
				t.Fatalf("pixel (%d,%d) not lit", x, y)
			}
		}
	}
}

func TestDecodeOverlay(t *testing.T) {
	vram := make([]byte, MemorySize)
	vram[26] = 0x80 // x=0, y=40
	vram[0] = 0x01  // x=0, y=255: outside the bottom strip
	vram[20*32] = 0x01
	vram[120*32+7] = 0x01 // x=120, y=199

	img := NewImage()
	Decode(vram, img, true)

	assert.Equal(t, Red, img.RGBAAt(0, 40))
	assert.Equal(t, White, img.RGBAAt(0, 255))
	assert.Equal(t, Green, img.RGBAAt(20, 255))
	assert.Equal(t, Green, img.RGBAAt(120, 199))
}

func TestDecodeShortWindow(t *testing.T) {
	img := NewImage()
	Decode([]byte{0xFF}, img, false)
	assert.Equal(t, White, img.RGBAAt(0, 248))
	assert.Equal(t, Black, img.RGBAAt(0, 247))
}

func TestScreenPublish(t *testing.T) {
	s := NewScreen(false)
	assert.Equal(t, uint64(0), s.Frames())

	vram := make([]byte, MemorySize)
	vram[0] = 0x01
	s.Publish(vram)

	assert.Equal(t, uint64(1), s.Frames())
	snap := s.Snapshot()
	assert.Equal(t, White, snap.RGBAAt(0, 255))

	// The snapshot is detached from later frames.
	s.Publish(make([]byte, MemorySize))
	assert.Equal(t, White, snap.RGBAAt(0, 255))
	s.View(func(img *image.RGBA) {
		assert.Equal(t, Black, img.RGBAAt(0, 255))
	})
}

func TestScreenConcurrentReaders(t *testing.T) {
	s := NewScreen(true)
	vram := make([]byte, MemorySize)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Snapshot()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		vram[i] = 0xFF
		s.Publish(vram)
	}
	wg.Wait()
	assert.Equal(t, uint64(50), s.Frames())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	img := NewImage()
	img.SetRGBA(0, 0, White)

	assert.NoError(t, SavePNG(path, img, 2))

	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	assert.NoError(t, err)
	assert.Equal(t, Width*2, decoded.Bounds().Dx())
	assert.Equal(t, Height*2, decoded.Bounds().Dy())

	r, g, b, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xFFFF), r&g&b)
}

func TestBraille(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, White)
		}
	}
	img.SetRGBA(3, 0, White)

	assert.Equal(t, "⣿⠈\n", Braille(img))
}
