// Package video turns the 1-bit video memory of the arcade board into images.
package video

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"go8080/pkg/grid"
)

const (
	// Width and Height describe the upright cabinet picture.
	Width  = 224
	Height = 256

	// MemorySize is the length of the video window: one bit per pixel.
	MemorySize = Width * Height / 8

	bytesPerColumn = Height / 8
)

var (
	Black = color.RGBA{A: 0xFF}
	White = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	Red   = color.RGBA{R: 0xFF, G: 0x20, B: 0x20, A: 0xFF}
	Green = color.RGBA{R: 0x20, G: 0xFF, B: 0x20, A: 0xFF}
)

// NewImage allocates an upright frame.
func NewImage() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, Width, Height))
}

// overlayColor returns the colour of the cellophane strip over row y.
func overlayColor(x, y int) color.RGBA {
	switch {
	case y >= 32 && y < 64:
		return Red
	case y >= 184 && y < 240:
		return Green
	case y >= 240 && x >= 16 && x < 134:
		return Green
	default:
		return White
	}
}

// Decode renders the video window into dst. The monitor is mounted rotated,
// so each 32-byte run of memory is one column read from the bottom up.
// Short windows leave the remaining pixels black.
func Decode(vram []byte, dst *image.RGBA, overlay bool) {
	for i := 0; i < MemorySize; i++ {
		var b byte
		if i < len(vram) {
			b = vram[i]
		}

		row, x := grid.GetGridCoords(i, bytesPerColumn)
		for bit := 0; bit < 8; bit++ {
			y := Height - 1 - (row*8 + bit)
			c := Black
			if b&(1<<bit) != 0 {
				c = White
				if overlay {
					c = overlayColor(x, y)
				}
			}
			dst.SetRGBA(x, y, c)
		}
	}
}

// Scale returns img enlarged by an integer factor with nearest-neighbour
// sampling.
func Scale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// SavePNG encodes img, scaled by factor, as a PNG file.
func SavePNG(filename string, img image.Image, factor int) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(f, Scale(img, factor)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
