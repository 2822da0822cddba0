package video

import (
	"image"
	"strings"
)

// braille dot bits for the 2x4 cell, indexed [row][col].
var brailleDots = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Braille renders img as rows of braille characters, one character per 2x4
// pixel block. Any non-black pixel sets its dot.
func Braille(img *image.RGBA) string {
	b := img.Bounds()
	var sb strings.Builder
	sb.Grow((b.Dx()/2 + 1) * (b.Dy()/4 + 1) * 3)

	for y := b.Min.Y; y < b.Max.Y; y += 4 {
		for x := b.Min.X; x < b.Max.X; x += 2 {
			r := rune(0x2800)
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					px, py := x+dx, y+dy
					if px >= b.Max.X || py >= b.Max.Y {
						continue
					}
					c := img.RGBAAt(px, py)
					if c.R|c.G|c.B != 0 {
						r |= brailleDots[dy][dx]
					}
				}
			}
			sb.WriteRune(r)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
