// Package convert turns images and colors into the RGB565 words the panel
// is configured for.
package convert

import (
	"image"
	"image/color"
)

// RGB565 packs 8-bit channels into a 5-6-5 word.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// RGBA expands a 5-6-5 word, replicating high bits into the low ones so
// that 0xFFFF maps to opaque white.
func RGBA(c uint16) color.RGBA {
	r := uint8(c>>11) & 0x1F
	g := uint8(c>>5) & 0x3F
	b := uint8(c) & 0x1F
	return color.RGBA{
		R: r<<3 | r>>2,
		G: g<<2 | g>>4,
		B: b<<3 | b>>2,
		A: 0xFF,
	}
}

// FromColor converts any color, flattening alpha onto black.
func FromColor(c color.Color) uint16 {
	r, g, b, _ := c.RGBA()
	return RGB565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Model quantizes colors to what the panel can show.
var Model = color.ModelFunc(func(c color.Color) color.Color {
	return RGBA(FromColor(c))
})

// Pixels returns the pixels of img inside r in row-major order. Parts of r
// outside img's bounds come out black.
func Pixels(img image.Image, r image.Rectangle) []uint16 {
	out := make([]uint16, r.Dx()*r.Dy())
	src := r.Intersect(img.Bounds())
	if src.Empty() {
		return out
	}
	w := r.Dx()

	// Fast path for the common screenshot/decoder output types: index Pix
	// directly instead of going through At().
	switch m := img.(type) {
	case *image.RGBA:
		for y := src.Min.Y; y < src.Max.Y; y++ {
			row := (y - r.Min.Y) * w
			off := m.PixOffset(src.Min.X, y)
			for x := src.Min.X; x < src.Max.X; x++ {
				out[row+x-r.Min.X] = RGB565(m.Pix[off], m.Pix[off+1], m.Pix[off+2])
				off += 4
			}
		}
	case *image.NRGBA:
		for y := src.Min.Y; y < src.Max.Y; y++ {
			row := (y - r.Min.Y) * w
			off := m.PixOffset(src.Min.X, y)
			for x := src.Min.X; x < src.Max.X; x++ {
				a := uint16(m.Pix[off+3])
				out[row+x-r.Min.X] = RGB565(
					uint8(uint16(m.Pix[off])*a/0xFF),
					uint8(uint16(m.Pix[off+1])*a/0xFF),
					uint8(uint16(m.Pix[off+2])*a/0xFF),
				)
				off += 4
			}
		}
	default:
		for y := src.Min.Y; y < src.Max.Y; y++ {
			row := (y - r.Min.Y) * w
			for x := src.Min.X; x < src.Max.X; x++ {
				out[row+x-r.Min.X] = FromColor(img.At(x, y))
			}
		}
	}
	return out
}

// Scale fits img into a w x h frame with nearest-neighbour sampling,
// keeping the aspect ratio and centring it on black.
func Scale(img image.Image, w, h int) []uint16 {
	out := make([]uint16, w*h)
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return out
	}

	// Largest dw x dh inside w x h with dw/dh == sw/sh.
	dw, dh := w, sh*w/sw
	if dh > h {
		dw, dh = sw*h/sh, h
	}
	if dw == 0 || dh == 0 {
		return out
	}
	ox, oy := (w-dw)/2, (h-dh)/2

	for y := 0; y < dh; y++ {
		sy := b.Min.Y + y*sh/dh
		for x := 0; x < dw; x++ {
			sx := b.Min.X + x*sw/dw
			out[(oy+y)*w+ox+x] = FromColor(img.At(sx, sy))
		}
	}
	return out
}

// Bars are the colors of TestPattern, left to right.
var Bars = [8]uint16{
	0xFFFF, // white
	0xFFE0, // yellow
	0x07FF, // cyan
	0x07E0, // green
	0xF81F, // magenta
	0xF800, // red
	0x001F, // blue
	0x0000, // black
}

// TestPattern returns w x h pixels of eight vertical color bars.
func TestPattern(w, h int) []uint16 {
	out := make([]uint16, w*h)
	if w <= 0 {
		return out
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = Bars[x*len(Bars)/w]
		}
	}
	return out
}
