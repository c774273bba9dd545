package framebuffer

import (
	"image"
	"image/color"

	"github.com/nuvoton-bsp/fbflush/hal/cpu"
)

// Alignment of pixel memory. Display controllers and the 2D graphics engine
// want their base address on a 64 byte boundary.
const Alignment = 64

// Format is the pixel layout of a surface.
type Format int

const (
	RGB565   Format = iota // 16 bit, little endian
	RGBA8888               // 32 bit, R G B A in memory
)

// Bytes returns the number of bytes per pixel.
func (f Format) Bytes() int {
	switch f {
	case RGB565:
		return 2
	case RGBA8888:
		return 4
	}
	panic("framebuffer: unknown format")
}

func (f Format) String() string {
	switch f {
	case RGB565:
		return "RGB565"
	case RGBA8888:
		return "RGBA8888"
	}
	return "Format?"
}

// FormatOf returns the format with bpp bytes per pixel.
func FormatOf(bpp int) (Format, bool) {
	switch bpp {
	case 2:
		return RGB565, true
	case 4:
		return RGBA8888, true
	}
	return 0, false
}

// NewRGBA8888 returns an image.RGBA backed by cache padded, aligned memory.
//
// draw.DrawMask chooses optimized implementations based on type assertions,
// that's why the 32 bit format is an image.RGBA specifically.
func NewRGBA8888(r image.Rectangle) *image.RGBA {
	return &image.RGBA{
		Pix:    cpu.MakePaddedSliceAligned[byte](r.Dx()*r.Dy()*4, Alignment),
		Stride: 4 * r.Dx(),
		Rect:   r,
	}
}

// RGB565Image stores pixels with 16 bit (5:6:5), little endian.
//
// It implements draw.Image, so all the drawing tools from the standard library
// can be used. It's slower than RGBA8888 though, because there are no
// optimizations for this type in the image/draw package.
type RGB565Image struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

func NewRGB565(r image.Rectangle) *RGB565Image {
	return &RGB565Image{
		Pix:    cpu.MakePaddedSliceAligned[byte](r.Dx()*r.Dy()*2, Alignment),
		Stride: 2 * r.Dx(),
		Rect:   r,
	}
}

func (p *RGB565Image) ColorModel() color.Model { return RGB565Model }

func (p *RGB565Image) Bounds() image.Rectangle { return p.Rect }

func (p *RGB565Image) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return Color565(0)
	}
	i := p.PixOffset(x, y)
	return Color565(uint16(p.Pix[i]) | uint16(p.Pix[i+1])<<8)
}

func (p *RGB565Image) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	col := rgb565Model(c).(Color565)
	p.Pix[i] = uint8(col)
	p.Pix[i+1] = uint8(col >> 8)
}

func (p *RGB565Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}

// Color565 is an opaque 16 bit color.
type Color565 uint16

func (c Color565) RGBA() (r, g, b, a uint32) {
	r = uint32(c>>11) & 0x1f
	g = uint32(c>>5) & 0x3f
	b = uint32(c) & 0x1f
	// Replicate the high bits into the low bits so that white is 0xffff.
	r = (r<<11 | r<<6 | r<<1 | r>>4)
	g = (g<<10 | g<<4 | g>>2)
	b = (b<<11 | b<<6 | b<<1 | b>>4)
	return r, g, b, 0xffff
}

var RGB565Model color.Model = color.ModelFunc(rgb565Model)

func rgb565Model(c color.Color) color.Color {
	if _, ok := c.(Color565); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return Color565((r & 0xf800) | (g&0xfc00)>>5 | (b&0xf800)>>11)
}
