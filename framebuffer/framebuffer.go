// Package framebuffer provides the pixel memory the renderer draws into.
package framebuffer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Surface describes the panel's pixel memory. It is built once at startup
// from the panel info and never changes.
type Surface struct {
	Width, Height int
	Format        Format
	Stride        int // bytes per row
	Size          int // bytes
}

func NewSurface(resolution image.Point, f Format) (Surface, error) {
	if resolution.X <= 0 || resolution.Y <= 0 {
		return Surface{}, fmt.Errorf("framebuffer: invalid resolution %v", resolution)
	}
	stride := resolution.X * f.Bytes()
	return Surface{
		Width:  resolution.X,
		Height: resolution.Y,
		Format: f,
		Stride: stride,
		Size:   stride * resolution.Y,
	}, nil
}

// BPP returns the number of bytes per pixel.
func (s Surface) BPP() int { return s.Format.Bytes() }

// Rect returns the bounds of the surface.
func (s Surface) Rect() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// Offset returns the byte offset of pixel (x, y).
func (s Surface) Offset(x, y int) int {
	return y*s.Stride + x*s.BPP()
}

// Covers reports whether r covers the whole surface.
func (s Surface) Covers(r image.Rectangle) bool {
	return s.Rect().In(r)
}

// Image returns an image of s backed by pix, which must hold at least Size
// bytes. The concrete type is *RGB565Image or *image.RGBA.
func (s Surface) Image(pix []byte) draw.Image {
	pix = pix[:s.Size]
	switch s.Format {
	case RGB565:
		return &RGB565Image{Pix: pix, Stride: s.Stride, Rect: s.Rect()}
	case RGBA8888:
		return &image.RGBA{Pix: pix, Stride: s.Stride, Rect: s.Rect()}
	}
	panic("framebuffer: unknown format")
}

// Buffer is a surface sized block of pixel memory. It implements draw.Image.
type Buffer struct {
	Index int
	Pix   []byte

	surface Surface
	img     draw.Image
}

// NewBuffer allocates a buffer for s. Index identifies the buffer in its
// pool.
func NewBuffer(s Surface, index int) *Buffer {
	b := &Buffer{Index: index, surface: s}
	switch s.Format {
	case RGB565:
		img := NewRGB565(s.Rect())
		b.Pix, b.img = img.Pix, img
	case RGBA8888:
		img := NewRGBA8888(s.Rect())
		b.Pix, b.img = img.Pix, img
	default:
		panic("framebuffer: unknown format")
	}
	return b
}

func (b *Buffer) Surface() Surface { return b.surface }

// Image returns the concrete image backing the buffer (*RGB565Image or
// *image.RGBA), so draw.DrawMask can select its optimized paths.
func (b *Buffer) Image() draw.Image { return b.img }

// Row returns the pixel memory of row y.
func (b *Buffer) Row(y int) []byte {
	s := b.surface
	return b.Pix[y*s.Stride : (y+1)*s.Stride]
}

// Span returns the bytes of r's rows from the first pixel of r up to the
// last, including the parts of intermediate rows outside of r.
func (b *Buffer) Span(r image.Rectangle) []byte {
	s := b.surface
	return b.Pix[s.Offset(r.Min.X, r.Min.Y) : s.Offset(r.Max.X-1, r.Max.Y-1)+s.BPP()]
}

func (b *Buffer) ColorModel() color.Model     { return b.img.ColorModel() }
func (b *Buffer) Bounds() image.Rectangle     { return b.img.Bounds() }
func (b *Buffer) At(x, y int) color.Color     { return b.img.At(x, y) }
func (b *Buffer) Set(x, y int, c color.Color) { b.img.Set(x, y, c) }

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer %d", b.Index)
}
