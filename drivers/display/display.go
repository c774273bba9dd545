// Package display ports the pix graphics library to the flush coordinator.
//
// The Driver draws into the buffer currently owned by the renderer and
// collects the changed region. Flush hands the buffer to the coordinator and
// continues with the next one, which is first brought up to date with what
// was flushed from the other buffers in the meantime.
package display

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/embeddedgo/display/pix"

	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
)

var ErrRotation = errors.New("display: rotation not supported")

// Driver implements pix.Driver on top of a flush.Coordinator.
type Driver struct {
	c    *flush.Coordinator
	buf  *framebuffer.Buffer // renderer owned
	fill image.Uniform
	err  error

	dirty image.Rectangle

	// stale[i] is the region flushed from other buffers since buffer i
	// was flushed itself.
	stale  []image.Rectangle
	latest *framebuffer.Buffer

	start                 time.Time
	rendertime, frametime time.Duration
}

var _ pix.Driver = (*Driver)(nil)

// NewDriver returns a driver drawing into c's buffers. It acquires the first
// buffer right away.
func NewDriver(c *flush.Coordinator) *Driver {
	d := &Driver{
		c:     c,
		fill:  image.Uniform{C: color.Black},
		stale: make([]image.Rectangle, c.Buffers()),
	}
	d.buf = c.Next()
	d.start = time.Now()
	return d
}

// New returns a pix.Display backed by a new Driver for c.
func New(c *flush.Coordinator) (*pix.Display, *Driver) {
	d := NewDriver(c)
	return pix.NewDisplay(d), d
}

// SetDir implements pix.Driver. Only the panel's native direction is
// supported, other directions are reported by Err.
func (d *Driver) SetDir(dir int) image.Rectangle {
	if dir%4 != 0 {
		d.err = ErrRotation
	}
	return d.c.Surface().Rect()
}

// Draw implements pix.Driver.
func (d *Driver) Draw(r image.Rectangle, src image.Image, sp image.Point, mask image.Image, mp image.Point, op draw.Op) {
	clipped := r.Intersect(d.c.Surface().Rect())
	if clipped.Empty() {
		return
	}
	draw.DrawMask(d.buf.Image(), r, src, sp, mask, mp, op)
	d.dirty = d.dirty.Union(clipped)
}

// SetColor implements pix.Driver.
func (d *Driver) SetColor(c color.Color) {
	d.fill.C = c
}

// Fill implements pix.Driver.
func (d *Driver) Fill(r image.Rectangle) {
	d.Draw(r, &d.fill, image.Point{}, nil, image.Point{}, draw.Over)
}

// Flush implements pix.Driver. It hands the drawn region to the coordinator
// and continues with the next buffer. Nothing happens if nothing was drawn.
func (d *Driver) Flush() {
	if d.dirty.Empty() {
		return
	}
	d.rendertime = time.Since(d.start)

	buf, r := d.buf, d.dirty
	d.c.Flush(buf, r)
	for i := range d.stale {
		if i != buf.Index {
			d.stale[i] = d.stale[i].Union(r)
		}
	}
	d.stale[buf.Index] = image.Rectangle{}
	d.latest = buf
	d.dirty = image.Rectangle{}

	d.buf = d.c.Next()
	d.sync()

	d.frametime = time.Since(d.start)
	d.start = time.Now()
}

// Close flushes what was drawn since the last Flush and waits until all
// buffers are idle. Buffers that missed regions flushed from the others are
// brought up to date, so a new Driver may start with any of them. The Driver
// must not be used afterwards.
func (d *Driver) Close() {
	if d.buf == nil {
		return
	}
	d.Flush()
	d.c.Release(d.buf)
	for i, r := range d.stale {
		d.buf = d.c.Buffer(i)
		d.c.AwaitIdle(d.buf)
		if !r.Empty() {
			d.c.Acquire(d.buf)
			d.sync()
			d.c.Release(d.buf)
		}
	}
	d.buf = nil
}

// sync copies the stale region of the renderer's buffer from the most
// recently flushed one. The latter may still be in flight, it is only read.
func (d *Driver) sync() {
	i := d.buf.Index
	r := d.stale[i]
	d.stale[i] = image.Rectangle{}
	if r.Empty() || d.latest == nil || d.latest == d.buf {
		return
	}
	s := d.c.Surface()
	off, n := s.Offset(r.Min.X, r.Min.Y), r.Dx()*s.BPP()
	for y := range r.Dy() {
		o := off + y*s.Stride
		copy(d.buf.Pix[o:o+n], d.latest.Pix[o:o+n])
	}
}

// Err implements pix.Driver.
func (d *Driver) Err(clear bool) error {
	err := d.err
	if clear {
		d.err = nil
	}
	return err
}

// Buffer returns the buffer the renderer currently draws into.
func (d *Driver) Buffer() *framebuffer.Buffer { return d.buf }

// Dirty returns the region drawn since the last Flush.
func (d *Driver) Dirty() image.Rectangle { return d.dirty }

// FPS returns the frame rate of the last frame.
func (d *Driver) FPS() float32 {
	if d.frametime == 0 {
		return 0
	}
	return 1e9 / float32(d.frametime)
}

// Duration returns the time spent drawing the last frame.
func (d *Driver) Duration() time.Duration {
	return d.rendertime
}
