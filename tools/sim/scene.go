package sim

import (
	"image"
	"image/color"

	"github.com/embeddedgo/display/pix"
	"golang.org/x/image/colornames"
)

// scene is a set of boxes bouncing off the edges of the screen. Moving a box
// dirties a small region on its old and its new position, odd positions end
// up on the CPU path and the initial background on the bulk path.
type scene struct {
	a     *pix.Area
	bg    color.Color
	boxes []box
}

type box struct {
	r   image.Rectangle
	v   image.Point
	col color.Color
}

func newScene(a *pix.Area) *scene {
	b := a.Bounds()
	size := image.Pt(b.Dx()/8, b.Dy()/6)
	s := &scene{a: a, bg: colornames.Midnightblue}
	for i, c := range []color.Color{colornames.Orange, colornames.Teal, colornames.Crimson, colornames.Gold} {
		p := b.Min.Add(image.Pt(b.Dx()*(i+1)/6+i, b.Dy()*(i+1)/6))
		s.boxes = append(s.boxes, box{
			r:   image.Rectangle{p, p.Add(size)},
			v:   image.Pt(3+i, 2+i%2),
			col: c,
		})
	}
	return s
}

// draw renders frame n. Frames must be drawn in order.
func (s *scene) draw(n int) {
	if n == 0 {
		s.a.SetColor(s.bg)
		s.a.Fill(s.a.Bounds())
	}
	for i := range s.boxes {
		b := &s.boxes[i]
		if n > 0 {
			s.a.SetColor(s.bg)
			s.a.Fill(b.r)
			b.move(s.a.Bounds())
		}
		s.a.SetColor(b.col)
		s.a.Fill(b.r)
	}
}

func (b *box) move(bounds image.Rectangle) {
	r := b.r.Add(b.v)
	if r.Min.X < bounds.Min.X || r.Max.X > bounds.Max.X {
		b.v.X = -b.v.X
	}
	if r.Min.Y < bounds.Min.Y || r.Max.Y > bounds.Max.Y {
		b.v.Y = -b.v.Y
	}
	b.r = b.r.Add(b.v)
}
