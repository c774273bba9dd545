package flush

import (
	"fmt"

	"github.com/nuvoton-bsp/fbflush/debug"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal"
)

// State is the owner of a buffer.
type State int

const (
	Idle          State = iota // nobody, safe to hand to the renderer
	RendererOwned              // the renderer draws into it
	InFlight                   // a transfer reads from it
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RendererOwned:
		return "renderer owned"
	case InFlight:
		return "in flight"
	}
	return "state?"
}

// next returns the only state s may move to.
func (s State) next() State {
	return (s + 1) % 3
}

// slot is a buffer with its ownership tag. Slots live in one array indexed
// by Buffer.Index and are only modified by the renderer task.
type slot struct {
	buf   *framebuffer.Buffer
	state State

	// pending is set while the transfer reading from the buffer hasn't been
	// observed complete on engine's gate.
	pending bool
	engine  hal.Engine
}

// outstanding is the transfer an engine is busy with. [start, end) are the
// cache lines of display memory it writes.
type outstanding struct {
	active     bool
	slot       int
	start, end uintptr
}

func newSlots(s framebuffer.Surface, n int) []slot {
	slots := make([]slot, n)
	for i := range slots {
		slots[i].buf = framebuffer.NewBuffer(s, i)
	}
	return slots
}

func (c *Coordinator) slot(buf *framebuffer.Buffer) *slot {
	if buf == nil {
		panic("flush: nil buffer")
	}
	if buf.Index < 0 || buf.Index >= len(c.slots) || c.slots[buf.Index].buf != buf {
		panic(fmt.Sprintf("flush: %v doesn't belong to this coordinator", buf))
	}
	return &c.slots[buf.Index]
}

func (c *Coordinator) transition(s *slot, to State) {
	from := s.state
	debug.Assertf(from.next() == to, "flush: %v: %v -> %v", s.buf, from, to)
	s.state = to
	if c.cfg.Observe != nil {
		c.cfg.Observe(s.buf.Index, from, to)
	}
}
