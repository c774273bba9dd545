package intr

import (
	"math/bits"
	"strconv"
	"sync/atomic"
)

// Flag identifies an interrupt source on a Controller. Sources are routed to
// a single CPU interrupt line, so a flag is a single bit.
type Flag uint32

const (
	DMA   Flag = 1 << iota // bulk memory-to-memory DMA transfer finished
	Blit                   // 2D graphics engine operation finished
	VSync                  // display controller entered vertical blank

	FlagLast
)

func (f Flag) String() string {
	switch f {
	case DMA:
		return "dma"
	case Blit:
		return "blit"
	case VSync:
		return "vsync"
	}
	return "intr" + strconv.Itoa(bits.TrailingZeros32(uint32(f)))
}

const nsources = 32

// Controller demultiplexes a shared interrupt line to per-source handlers.
// The zero value has all sources disabled.
type Controller struct {
	handlers [nsources]atomic.Pointer[func()]
	mask     atomic.Uint32
}

// SetHandler attaches handler to the source f. The source is disabled while
// the handler is swapped and re-enabled afterwards if it was enabled.
func (c *Controller) SetHandler(f Flag, handler func()) {
	en := c.Enabled(f)
	c.Disable(f)

	irq := bits.TrailingZeros32(uint32(f))
	if handler == nil {
		c.handlers[irq].Store(nil)
	} else {
		c.handlers[irq].Store(&handler)
	}

	if en {
		c.Enable(f)
	}
}

// Handler returns the handler attached to f, or nil.
func (c *Controller) Handler(f Flag) func() {
	h := c.handlers[bits.TrailingZeros32(uint32(f))].Load()
	if h == nil {
		return nil
	}
	return *h
}

func (c *Controller) Enable(mask Flag)  { c.mask.Or(uint32(mask)) }
func (c *Controller) Disable(mask Flag) { c.mask.And(^uint32(mask)) }

func (c *Controller) Enabled(f Flag) bool {
	return c.mask.Load()&uint32(f) != 0
}

// Dispatch runs the handlers of all enabled sources in pending, lowest bit
// first. It is called by the hardware (or its emulation) in interrupt
// context.
func (c *Controller) Dispatch(pending Flag) {
	pending &= Flag(c.mask.Load())
	for pending != 0 {
		irq := bits.TrailingZeros32(uint32(pending))
		h := c.handlers[irq].Load()
		if h == nil {
			panic("unhandled interrupt")
		}
		(*h)()
		pending &^= 1 << irq
	}
}
