package sim

import (
	"sync"
	"sync/atomic"

	"github.com/nuvoton-bsp/fbflush/hal/intr"
)

// display emulates a display controller scanning out one of the VRAM
// frames and interrupting at every vertical blank.
type display struct {
	board  *Board
	status status
	origin atomic.Int32
	ticks  atomic.Int64

	mu sync.Mutex // interrupts don't nest
}

func (d *display) SetOrigin(frame int) {
	if frame < 0 || frame >= len(d.board.hal.VRAM) {
		d.board.violation("origin %d out of range", frame)
		return
	}
	d.origin.Store(int32(frame))
}

func (d *display) blank() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks.Add(1)
	d.status.set(vsyncDone)
	d.board.intr.Dispatch(intr.VSync)
}
