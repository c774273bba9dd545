// Package flush hands rendered buffers to the display hardware.
//
// The renderer draws into a buffer it owns, then calls Flush with the region
// it changed. The Coordinator selects a transfer path (bulk DMA, 2D graphics
// engine or CPU copy), makes the pixels visible to the engine and starts the
// transfer. Completion interrupts raise a gate per engine, the Coordinator is
// the only task waiting on them.
//
// Each buffer cycles through Idle -> RendererOwned -> InFlight -> Idle. The
// ownership tags are only modified by the renderer task, after a gate
// confirmed the hardware is done, so they need no lock. Consequently a
// Coordinator must only be used by a single goroutine.
package flush

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal"
	"github.com/nuvoton-bsp/fbflush/hal/cpu"
	"github.com/nuvoton-bsp/fbflush/hal/intr"
)

// Mode is the refresh strategy.
type Mode int

const (
	// Partial copies the changed region of a shadow buffer into the single
	// VRAM frame that is scanned out. Flush returns once the transfer is
	// issued.
	Partial Mode = iota

	// Full copies whole frames into the VRAM frame that isn't scanned out
	// and swaps the display origin at the next vertical blank. Flush
	// returns after the swap.
	Full
)

func (m Mode) String() string {
	switch m {
	case Partial:
		return "partial"
	case Full:
		return "full"
	}
	return "mode?"
}

const MaxBuffers = 3

type Config struct {
	Mode Mode

	// Buffers is the number of renderer buffers, 1 to MaxBuffers.
	// Defaults to 2.
	Buffers int

	// Timeout makes waiting for an engine panic after the given time.
	// Zero waits forever.
	Timeout time.Duration

	// Logger receives the capability table and path decisions. Defaults to
	// discarding everything.
	Logger *slog.Logger

	// Observe is called on every ownership change of a buffer.
	Observe func(buf int, from, to State)
}

// Stats counts what a Coordinator did.
type Stats struct {
	Frames int
	Paths  [numPaths]int
	Waits  [hal.NumEngines]int
	Wait   time.Duration // time blocked on gates
}

type Coordinator struct {
	board   *hal.Board
	cfg     Config
	caps    Caps
	surface framebuffer.Surface
	adapter adapter
	log     *slog.Logger

	slots []slot
	next  int

	lines       [hal.NumEngines]*intr.Line
	outstanding [hal.NumEngines]outstanding

	origin intr.Input[int] // consumed by the VSync handler
	shown  atomic.Int32    // origin applied by the VSync handler
	front  int             // VRAM frame scanned out

	stats Stats
}

// New creates a Coordinator for board b and attaches the interrupt handlers
// of all engines present.
func New(b *hal.Board, cfg Config) (*Coordinator, error) {
	if b == nil {
		return nil, errors.New("flush: nil board")
	}
	if cfg.Buffers == 0 {
		cfg.Buffers = 2
	}
	if cfg.Buffers < 1 || cfg.Buffers > MaxBuffers {
		return nil, fmt.Errorf("flush: invalid number of buffers %d", cfg.Buffers)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	format, ok := framebuffer.FormatOf(b.BPP)
	if !ok {
		return nil, fmt.Errorf("flush: unsupported bytes per pixel %d", b.BPP)
	}
	surface, err := framebuffer.NewSurface(b.Resolution, format)
	if err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	if b.Display == nil {
		return nil, errors.New("flush: no display controller")
	}
	if len(b.VRAM) == 0 {
		return nil, errors.New("flush: no VRAM")
	}
	for i, frame := range b.VRAM {
		if len(frame) < surface.Size {
			return nil, fmt.Errorf("flush: VRAM frame %d too small: %d < %d", i, len(frame), surface.Size)
		}
	}

	caps := CapsOf(b)
	if cfg.Mode == Full {
		if !caps.VSync {
			return nil, errors.New("flush: full refresh requires vsync")
		}
		if len(b.VRAM) < 2 {
			return nil, errors.New("flush: full refresh requires two VRAM frames")
		}
	}

	c := &Coordinator{
		board:   b,
		cfg:     cfg,
		caps:    caps,
		surface: surface,
		adapter: adapter{board: b, shim: cpu.NewShim(b.Cache), surface: surface},
		log:     cfg.Logger,
		slots:   newSlots(surface, cfg.Buffers),
	}

	present := [hal.NumEngines]bool{caps.DMA, caps.Blit, caps.VSync}
	for e := range hal.NumEngines {
		if !present[e] {
			continue
		}
		irq := b.IRQ[e]
		if b.Intr == nil || irq.Status == nil || irq.Done == 0 {
			return nil, fmt.Errorf("flush: no interrupt for %v", e)
		}
		c.lines[e] = &intr.Line{Status: irq.Status, Done: irq.Done, Gate: intr.NewGate()}
	}
	for e, l := range c.lines {
		if l == nil {
			continue
		}
		irq := b.IRQ[e]
		if hal.Engine(e) == hal.EngineVSync {
			b.Intr.SetHandler(irq.Flag, c.vsyncHandler)
		} else {
			b.Intr.SetHandler(irq.Flag, l.Service)
		}
		b.Intr.Enable(irq.Flag)
	}
	b.Display.SetOrigin(c.front)

	c.log.Info("flush: coordinator ready",
		"board", b.Name,
		"resolution", fmt.Sprintf("%dx%d", surface.Width, surface.Height),
		"format", surface.Format,
		"mode", cfg.Mode,
		"buffers", cfg.Buffers,
		"dma", caps.DMA, "blit", caps.Blit, "vsync", caps.VSync,
		"coherent", c.adapter.shim.Coherent())
	return c, nil
}

// vsyncHandler is the VSync interrupt handler. Besides raising the gate it
// applies a pending origin, so the visible frame changes during blanking
// only. shown is updated after the display controller took the origin.
func (c *Coordinator) vsyncHandler() {
	l := c.lines[hal.EngineVSync]
	if l.Status.Load()&l.Done == 0 {
		return
	}
	l.Status.Store(l.Done) // clears interrupt
	if frame, updated := c.origin.Load(); updated {
		c.board.Display.SetOrigin(frame)
		c.shown.Store(int32(frame))
	}
	l.Gate.Raise()
}

func (c *Coordinator) Surface() framebuffer.Surface { return c.surface }
func (c *Coordinator) Caps() Caps                   { return c.caps }
func (c *Coordinator) Mode() Mode                   { return c.cfg.Mode }
func (c *Coordinator) Buffers() int                 { return len(c.slots) }
func (c *Coordinator) Stats() Stats                 { return c.stats }

// Buffer returns buffer i.
func (c *Coordinator) Buffer(i int) *framebuffer.Buffer {
	return c.slots[i].buf
}

// State returns the owner of buf.
func (c *Coordinator) State(buf *framebuffer.Buffer) State {
	return c.slot(buf).state
}

// Acquire hands the idle buffer buf to the renderer.
func (c *Coordinator) Acquire(buf *framebuffer.Buffer) {
	s := c.slot(buf)
	if s.state != Idle {
		panic(fmt.Sprintf("flush: acquire %v while %v", buf, s.state))
	}
	c.transition(s, RendererOwned)
}

// Release returns the renderer owned buf without transferring anything, as
// if an empty region had been flushed from it.
func (c *Coordinator) Release(buf *framebuffer.Buffer) {
	s := c.slot(buf)
	if s.state != RendererOwned {
		panic(fmt.Sprintf("flush: release %v while %v", buf, s.state))
	}
	c.transition(s, InFlight)
	c.transition(s, Idle)
}

// Next waits for the next buffer in round robin order to become idle and
// hands it to the renderer.
func (c *Coordinator) Next() *framebuffer.Buffer {
	buf := c.slots[c.next].buf
	c.next = (c.next + 1) % len(c.slots)
	c.AwaitIdle(buf)
	c.Acquire(buf)
	return buf
}

// Flush transfers region r of the renderer owned buf to the display. The
// buffer is in flight afterwards and must not be drawn into before AwaitIdle
// returned for it.
//
// In Partial mode Flush returns as soon as the transfer is issued. In Full
// mode r is widened to the whole surface, and Flush returns after the display
// switched to the new frame at a vertical blank.
func (c *Coordinator) Flush(buf *framebuffer.Buffer, r image.Rectangle) {
	s := c.slot(buf)
	if s.state != RendererOwned {
		panic(fmt.Sprintf("flush: flush %v while %v", buf, s.state))
	}
	r = r.Intersect(c.surface.Rect())
	if c.cfg.Mode == Full {
		r = c.surface.Rect()
	}
	c.transition(s, InFlight)

	p := PathCPU
	if !r.Empty() {
		p = Select(c.caps, c.surface, r)
	}
	if c.log.Enabled(context.Background(), slog.LevelDebug) {
		c.log.Debug("flush", "buffer", buf.Index, "region", r, "path", p)
	}
	c.stats.Frames++
	c.stats.Paths[p]++

	switch c.cfg.Mode {
	case Partial:
		dst := c.board.VRAM[c.front]
		c.retireConflicts(p, dst, r)
		c.issue(s, p, dst, r)

	case Full:
		back := (c.front + 1) % len(c.board.VRAM)
		if e, async := c.issue(s, p, c.board.VRAM[back], r); async {
			// The frame must be complete before it is shown.
			c.retire(e)
		}
		c.present(back)
	}
}

// issue starts the transfer and records it as outstanding.
func (c *Coordinator) issue(s *slot, p Path, dst []byte, r image.Rectangle) (hal.Engine, bool) {
	e, async := c.adapter.start(p, dst, s.buf, r)
	if async {
		start, end := c.footprint(dst, r)
		c.outstanding[e] = outstanding{active: true, slot: s.buf.Index, start: start, end: end}
		s.pending, s.engine = true, e
	}
	return e, async
}

// retireConflicts waits for the transfers that must complete before a
// transfer of r into dst over p may be issued: the one on p's engine, which
// can only do one at a time, and those writing to cache lines the new
// transfer touches. Regions side by side in the same rows share lines, and a
// CPU writeback of a shared line would clobber what the engine wrote.
func (c *Coordinator) retireConflicts(p Path, dst []byte, r image.Rectangle) {
	pe, hw := p.Engine()
	start, end := c.footprint(dst, r)
	for e := range hal.NumEngines {
		o := &c.outstanding[e]
		if !o.active {
			continue
		}
		if (hw && e == pe) || (start < o.end && o.start < end) {
			c.retire(e)
		}
	}
}

// footprint returns the cache lines of dst spanned by the rows of r, from
// r's first pixel up to its last.
func (c *Coordinator) footprint(dst []byte, r image.Rectangle) (start, end uintptr) {
	if r.Empty() {
		return 0, 0
	}
	s := c.surface
	first := s.Offset(r.Min.X, r.Min.Y)
	last := s.Offset(r.Max.X-1, r.Max.Y-1) + s.BPP()
	start, n := cpu.LineRange(cpu.Addr(dst)+uintptr(first), last-first, c.adapter.shim.LineSize())
	return start, start + uintptr(n)
}

// present makes VRAM frame f visible at the next vertical blank and waits
// for it. A raise left over from an earlier blank, or one racing with the
// handler taking the origin, is not proof that f is shown yet.
func (c *Coordinator) present(f int) {
	gate := c.lines[hal.EngineVSync].Gate
	gate.Clear()
	c.origin.Store(f)
	for int(c.shown.Load()) != f {
		c.wait(hal.EngineVSync)
	}
	c.front = f
}

// VSync blocks until the next vertical blank. It returns immediately on
// boards without VSync interrupt.
func (c *Coordinator) VSync() {
	if !c.caps.VSync {
		return
	}
	c.lines[hal.EngineVSync].Gate.Clear()
	c.wait(hal.EngineVSync)
}

// AwaitIdle blocks until the transfer reading from buf is complete and marks
// buf idle. Buffers already idle are left as they are.
func (c *Coordinator) AwaitIdle(buf *framebuffer.Buffer) {
	s := c.slot(buf)
	switch s.state {
	case Idle:
		return
	case RendererOwned:
		panic(fmt.Sprintf("flush: await idle on %v while %v", buf, s.state))
	}
	if s.pending {
		c.retire(s.engine)
	}
	c.transition(s, Idle)
}

// retire waits for the outstanding transfer of engine e, if any.
func (c *Coordinator) retire(e hal.Engine) {
	o := &c.outstanding[e]
	if !o.active {
		return
	}
	c.wait(e)
	o.active = false
	c.slots[o.slot].pending = false
}

// Drain waits for all outstanding transfers. Buffer states are not changed.
func (c *Coordinator) Drain() {
	for e := range hal.NumEngines {
		c.retire(e)
	}
}

func (c *Coordinator) wait(e hal.Engine) {
	gate := c.lines[e].Gate
	start := time.Now()
	if c.cfg.Timeout > 0 {
		if !gate.WaitTimeout(c.cfg.Timeout) {
			panic(fmt.Sprintf("flush: %v timeout", e))
		}
	} else {
		gate.Wait()
	}
	c.stats.Waits[e]++
	c.stats.Wait += time.Since(start)
}

// Capture copies the frame currently scanned out into dst after all
// outstanding transfers completed. It returns the number of bytes copied.
func (c *Coordinator) Capture(dst []byte) int {
	c.Drain()
	frame := c.board.VRAM[c.front][:c.surface.Size]
	// Written by the engines, read by the CPU.
	c.adapter.shim.Claim(frame)
	return copy(dst, frame)
}
