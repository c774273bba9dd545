// Package sim emulates a board with a display controller, a bulk DMA engine
// and a 2D graphics engine on the host. Engines run in their own goroutines
// and complete by setting a write-one-to-clear done bit and dispatching an
// interrupt, the way the real peripherals do.
//
// The emulation checks the rules the hardware can't check by itself: an
// engine must not be started while busy, and with a cache model every byte an
// engine reads must have been written back by the CPU beforehand. Violations
// are recorded and reported by Violations and Err.
package sim

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nuvoton-bsp/fbflush/hal"
	"github.com/nuvoton-bsp/fbflush/hal/cpu"
	"github.com/nuvoton-bsp/fbflush/hal/intr"
)

// Alignment of VRAM frames, as required by most display controllers.
const Alignment = 64

// Done bits in the engines' status registers.
const (
	dmaDone   = 1 << 0 // GDMA channel transfer complete
	blitDone  = 1 << 0 // GE2D interrupt status
	vsyncDone = 1 << 1 // VPOST vertical blank
)

type Options struct {
	Name       string
	Resolution image.Point
	BPP        int // bytes per pixel, 2 or 4
	Frames     int // VRAM frames, 1 if zero

	DMA   bool
	Blit  bool
	VSync bool

	// Latency is the time an engine takes for any transfer.
	Latency time.Duration

	// Refresh is the VSync period. With zero VSync only happens on Tick.
	Refresh time.Duration

	// CacheLine enables the write-back cache model with the given line
	// size. Zero emulates a cache-less core.
	CacheLine int
}

// Board is an emulated board.
type Board struct {
	hal   hal.Board
	intr  intr.Controller
	cache *cache

	dma     *dmaEngine
	blitter *blitEngine
	display *display

	mu         sync.Mutex
	violations []error

	done chan struct{}
	wg   sync.WaitGroup
}

func New(o Options) (*Board, error) {
	if o.Resolution.X <= 0 || o.Resolution.Y <= 0 {
		return nil, fmt.Errorf("sim: invalid resolution %v", o.Resolution)
	}
	if o.BPP != 2 && o.BPP != 4 {
		return nil, fmt.Errorf("sim: unsupported bytes per pixel %d", o.BPP)
	}
	if o.Frames == 0 {
		o.Frames = 1
	}
	if o.Frames < 0 || o.Frames > 3 {
		return nil, fmt.Errorf("sim: invalid number of VRAM frames %d", o.Frames)
	}
	if o.CacheLine < 0 || o.CacheLine&(o.CacheLine-1) != 0 {
		return nil, fmt.Errorf("sim: cache line %d not a power of two", o.CacheLine)
	}
	if o.Name == "" {
		o.Name = "sim"
	}

	b := &Board{done: make(chan struct{})}
	b.hal = hal.Board{
		Name:       o.Name,
		Resolution: o.Resolution,
		BPP:        o.BPP,
		VSync:      o.VSync,
		Intr:       &b.intr,
	}
	for range o.Frames {
		b.hal.VRAM = append(b.hal.VRAM, cpu.MakePaddedSliceAligned[byte](b.hal.FrameSize(), Alignment))
	}

	if o.CacheLine > 0 {
		b.cache = &cache{line: o.CacheLine, board: b}
		b.hal.Cache = b.cache
	}

	b.display = &display{board: b}
	b.hal.Display = b.display
	b.hal.IRQ[hal.EngineVSync] = hal.IRQ{Status: &b.display.status, Done: vsyncDone, Flag: intr.VSync}

	if o.DMA {
		b.dma = &dmaEngine{engine: engine{board: b, latency: o.Latency, done: dmaDone, flag: intr.DMA}}
		b.hal.DMA = b.dma
		b.hal.IRQ[hal.EngineDMA] = hal.IRQ{Status: &b.dma.status, Done: dmaDone, Flag: intr.DMA}
	}
	if o.Blit {
		b.blitter = &blitEngine{engine: engine{board: b, latency: o.Latency, done: blitDone, flag: intr.Blit}}
		b.hal.Blitter = b.blitter
		b.hal.IRQ[hal.EngineBlit] = hal.IRQ{Status: &b.blitter.status, Done: blitDone, Flag: intr.Blit}
	}

	if o.VSync && o.Refresh > 0 {
		b.wg.Add(1)
		go b.refresh(o.Refresh)
	}
	return b, nil
}

// HAL returns the board description to hand to the coordinator.
func (b *Board) HAL() *hal.Board {
	return &b.hal
}

// Close stops the VSync generator and waits for running transfers.
func (b *Board) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
	b.wg.Wait()
}

// Tick emulates one vertical blank.
func (b *Board) Tick() {
	if !b.hal.VSync {
		return
	}
	b.display.blank()
}

func (b *Board) refresh(period time.Duration) {
	defer b.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			b.display.blank()
		}
	}
}

// Origin returns the VRAM frame currently scanned out.
func (b *Board) Origin() int {
	return int(b.display.origin.Load())
}

// Ticks returns the number of vertical blanks so far.
func (b *Board) Ticks() int {
	return int(b.display.ticks.Load())
}

// Scanout returns a copy of the frame currently scanned out. The caller must
// make sure no transfer into that frame is running.
func (b *Board) Scanout() []byte {
	return append([]byte(nil), b.hal.VRAM[b.Origin()]...)
}

// Transfers returns the number of transfers the engine e has completed.
func (b *Board) Transfers(e hal.Engine) int {
	switch e {
	case hal.EngineDMA:
		if b.dma != nil {
			return int(b.dma.count.Load())
		}
	case hal.EngineBlit:
		if b.blitter != nil {
			return int(b.blitter.count.Load())
		}
	case hal.EngineVSync:
		return b.Ticks()
	}
	return 0
}

// Published reports whether p was written back since the last engine read
// of it. It is always true without cache model.
func (b *Board) Published(p []byte) bool {
	if b.cache == nil {
		return true
	}
	return b.cache.published(p)
}

// Writebacks returns the number of cache writebacks so far.
func (b *Board) Writebacks() int {
	if b.cache == nil {
		return 0
	}
	return int(b.cache.writebacks.Load())
}

// Invalidations returns the number of cache invalidations so far.
func (b *Board) Invalidations() int {
	if b.cache == nil {
		return 0
	}
	return int(b.cache.invalidations.Load())
}

// Violations returns all recorded rule violations.
func (b *Board) Violations() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.violations...)
}

// Err returns the recorded violations joined into one error, or nil.
func (b *Board) Err() error {
	return errors.Join(b.Violations()...)
}

// overwrites records a violation if the written back lines s hit memory an
// engine is still writing. The CPU's copy of those lines is older than what
// the engine writes.
func (b *Board) overwrites(s span) {
	var hit []*engine
	b.mu.Lock()
	for _, e := range []*engine{b.dmaEngine(), b.blitEngine()} {
		if e != nil && e.dst.overlaps(s) {
			hit = append(hit, e)
		}
	}
	b.mu.Unlock()
	for _, e := range hit {
		b.violation("writeback %#x..%#x overwrites %v destination", s.start, s.end, e.flag)
	}
}

func (b *Board) dmaEngine() *engine {
	if b.dma == nil {
		return nil
	}
	return &b.dma.engine
}

func (b *Board) blitEngine() *engine {
	if b.blitter == nil {
		return nil
	}
	return &b.blitter.engine
}

func (b *Board) violation(format string, args ...any) {
	b.mu.Lock()
	b.violations = append(b.violations, fmt.Errorf("sim: "+format, args...))
	b.mu.Unlock()
}

// status is a write-one-to-clear status register.
type status struct {
	v atomic.Uint32
}

func (r *status) Load() uint32   { return r.v.Load() }
func (r *status) Store(v uint32) { r.v.And(^v) }
func (r *status) set(v uint32)   { r.v.Or(v) }
