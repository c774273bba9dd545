package flush

import (
	"image"

	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal"
)

// Path is the mechanism used to transfer a region into display memory.
type Path int

const (
	PathCPU  Path = iota // row by row copy, synchronous
	PathBlit             // 2D graphics engine, asynchronous
	PathDMA              // one bulk DMA transfer of the whole buffer, asynchronous

	numPaths
)

func (p Path) String() string {
	switch p {
	case PathCPU:
		return "cpu"
	case PathBlit:
		return "blit"
	case PathDMA:
		return "dma"
	}
	return "path?"
}

// Engine returns the engine serving p. The CPU path has none.
func (p Path) Engine() (hal.Engine, bool) {
	switch p {
	case PathBlit:
		return hal.EngineBlit, true
	case PathDMA:
		return hal.EngineDMA, true
	}
	return 0, false
}

// Caps is the runtime capability table the path selection works on.
type Caps struct {
	DMA   bool
	Blit  bool
	VSync bool
}

// CapsOf queries b's capabilities.
func CapsOf(b *hal.Board) Caps {
	return Caps{
		DMA:   b.DMA != nil,
		Blit:  b.Blitter != nil,
		VSync: b.VSync,
	}
}

// blitAlign is the word alignment the 2D graphics engine requires for the
// start of each row.
const blitAlign = 4

// BlitAligned reports whether the 2D graphics engine may transfer r of s: the
// stride and the horizontal start offset in bytes must both be word aligned.
func BlitAligned(s framebuffer.Surface, r image.Rectangle) bool {
	return s.Stride%blitAlign == 0 && (r.Min.X*s.BPP())%blitAlign == 0
}

// Select returns the path for transferring r of s. Regions covering the whole
// surface go to bulk DMA if present and are copied by the CPU otherwise.
// Smaller regions go to the 2D graphics engine if present and aligned. Every
// other region is copied by the CPU, it's never split to accelerate a part of
// it.
func Select(c Caps, s framebuffer.Surface, r image.Rectangle) Path {
	if s.Covers(r) {
		if c.DMA {
			return PathDMA
		}
		return PathCPU
	}
	if c.Blit && BlitAligned(s, r) {
		return PathBlit
	}
	return PathCPU
}
