package flush

import (
	"image"

	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal"
	"github.com/nuvoton-bsp/fbflush/hal/cpu"
)

// adapter executes a transfer over the selected path.
type adapter struct {
	board   *hal.Board
	shim    *cpu.Shim
	surface framebuffer.Surface
}

// start transfers region r of src into the display memory dst. For the
// hardware paths it returns the engine whose gate signals completion. The CPU
// path is complete on return and reports no engine.
func (a *adapter) start(p Path, dst []byte, src *framebuffer.Buffer, r image.Rectangle) (e hal.Engine, async bool) {
	s := a.surface
	switch p {
	case PathDMA:
		if a.board.DMA == nil {
			panic("flush: dma engine not present")
		}
		a.shim.Publish(src.Pix[:s.Size])
		a.board.DMA.Start(dst[:s.Size], src.Pix[:s.Size])
		return hal.EngineDMA, true

	case PathBlit:
		if a.board.Blitter == nil {
			panic("flush: blit engine not present")
		}
		off, rowBytes, rows := s.Offset(r.Min.X, r.Min.Y), r.Dx()*s.BPP(), r.Dy()
		a.shim.PublishRows(src.Pix[off:], s.Stride, rowBytes, rows)
		a.board.Blitter.Blit(dst[off:], s.Stride, src.Pix[off:], s.Stride, rowBytes, rows)
		return hal.EngineBlit, true

	case PathCPU:
		if r.Empty() {
			return 0, false
		}
		off, rowBytes := s.Offset(r.Min.X, r.Min.Y), r.Dx()*s.BPP()
		for y := range r.Dy() {
			o := off + y*s.Stride
			copy(dst[o:o+rowBytes], src.Pix[o:o+rowBytes])
		}
		// The display controller reads what the CPU just wrote.
		a.shim.PublishRows(dst[off:], s.Stride, rowBytes, r.Dy())
		return 0, false
	}
	panic("flush: unknown path")
}
