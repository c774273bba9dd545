// Package hal describes a board to the flush coordinator: the panel, the
// display memory it scans out, the transfer engines that are present and the
// interrupt lines that signal their completion.
//
// Clock trees, pin muxing and the engines' register level programming are the
// board package's business. A Board is filled in once at startup and is not
// modified afterwards.
package hal

import (
	"image"

	"github.com/nuvoton-bsp/fbflush/hal/cpu"
	"github.com/nuvoton-bsp/fbflush/hal/intr"
)

// Engine identifies a hardware unit the coordinator waits for.
type Engine int

const (
	EngineDMA   Engine = iota // bulk memory-to-memory DMA (GDMA, PDMA)
	EngineBlit                // 2D graphics engine (GE2D)
	EngineVSync               // display controller vertical blank (VPOST, LCDC)

	NumEngines
)

func (e Engine) String() string {
	switch e {
	case EngineDMA:
		return "dma"
	case EngineBlit:
		return "blit"
	case EngineVSync:
		return "vsync"
	}
	return "engine?"
}

// DMA is a bulk memory-to-memory DMA engine. Start copies len(src) bytes from
// src to dst and returns immediately, completion is signaled by the engine's
// IRQ line. Start must not be called again before that.
type DMA interface {
	Start(dst, src []byte)
}

// Blitter is a 2D graphics engine able to copy a rectangle. Blit copies rows
// rows of rowBytes bytes each from src to dst, advancing src by srcStride and
// dst by dstStride after each row. Like DMA.Start it returns immediately.
// Both strides and the start of each row must be multiples of 4 bytes.
type Blitter interface {
	Blit(dst []byte, dstStride int, src []byte, srcStride int, rowBytes, rows int)
}

// Display is the controller scanning out one of the VRAM frames.
type Display interface {
	// SetOrigin selects the VRAM frame the controller scans out from the
	// next frame on. It is called from the VSync interrupt handler, or
	// once at startup.
	SetOrigin(frame int)
}

// IRQ describes the completion interrupt of an engine: the status register
// with its write-one-to-clear done bit and the flag on the interrupt
// controller.
type IRQ struct {
	Status intr.Register
	Done   uint32
	Flag   intr.Flag
}

// Board is the capability table of a board, queried once at startup. Absent
// engines are nil.
type Board struct {
	Name       string
	Resolution image.Point
	BPP        int // bytes per pixel

	// VRAM holds the frames the display controller can scan out. Each
	// frame is Resolution.X*BPP bytes per row, Resolution.Y rows.
	VRAM    [][]byte
	Display Display

	DMA     DMA
	Blitter Blitter
	VSync   bool

	Cache cpu.Maintainer // nil on cache-less cores
	Intr  *intr.Controller
	IRQ   [NumEngines]IRQ
}

// Stride returns the number of bytes per row of a VRAM frame.
func (b *Board) Stride() int {
	return b.Resolution.X * b.BPP
}

// FrameSize returns the number of bytes of a VRAM frame.
func (b *Board) FrameSize() int {
	return b.Stride() * b.Resolution.Y
}
