package sim

import (
	"sync/atomic"
	"time"

	"github.com/nuvoton-bsp/fbflush/hal/cpu"
	"github.com/nuvoton-bsp/fbflush/hal/intr"
)

type engine struct {
	board   *Board
	latency time.Duration
	done    uint32
	flag    intr.Flag

	status status
	busy   atomic.Bool
	count  atomic.Int64

	dst span // written while busy, guarded by board.mu
}

// run executes fn asynchronously and raises the completion interrupt
// afterwards. fn writes to the memory in dst.
func (e *engine) run(dst span, fn func()) {
	if e.busy.Swap(true) {
		e.board.violation("%v started while busy", e.flag)
	}
	e.board.mu.Lock()
	e.dst = dst
	e.board.mu.Unlock()

	e.board.wg.Add(1)
	go func() {
		defer e.board.wg.Done()
		if e.latency > 0 {
			time.Sleep(e.latency)
		}
		fn()
		e.count.Add(1)
		e.board.mu.Lock()
		e.dst = span{}
		e.board.mu.Unlock()
		e.busy.Store(false)
		e.status.set(e.done)
		e.board.intr.Dispatch(e.flag)
	}()
}

// read checks that the engine may read p.
func (e *engine) read(p []byte) {
	if c := e.board.cache; c != nil && !c.read(p) {
		e.board.violation("%v read %d bytes at %#x not written back", e.flag, len(p), cpu.Addr(p))
	}
}

type dmaEngine struct {
	engine
}

func (d *dmaEngine) Start(dst, src []byte) {
	if len(dst) < len(src) {
		d.board.violation("dma destination too short: %d < %d", len(dst), len(src))
		src = src[:len(dst)]
	}
	d.run(spanOf(dst[:len(src)]), func() {
		d.read(src)
		copy(dst, src)
	})
}

type blitEngine struct {
	engine
}

func (g *blitEngine) Blit(dst []byte, dstStride int, src []byte, srcStride int, rowBytes, rows int) {
	if dstStride%4 != 0 || srcStride%4 != 0 || cpu.Addr(dst)%4 != 0 || cpu.Addr(src)%4 != 0 {
		g.board.violation("blit unaligned: dst %#x/%d src %#x/%d",
			cpu.Addr(dst), dstStride, cpu.Addr(src), srcStride)
	}
	if rows > 0 {
		if len(dst) < (rows-1)*dstStride+rowBytes || len(src) < (rows-1)*srcStride+rowBytes {
			g.board.violation("blit out of range: %d rows of %d bytes", rows, rowBytes)
			return
		}
	}
	var written span
	if rows > 0 {
		written = spanOf(dst[:(rows-1)*dstStride+rowBytes])
	}
	g.run(written, func() {
		for y := range rows {
			s := src[y*srcStride : y*srcStride+rowBytes]
			g.read(s)
			copy(dst[y*dstStride:], s)
		}
	})
}
