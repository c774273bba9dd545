package flush_test

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal"
	"github.com/nuvoton-bsp/fbflush/hal/intr"
	"github.com/nuvoton-bsp/fbflush/hal/sim"
	fbtest "github.com/nuvoton-bsp/fbflush/testing"
)

func newCoordinator(t *testing.T, b *sim.Board, cfg flush.Config) *flush.Coordinator {
	t.Helper()
	c, err := flush.New(b.HAL(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func expectPanic(t *testing.T, want string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("expected panic %q", want)
			return
		}
		if s := fmt.Sprint(r); !strings.Contains(s, want) {
			t.Errorf("panic %q, expected %q", s, want)
		}
	}()
	f()
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func TestNewErrors(t *testing.T) {
	if _, err := flush.New(nil, flush.Config{}); err == nil {
		t.Error("nil board accepted")
	}

	b := fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(16, 8), BPP: 2, DMA: true})
	tests := []struct {
		name  string
		board func(hb hal.Board) hal.Board
		cfg   flush.Config
	}{
		{"buffers", nil, flush.Config{Buffers: flush.MaxBuffers + 1}},
		{"full without vsync", nil, flush.Config{Mode: flush.Full}},
		{"bpp", func(hb hal.Board) hal.Board { hb.BPP = 3; return hb }, flush.Config{}},
		{"no display", func(hb hal.Board) hal.Board { hb.Display = nil; return hb }, flush.Config{}},
		{"no vram", func(hb hal.Board) hal.Board { hb.VRAM = nil; return hb }, flush.Config{}},
		{"small vram", func(hb hal.Board) hal.Board { hb.VRAM = [][]byte{make([]byte, 10)}; return hb }, flush.Config{}},
		{"no irq", func(hb hal.Board) hal.Board { hb.IRQ[hal.EngineDMA] = hal.IRQ{}; return hb }, flush.Config{}},
	}
	for _, tc := range tests {
		hb := *b.HAL()
		if tc.board != nil {
			hb = tc.board(hb)
		}
		if _, err := flush.New(&hb, tc.cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}

	b = fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(16, 8), BPP: 2, VSync: true})
	if _, err := flush.New(b.HAL(), flush.Config{Mode: flush.Full}); err == nil {
		t.Error("full refresh with a single VRAM frame accepted")
	}
}

// A full screen flush on a 320x240 RGB565 board with DMA blocks until the
// display switched frames at a vertical blank.
func TestFullRefresh(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{
		Resolution: image.Pt(320, 240),
		BPP:        2,
		Frames:     2,
		DMA:        true,
		VSync:      true,
		Latency:    time.Millisecond,
	})
	c := newCoordinator(t, b, flush.Config{Mode: flush.Full})

	buf := c.Next()
	fill(buf, buf.Bounds(), color.White)

	done := make(chan struct{})
	go func() {
		c.Flush(buf, buf.Bounds())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("flush returned before vertical blank")
	case <-time.After(50 * time.Millisecond):
	}
	if b.Origin() != 0 {
		t.Fatal("origin changed before vertical blank")
	}

	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	timeout := time.After(5 * time.Second)
wait:
	for {
		select {
		case <-done:
			break wait
		case <-tick.C:
			b.Tick()
		case <-timeout:
			t.Fatal("flush didn't return")
		}
	}

	st := c.Stats()
	if st.Paths[flush.PathDMA] != 1 || st.Frames != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if b.Origin() != 1 {
		t.Errorf("origin %d after flush", b.Origin())
	}
	if c.State(buf) != flush.InFlight {
		t.Errorf("buffer %v after flush", c.State(buf))
	}
	c.AwaitIdle(buf)
	if c.State(buf) != flush.Idle {
		t.Errorf("buffer %v after AwaitIdle", c.State(buf))
	}

	frame := b.Scanout()
	if !bytes.Equal(frame, bytes.Repeat([]byte{0xff}, len(frame))) {
		t.Error("frame not transferred")
	}
}

// Full refresh widens every region to the whole surface and alternates the
// VRAM frames.
func TestFullRefreshAlternates(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{
		Resolution: image.Pt(32, 16),
		BPP:        4,
		Frames:     2,
		Blit:       true,
		VSync:      true,
		Refresh:    time.Millisecond,
		CacheLine:  32,
	})
	c := newCoordinator(t, b, flush.Config{Mode: flush.Full, Buffers: 3, Timeout: 5 * time.Second})

	colors := []color.Color{color.White, color.Black, color.RGBA{0x10, 0x20, 0x30, 0xff}}
	for i := range 6 {
		buf := c.Next()
		fill(buf, buf.Bounds(), colors[i%len(colors)])
		start := b.Ticks()
		c.Flush(buf, image.Rect(1, 1, 2, 2))
		if b.Ticks() == start {
			t.Fatalf("frame %d: flush returned without vertical blank", i)
		}
		if want := (i + 1) % 2; b.Origin() != want {
			t.Fatalf("frame %d: origin %d, expected %d", i, b.Origin(), want)
		}

		got := make([]byte, c.Surface().Size)
		c.Capture(got)
		if !bytes.Equal(got, buf.Pix[:len(got)]) {
			t.Fatalf("frame %d: scanout differs from buffer", i)
		}
	}
	// Without DMA whole frames are copied by the CPU, never blitted.
	if st := c.Stats(); st.Paths[flush.PathCPU] != 6 || st.Paths[flush.PathBlit] != 0 {
		t.Errorf("unexpected paths %v", st.Paths)
	}
}

func TestPartial(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("buffers=%d", n), func(t *testing.T) {
			b := fbtest.NewBoard(t, sim.Options{
				Resolution: image.Pt(64, 32),
				BPP:        2,
				DMA:        true,
				Blit:       true,
				Latency:    50 * time.Microsecond,
				CacheLine:  32,
			})
			c := newCoordinator(t, b, flush.Config{Buffers: n, Timeout: 5 * time.Second})
			s := c.Surface()
			want := framebuffer.NewBuffer(s, 0)

			rng := rand.New(rand.NewPCG(1, uint64(n)))
			fixed := []image.Rectangle{
				s.Rect(),                 // dma
				image.Rect(4, 2, 20, 10), // blit
				image.Rect(5, 2, 21, 10), // cpu, overlaps the blit
			}
			for i := range 300 {
				var r image.Rectangle
				switch {
				case i < len(fixed):
					r = fixed[i]
				case rng.IntN(20) == 0:
					r = s.Rect()
				default:
					x, y := rng.IntN(s.Width), rng.IntN(s.Height)
					r = image.Rect(x, y, x+1+rng.IntN(s.Width-x), y+1+rng.IntN(s.Height-y))
				}
				col := color.RGBA{uint8(rng.Uint32()), uint8(rng.Uint32()), uint8(rng.Uint32()), 0xff}

				buf := c.Next()
				fill(buf, r, col)
				fill(want, r, col)
				c.Flush(buf, r)
			}

			got := make([]byte, s.Size)
			if n := c.Capture(got); n != s.Size {
				t.Fatalf("captured %d bytes", n)
			}
			if !bytes.Equal(got, want.Pix[:s.Size]) {
				t.Error("display memory differs from rendered content")
			}
			if b.Invalidations() == 0 {
				t.Error("capture didn't invalidate the cache")
			}
			st := c.Stats()
			for p, n := range st.Paths {
				if n == 0 {
					t.Errorf("path %v never taken", flush.Path(p))
				}
			}
			if st.Frames != 300 {
				t.Errorf("%d frames", st.Frames)
			}
		})
	}
}

func TestStateRotation(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(32, 8), BPP: 4, DMA: true, Blit: true, Latency: 100 * time.Microsecond})

	var seq [flush.MaxBuffers][]flush.State
	c := newCoordinator(t, b, flush.Config{
		Buffers: flush.MaxBuffers,
		Observe: func(buf int, from, to flush.State) {
			if n := len(seq[buf]); n > 0 && seq[buf][n-1] != from {
				t.Errorf("buffer %d: transition from %v, last state %v", buf, from, seq[buf][n-1])
			}
			seq[buf] = append(seq[buf], to)
		},
	})

	for i := range 20 {
		buf := c.Next()
		if i%5 == 4 {
			// Nothing drawn.
			c.Release(buf)
			continue
		}
		c.Flush(buf, image.Rect(i%8, 0, 8+i%8, 4))
	}
	for i := range c.Buffers() {
		c.AwaitIdle(c.Buffer(i))
	}

	rotation := []flush.State{flush.RendererOwned, flush.InFlight, flush.Idle}
	for i, s := range seq {
		if len(s) == 0 || len(s)%3 != 0 {
			t.Errorf("buffer %d: %d transitions", i, len(s))
			continue
		}
		for j := 0; j < len(s); j += 3 {
			if !slices.Equal(s[j:j+3], rotation) {
				t.Errorf("buffer %d: sequence %v", i, s)
				break
			}
		}
	}
}

func TestContract(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(16, 8), BPP: 2, DMA: true})
	c := newCoordinator(t, b, flush.Config{})
	r := image.Rect(0, 0, 4, 4)

	expectPanic(t, "nil buffer", func() { c.Flush(nil, r) })
	foreign := framebuffer.NewBuffer(c.Surface(), 0)
	expectPanic(t, "doesn't belong", func() { c.Acquire(foreign) })
	expectPanic(t, "while idle", func() { c.Flush(c.Buffer(0), r) })

	buf := c.Next()
	expectPanic(t, "while renderer owned", func() { c.AwaitIdle(buf) })
	expectPanic(t, "while renderer owned", func() { c.Acquire(buf) })

	c.Flush(buf, c.Surface().Rect())
	expectPanic(t, "while in flight", func() { c.Acquire(buf) })
	expectPanic(t, "while in flight", func() { c.Flush(buf, r) })
	expectPanic(t, "release buffer 0 while in flight", func() { c.Release(buf) })
	c.AwaitIdle(buf)
	c.AwaitIdle(buf) // no-op
	expectPanic(t, "release buffer 0 while idle", func() { c.Release(buf) })
}

// The CPU path writes the display memory through the cache, so it must be
// written back before the display controller reads it.
func TestCPUPathPublishes(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(64, 8), BPP: 2, CacheLine: 32})
	c := newCoordinator(t, b, flush.Config{Buffers: 1})
	s := c.Surface()

	buf := c.Next()
	r := image.Rect(3, 1, 9, 6)
	fill(buf, r, color.White)
	c.Flush(buf, r)
	c.AwaitIdle(buf)

	vram := b.HAL().VRAM[0]
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := vram[s.Offset(r.Min.X, y):s.Offset(r.Max.X, y)]
		if !b.Published(row) {
			t.Errorf("row %d not written back", y)
		}
		if !bytes.Equal(row, bytes.Repeat([]byte{0xff}, len(row))) {
			t.Errorf("row %d: % x", y, row)
		}
	}
	if c.Stats().Paths[flush.PathCPU] != 1 {
		t.Errorf("paths %v", c.Stats().Paths)
	}
}

func TestTimeout(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(16, 8), BPP: 2, Frames: 2, VSync: true})
	c := newCoordinator(t, b, flush.Config{Mode: flush.Full, Timeout: 20 * time.Millisecond})
	buf := c.Next()
	expectPanic(t, "flush: vsync timeout", func() { c.Flush(buf, buf.Bounds()) })
}

func TestVSync(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(16, 8), BPP: 2, VSync: true, Refresh: time.Millisecond})
	c := newCoordinator(t, b, flush.Config{Timeout: 5 * time.Second})
	start := b.Ticks()
	c.VSync()
	c.VSync()
	if b.Ticks()-start < 2 {
		t.Errorf("%d vertical blanks", b.Ticks()-start)
	}

	// Boards without vsync return immediately.
	b = fbtest.NewBoard(t, sim.Options{Resolution: image.Pt(16, 8), BPP: 2})
	newCoordinator(t, b, flush.Config{}).VSync()
}

func TestLogger(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := fbtest.NewBoard(t, sim.Options{Name: "qvga", Resolution: image.Pt(320, 240), BPP: 2, Blit: true})
	c := newCoordinator(t, b, flush.Config{Logger: log})
	buf := c.Next()
	c.Flush(buf, image.Rect(8, 8, 16, 16))
	c.AwaitIdle(buf)

	for _, s := range []string{"coordinator ready", "board=qvga", "resolution=320x240", "blit=true", "path=blit"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("log misses %q:\n%s", s, out.String())
		}
	}
}

// A CPU copy next to a running blit in the same rows shares cache lines with
// it, so the blit must be complete before the copy is written back. Copies
// to other lines don't wait.
func TestPartialSharedLines(t *testing.T) {
	b := fbtest.NewBoard(t, sim.Options{
		Resolution: image.Pt(64, 8),
		BPP:        2,
		Blit:       true,
		Latency:    50 * time.Millisecond,
		CacheLine:  32,
	})
	c := newCoordinator(t, b, flush.Config{Buffers: 3})

	blit := c.Next()
	fill(blit, image.Rect(4, 0, 20, 4), color.White)
	c.Flush(blit, image.Rect(4, 0, 20, 4))

	// Rows below the blit, first byte in the line after its last one.
	apart := c.Next()
	fill(apart, image.Rect(21, 4, 23, 8), color.White)
	c.Flush(apart, image.Rect(21, 4, 23, 8))
	if n := c.Stats().Waits[hal.EngineBlit]; n != 0 {
		t.Errorf("copy to other cache lines waited for blit %d times", n)
	}

	beside := c.Next()
	fill(beside, image.Rect(21, 0, 23, 4), color.White)
	c.Flush(beside, image.Rect(21, 0, 23, 4))
	if n := b.Transfers(hal.EngineBlit); n != 1 {
		t.Errorf("%d blits complete when the copy returned", n)
	}
	if n := c.Stats().Waits[hal.EngineBlit]; n != 1 {
		t.Errorf("blit waited for %d times", n)
	}
	if st := c.Stats(); st.Paths[flush.PathBlit] != 1 || st.Paths[flush.PathCPU] != 2 {
		t.Errorf("paths %v", st.Paths)
	}
}

// w1c is a write-one-to-clear status register.
type w1c struct{ v atomic.Uint32 }

func (r *w1c) Load() uint32   { return r.v.Load() }
func (r *w1c) Store(v uint32) { r.v.And(^v) }

// slowDisplay holds every origin change after the first until released.
type slowDisplay struct {
	origin  atomic.Int32
	calls   atomic.Int32
	entered chan int
	release chan struct{}
}

func (d *slowDisplay) SetOrigin(frame int) {
	if d.calls.Add(1) > 1 {
		d.entered <- frame
		<-d.release
	}
	d.origin.Store(int32(frame))
}

// A vertical blank interrupting while the handler is still switching the
// origin must not let a full refresh return before the new frame is shown.
func TestFullRefreshOriginApplied(t *testing.T) {
	const size = 16 * 8 * 2
	var (
		ic     intr.Controller
		status w1c
		disp   = &slowDisplay{entered: make(chan int, 1), release: make(chan struct{})}
	)
	hb := &hal.Board{
		Name:       "slow",
		Resolution: image.Pt(16, 8),
		BPP:        2,
		VRAM:       [][]byte{make([]byte, size), make([]byte, size)},
		Display:    disp,
		VSync:      true,
		Intr:       &ic,
	}
	hb.IRQ[hal.EngineVSync] = hal.IRQ{Status: &status, Done: 1, Flag: intr.VSync}
	c, err := flush.New(hb, flush.Config{Mode: flush.Full, Buffers: 1, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	blank := func() {
		status.v.Or(1)
		ic.Dispatch(intr.VSync)
	}

	buf := c.Next()
	fill(buf, buf.Bounds(), color.White)
	done := make(chan struct{})
	go func() {
		c.Flush(buf, buf.Bounds())
		close(done)
	}()

	stop := make(chan struct{})
	ticked := make(chan struct{})
	go func() {
		defer close(ticked)
		for {
			select {
			case <-stop:
				return
			default:
			}
			blank()
			time.Sleep(time.Millisecond)
		}
	}()

	if f := <-disp.entered; f != 1 {
		t.Fatalf("origin %d, expected 1", f)
	}
	blank() // while the handler above is in SetOrigin
	select {
	case <-done:
		t.Fatal("flush returned before the origin was applied")
	case <-time.After(20 * time.Millisecond):
	}

	close(disp.release)
	<-done
	close(stop)
	<-ticked
	if o := disp.origin.Load(); o != 1 {
		t.Errorf("origin %d after flush, expected 1", o)
	}
	c.AwaitIdle(buf)
}
