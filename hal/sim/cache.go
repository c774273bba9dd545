package sim

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nuvoton-bsp/fbflush/hal/cpu"
)

// cache models a write-back data cache by tracking which address ranges were
// written back since an engine last read them.
type cache struct {
	line  int
	board *Board

	mu    sync.Mutex
	clean []span // sorted, non-overlapping

	writebacks    atomic.Int64
	invalidations atomic.Int64
}

type span struct{ start, end uintptr }

func spanOf(p []byte) span {
	return span{cpu.Addr(p), cpu.Addr(p) + uintptr(len(p))}
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

func (c *cache) LineSize() int { return c.line }

func (c *cache) Writeback(addr uintptr, n int) {
	c.writebacks.Add(1)
	if n <= 0 {
		return
	}
	s := span{addr, addr + uintptr(n)}
	c.mu.Lock()
	c.insert(s)
	c.mu.Unlock()
	c.board.overwrites(s)
}

func (c *cache) Invalidate(addr uintptr, n int) {
	c.invalidations.Add(1)
}

func (c *cache) published(p []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.covered(spanOf(p))
}

// read reports whether p was written back and marks it as consumed.
func (c *cache) read(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	s := spanOf(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.covered(s)
	c.remove(s)
	return ok
}

func (c *cache) covered(s span) bool {
	if s.start == s.end {
		return true
	}
	for _, r := range c.clean {
		if r.start <= s.start && s.end <= r.end {
			return true
		}
	}
	return false
}

func (c *cache) insert(s span) {
	i, _ := slices.BinarySearchFunc(c.clean, s.start, func(r span, start uintptr) int {
		switch {
		case r.start < start:
			return -1
		case r.start > start:
			return 1
		}
		return 0
	})
	c.clean = slices.Insert(c.clean, i, s)

	merged := c.clean[:1]
	for _, r := range c.clean[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			last.end = max(last.end, r.end)
			continue
		}
		merged = append(merged, r)
	}
	c.clean = merged
}

func (c *cache) remove(s span) {
	var out []span
	for _, r := range c.clean {
		if r.end <= s.start || r.start >= s.end {
			out = append(out, r)
			continue
		}
		if r.start < s.start {
			out = append(out, span{r.start, s.start})
		}
		if r.end > s.end {
			out = append(out, span{s.end, r.end})
		}
	}
	c.clean = out
}
