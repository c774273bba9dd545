package cpu

// Shim keeps pixel memory coherent between the CPU and the engines that share
// it. The contract is the same on every core, only the work differs: Publish
// before a hardware engine reads, Claim before the CPU reads what an engine
// wrote. On cores without data cache both are no-ops.
type Shim struct {
	m    Maintainer
	line int
}

// NewShim returns a Shim using m. A nil m is treated as Uncached.
func NewShim(m Maintainer) *Shim {
	if m == nil {
		m = Uncached{}
	}
	if _, ok := m.(Uncached); ok {
		return &Shim{}
	}
	return &Shim{m: m, line: m.LineSize()}
}

// LineSize returns the granularity of the shim's cache operations, 1 on
// coherent cores.
func (s *Shim) LineSize() int {
	if s.m == nil {
		return 1
	}
	return s.line
}

// Coherent reports whether the shim has no work to do.
func (s *Shim) Coherent() bool { return s.m == nil }

// Publish cleans the cache lines covering p.
func (s *Shim) Publish(p []byte) {
	if s.m == nil || len(p) == 0 {
		return
	}
	start, n := LineRange(Addr(p), len(p), s.line)
	s.m.Writeback(start, n)
}

// PublishRows cleans rows lines of rowBytes each, the first one starting at
// p[0] and the following ones stride bytes apart. Rows that share cache lines
// are cleaned with a single call.
func (s *Shim) PublishRows(p []byte, stride, rowBytes, rows int) {
	s.rows(p, stride, rowBytes, rows, s.writeback)
}

// Claim invalidates the cache lines covering p.
func (s *Shim) Claim(p []byte) {
	if s.m == nil || len(p) == 0 {
		return
	}
	start, n := LineRange(Addr(p), len(p), s.line)
	s.m.Invalidate(start, n)
}

// ClaimRows is the Claim counterpart of PublishRows.
func (s *Shim) ClaimRows(p []byte, stride, rowBytes, rows int) {
	s.rows(p, stride, rowBytes, rows, s.invalidate)
}

func (s *Shim) writeback(start uintptr, n int)  { s.m.Writeback(start, n) }
func (s *Shim) invalidate(start uintptr, n int) { s.m.Invalidate(start, n) }

func (s *Shim) rows(p []byte, stride, rowBytes, rows int, op func(uintptr, int)) {
	if s.m == nil || rows <= 0 || rowBytes <= 0 {
		return
	}
	// Gaps between rows smaller than a cache line would be touched twice
	// anyway, so treat the block as one range.
	if stride-rowBytes < s.line {
		n := (rows-1)*stride + rowBytes
		start, l := LineRange(Addr(p), n, s.line)
		op(start, l)
		return
	}
	base := Addr(p)
	for y := range rows {
		start, l := LineRange(base+uintptr(y*stride), rowBytes, s.line)
		op(start, l)
	}
}
