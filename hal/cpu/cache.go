// The CPU reaches pixel memory through a write-back data cache and in general
// assumes that there are no other readers or writers. Display controllers, DMA
// channels and the 2D graphics engine read and write RAM directly, so cache
// and RAM must be synced before one of them is involved.
//
// All operations in this package refer to the data cache.
package cpu

import (
	"unsafe"

	"github.com/nuvoton-bsp/fbflush/debug"
)

// CacheLineSize is the largest data cache line of the supported cores
// (Cortex-M55, Cortex-A35, ARM926). Allocations padded to it are safe for
// every maintainer.
const CacheLineSize = 32

// Cache operations always affect a whole cache line. To avoid cleaning or
// invalidating unrelated data in a cache line, pad structs with CacheLinePad
// at the beginning and end.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Maintainer is the data cache maintenance primitive of a core.
type Maintainer interface {
	// LineSize returns the cache line size in bytes.
	LineSize() int

	// Writeback cleans the cache lines covering [addr, addr+n) so RAM holds
	// what the CPU wrote. Call this before another component reads from
	// the range.
	Writeback(addr uintptr, n int)

	// Invalidate drops the cache lines covering [addr, addr+n) so the next
	// CPU access is read from RAM. Call this before the CPU reads a range
	// that another component wrote.
	Invalidate(addr uintptr, n int)
}

// Uncached is the Maintainer of cores without data cache or with the cache
// disabled.
type Uncached struct{}

func (Uncached) LineSize() int                  { return 1 }
func (Uncached) Writeback(addr uintptr, n int)  {}
func (Uncached) Invalidate(addr uintptr, n int) {}

// MakePaddedSlice returns a slice that is safe for cache ops. Its start is
// aligned to CacheLineSize and the end is padded to fill the cache line. Note
// that using append() might corrupt the padding.
func MakePaddedSlice[T any](size int) []T {
	var t T
	cls := CacheLineSize / int(unsafe.Sizeof(t))
	buf := make([]T, 0, cls+size+cls)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	shift := (CacheLineSize - int(addr)%CacheLineSize) % CacheLineSize / int(unsafe.Sizeof(t))
	return buf[shift : shift+size]
}

// MakePaddedSliceAligned is the same as MakePaddedSlice with extra alignment
// requirements. Display controllers usually want their origin on a 64 byte
// boundary.
func MakePaddedSliceAligned[T any](size int, align uintptr) []T {
	var t T
	if align <= CacheLineSize || align <= unsafe.Alignof(t) {
		return MakePaddedSlice[T](size)
	}

	buf := MakePaddedSlice[T](size + int(align/unsafe.Sizeof(t)))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	shift := (align - addr%align) % align / unsafe.Sizeof(t)
	return buf[shift : shift+uintptr(size)]
}

// IsPadded returns true if p is safe for cache ops, i.e. aligned to the cache
// line and padded up to the end of its last line.
func IsPadded[T any](p []T) bool {
	var t T
	cls := CacheLineSize / int(unsafe.Sizeof(t))

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	return addr%CacheLineSize == 0 && cap(p)-len(p) >= (cls-len(p)%cls)%cls
}

// Addr returns the address of the first element of p.
func Addr[T any](p []T) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

// LineRange widens [addr, addr+n) to whole cache lines of size line.
func LineRange(addr uintptr, n, line int) (start uintptr, length int) {
	debug.Assert(line > 0 && line&(line-1) == 0, "cpu: cache line not a power of two")
	if n <= 0 {
		return addr, 0
	}
	mask := uintptr(line - 1)
	start = addr &^ mask
	end := (addr + uintptr(n) + mask) &^ mask
	return start, int(end - start)
}
