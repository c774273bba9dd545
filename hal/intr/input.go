package intr

import "sync/atomic"

// Input passes a value from a single writer task into an interrupt handler.
// The handler picks the value up at its next run. Values stored in between
// replace each other, only the latest is delivered.
type Input[T any] struct {
	last    T // owned by writer
	current T // owned by reader

	ptr atomic.Pointer[T]
}

// Store publishes v to the reader.
func (p *Input[T]) Store(v T) {
	p.last = v
	p.ptr.Store(&v)
}

// Get can be used by the writer task to read back the latest stored value.
func (p *Input[T]) Get() T {
	return p.last
}

// Pending reports whether the latest stored value wasn't loaded by the reader
// yet.
func (p *Input[T]) Pending() bool {
	return p.ptr.Load() != nil
}

// Load is called by the interrupt handler. It returns the latest value and
// whether it was stored since the previous Load.
func (p *Input[T]) Load() (v T, updated bool) {
	ptr := p.ptr.Swap(nil)
	if ptr == nil {
		return p.current, false
	}
	p.current = *ptr
	return p.current, true
}
