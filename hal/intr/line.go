package intr

// Register is a 32-bit status register with write-one-to-clear semantics:
// Store(v) clears every bit set in v and leaves the others untouched.
type Register interface {
	Load() uint32
	Store(uint32)
}

// Line services the completion interrupt of one engine.
type Line struct {
	Status Register
	Done   uint32 // done bit(s) in Status
	Gate   *Gate
}

// Service is the interrupt handler. It clears the done bit and raises the
// gate if the engine reports completion, and does nothing otherwise, so it
// may be attached to an interrupt shared with other sources.
func (l *Line) Service() {
	if l.Status.Load()&l.Done == 0 {
		return
	}
	l.Status.Store(l.Done) // clears interrupt
	l.Gate.Raise()
}
