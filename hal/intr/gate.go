package intr

import "time"

// Gate is a single-slot completion signal. It is raised from interrupt
// context and lowered by exactly one waiter. Raising an already raised gate
// has no effect, so a gate is only correct for engines with at most one
// outstanding request, or for periodic signals where missed ticks don't
// matter.
type Gate struct {
	c chan struct{}
}

func NewGate() *Gate {
	return &Gate{c: make(chan struct{}, 1)}
}

// Raise raises the gate without blocking. It returns false if the gate was
// already raised.
func (g *Gate) Raise() bool {
	select {
	case g.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is raised and lowers it.
func (g *Gate) Wait() {
	<-g.c
}

// WaitTimeout is like Wait but gives up after timeout. It returns false if
// the gate wasn't raised in time. A negative timeout waits forever.
func (g *Gate) WaitTimeout(timeout time.Duration) bool {
	if timeout < 0 {
		g.Wait()
		return true
	}
	select {
	case <-g.c:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-g.c:
		return true
	case <-t.C:
		return false
	}
}

// Clear lowers the gate if it is raised, dropping a stale signal.
func (g *Gate) Clear() {
	select {
	case <-g.c:
	default:
	}
}

// Raised reports whether the gate is currently raised.
func (g *Gate) Raised() bool {
	return len(g.c) != 0
}
