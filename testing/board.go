// Package testing provides utilities for tests running against the emulated
// board.
package testing

import (
	"testing"

	"github.com/nuvoton-bsp/fbflush/hal/sim"
)

// NewBoard creates an emulated board that is closed when the test finishes.
// Rule violations recorded by the board fail the test.
func NewBoard(tb testing.TB, o sim.Options) *sim.Board {
	tb.Helper()
	b, err := sim.New(o)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		b.Close()
		for _, err := range b.Violations() {
			tb.Error(err)
		}
	})
	return b
}
