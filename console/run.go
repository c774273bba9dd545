// Package console runs a game loop on top of the flush coordinator.
package console

import (
	"errors"

	"github.com/embeddedgo/display/pix"

	"github.com/nuvoton-bsp/fbflush/drivers/display"
	"github.com/nuvoton-bsp/fbflush/flush"
)

// ErrQuit ends the game loop without Run reporting an error.
var ErrQuit = errors.New("console: quit")

// Gamelooper represents a game instance that can be updated and drawn.
type Gamelooper interface {
	// Update is called every frame to update game logic.
	// Return an error to exit the game loop, nil to continue.
	Update() error

	// Draw is called every frame to render the game. Only what's drawn
	// is transferred to the display.
	Draw(screen *pix.Area)
}

// Run repeatedly calls Update and Draw and flushes each frame. Frames are
// paced by the vertical blank if the board has one: a full refresh waits for
// it while flushing, other frames wait for it afterwards. The buffers are
// handed back to c when Run returns, so c may be run again.
func Run(c *flush.Coordinator, g Gamelooper) error {
	disp, drv := display.New(c)
	defer drv.Close()
	screen := disp.NewArea(disp.Bounds())

	for {
		if err := g.Update(); err != nil {
			if errors.Is(err, ErrQuit) {
				err = nil
			}
			return err
		}

		g.Draw(screen)
		presented := c.Mode() == flush.Full && !drv.Dirty().Empty()
		disp.Flush()
		if err := drv.Err(true); err != nil {
			return err
		}
		if !presented {
			c.VSync()
		}
	}
}
