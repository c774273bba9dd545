package display

import (
	"fmt"
	"image"
	"strings"

	"github.com/embeddedgo/display/pix"

	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal"
)

// Preset is a panel configuration found on the evaluation boards.
type Preset int

const (
	// QVGA is the 320x240 SPI/EBI panel of the smaller boards.
	QVGA Preset = iota
	// WQVGA is the 480x272 RGB panel.
	WQVGA
	// WVGA is the 800x480 RGB panel in 16 bit mode.
	WVGA
	// WVGA32 is the 800x480 RGB panel in 32 bit mode.
	WVGA32
)

var presetNames = [...]string{"qvga", "wqvga", "wvga", "wvga32"}

func (p Preset) String() string {
	if p < 0 || int(p) >= len(presetNames) {
		return "preset?"
	}
	return presetNames[p]
}

// Resolution returns the panel resolution of p.
func (p Preset) Resolution() image.Point {
	switch p {
	case WQVGA:
		return image.Point{X: 480, Y: 272}
	case WVGA, WVGA32:
		return image.Point{X: 800, Y: 480}
	default:
		return image.Point{X: 320, Y: 240}
	}
}

// Format returns the pixel format of p.
func (p Preset) Format() framebuffer.Format {
	if p == WVGA32 {
		return framebuffer.RGBA8888
	}
	return framebuffer.RGB565
}

// ParsePreset returns the preset named s.
func ParsePreset(s string) (Preset, error) {
	for i, name := range presetNames {
		if strings.EqualFold(s, name) {
			return Preset(i), nil
		}
	}
	return 0, fmt.Errorf("display: unknown preset %q", s)
}

// Init creates the coordinator for board b and a pix.Display drawing through
// it.
func Init(b *hal.Board, cfg flush.Config) (*pix.Display, *Driver, error) {
	c, err := flush.New(b, cfg)
	if err != nil {
		return nil, nil, err
	}
	disp, drv := New(c)
	return disp, drv, nil
}
