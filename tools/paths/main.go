// Package paths implements the paths command, which prints the transfer path
// for a region under every combination of engines.
package paths

import (
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/nuvoton-bsp/fbflush/drivers/display"
	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
)

const usageString = `Show the transfer path chosen for a region.

Usage: %s [flags] <x1> <y1> <x2> <y2>

`

var (
	flags = flag.NewFlagSet("paths", flag.ExitOnError)

	preset = flags.String("preset", "qvga", "qvga | wqvga | wvga | wvga32")
)

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "paths")
	flags.PrintDefaults()
}

func Main(args []string) {
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() != 4 {
		flags.Usage()
		os.Exit(1)
	}
	var c [4]int
	for i := range c {
		v, err := strconv.Atoi(flags.Arg(i))
		if err != nil {
			log.Fatalln(err)
		}
		c[i] = v
	}

	p, err := display.ParsePreset(*preset)
	if err != nil {
		log.Fatalln(err)
	}
	s, err := framebuffer.NewSurface(p.Resolution(), p.Format())
	if err != nil {
		log.Fatalln(err)
	}
	report(os.Stdout, s, image.Rect(c[0], c[1], c[2], c[3]))
}

func report(w io.Writer, s framebuffer.Surface, r image.Rectangle) {
	r = r.Canon().Intersect(s.Rect())
	fmt.Fprintf(w, "surface %dx%d %v, stride %d\n", s.Width, s.Height, s.Format, s.Stride)
	fmt.Fprintf(w, "region  %v, full %v, blit aligned %v\n", r, s.Covers(r), flush.BlitAligned(s, r))
	for _, c := range []flush.Caps{{}, {Blit: true}, {DMA: true}, {DMA: true, Blit: true}} {
		fmt.Fprintf(w, "dma=%-5v blit=%-5v  %v\n", c.DMA, c.Blit, flush.Select(c, s, r))
	}
}
