// Package sim implements the sim command. It renders an animated scene
// through pix, the display driver and the flush coordinator on an emulated
// board, and reports a CRC-8 of every frame the display scanned out.
package sim

import (
	"flag"
	"fmt"
	"image/gif"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sigurn/crc8"

	"github.com/nuvoton-bsp/fbflush/drivers/display"
	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
	"github.com/nuvoton-bsp/fbflush/hal/cpu"
	emu "github.com/nuvoton-bsp/fbflush/hal/sim"
)

const usageString = `Render a scene on the emulated board.

Usage: %s [flags]

`

var (
	flags = flag.NewFlagSet("sim", flag.ExitOnError)

	preset  = flags.String("preset", "qvga", "qvga | wqvga | wvga | wvga32")
	mode    = flags.String("mode", "partial", "partial | full")
	frames  = flags.Int("frames", 60, "number of frames to render")
	buffers = flags.Int("buffers", 2, "number of renderer buffers")
	gifFile = flags.String("gif", "", "write the scanned out frames to an animated GIF")
	dma     = flags.Bool("dma", true, "board has a bulk DMA engine")
	blit    = flags.Bool("blit", true, "board has a 2D graphics engine")
	refresh = flags.Duration("refresh", 16*time.Millisecond, "vertical blank period")
	latency = flags.Duration("latency", 200*time.Microsecond, "engine latency")
	verbose = flags.Bool("v", false, "log every flush")
)

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "sim")
	flags.PrintDefaults()
}

var crcTable = crc8.MakeTable(crc8.CRC8)

type config struct {
	preset  display.Preset
	mode    flush.Mode
	frames  int
	buffers int
	dma     bool
	blit    bool
	refresh time.Duration
	latency time.Duration
	logger  *slog.Logger
}

// run renders cfg.frames frames and passes each scanned out frame to out.
func run(cfg config, out func(n int, s framebuffer.Surface, frame []byte)) (flush.Stats, error) {
	b, err := emu.New(emu.Options{
		Name:       cfg.preset.String(),
		Resolution: cfg.preset.Resolution(),
		BPP:        cfg.preset.Format().Bytes(),
		Frames:     2,
		DMA:        cfg.dma,
		Blit:       cfg.blit,
		VSync:      true,
		Refresh:    cfg.refresh,
		Latency:    cfg.latency,
		CacheLine:  cpu.CacheLineSize,
	})
	if err != nil {
		return flush.Stats{}, err
	}
	defer b.Close()

	c, err := flush.New(b.HAL(), flush.Config{
		Mode:    cfg.mode,
		Buffers: cfg.buffers,
		Timeout: time.Second,
		Logger:  cfg.logger,
	})
	if err != nil {
		return flush.Stats{}, err
	}
	disp, _ := display.New(c)
	sc := newScene(disp.NewArea(disp.Bounds()))

	s := c.Surface()
	frame := make([]byte, s.Size)
	for n := range cfg.frames {
		sc.draw(n)
		disp.Flush()
		c.Capture(frame)
		out(n, s, frame)
	}
	b.Close()
	return c.Stats(), b.Err()
}

func parseMode(s string) (flush.Mode, error) {
	switch strings.ToLower(s) {
	case "partial":
		return flush.Partial, nil
	case "full":
		return flush.Full, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func Main(args []string) {
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() != 0 {
		flags.Usage()
		os.Exit(1)
	}

	p, err := display.ParsePreset(*preset)
	if err != nil {
		log.Fatalln(err)
	}
	m, err := parseMode(*mode)
	if err != nil {
		log.Fatalln(err)
	}
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}

	var anim gif.GIF
	delay := max(1, int(*refresh/(10*time.Millisecond)))
	stats, err := run(config{
		preset:  p,
		mode:    m,
		frames:  *frames,
		buffers: *buffers,
		dma:     *dma,
		blit:    *blit,
		refresh: *refresh,
		latency: *latency,
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}, func(n int, s framebuffer.Surface, frame []byte) {
		fmt.Printf("frame %4d  crc8 %02x\n", n, crc8.Checksum(frame, crcTable))
		if *gifFile != "" {
			anim.Image = append(anim.Image, paletted(s.Image(frame)))
			anim.Delay = append(anim.Delay, delay)
		}
	})
	if err != nil {
		log.Fatalln(err)
	}
	printStats(os.Stdout, stats)

	if *gifFile != "" {
		if err := writeGIF(*gifFile, &anim); err != nil {
			log.Fatalln(err)
		}
	}
}
