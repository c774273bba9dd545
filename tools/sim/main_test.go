package sim

import (
	"bytes"
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sigurn/crc8"

	"github.com/nuvoton-bsp/fbflush/drivers/display"
	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/framebuffer"
)

// Every board and refresh mode must scan out the same frames.
func TestRunModes(t *testing.T) {
	const frames = 8
	var ref []uint8
	for _, cfg := range []config{
		{mode: flush.Partial, buffers: 2, dma: true, blit: true},
		{mode: flush.Partial, buffers: 1},
		{mode: flush.Partial, buffers: 3, blit: true},
		{mode: flush.Full, buffers: 2, dma: true},
		{mode: flush.Full, buffers: 3, blit: true},
	} {
		cfg.preset = display.QVGA
		cfg.frames = frames
		cfg.refresh = time.Millisecond
		cfg.latency = 50 * time.Microsecond

		var sums []uint8
		stats, err := run(cfg, func(n int, s framebuffer.Surface, frame []byte) {
			sums = append(sums, crc8.Checksum(frame, crcTable))
		})
		if err != nil {
			t.Fatalf("%+v: %v", cfg, err)
		}
		if stats.Frames != frames {
			t.Errorf("%+v: %d frames", cfg, stats.Frames)
		}
		if cfg.dma && stats.Paths[flush.PathDMA] == 0 {
			t.Errorf("%+v: dma never used", cfg)
		}
		if !cfg.dma && !cfg.blit && stats.Paths[flush.PathCPU] != frames {
			t.Errorf("%+v: paths %v", cfg, stats.Paths)
		}
		if ref == nil {
			ref = sums
			continue
		}
		if !slices.Equal(sums, ref) {
			t.Errorf("%+v: frames %x, expected %x", cfg, sums, ref)
		}
	}
}

func TestGIF(t *testing.T) {
	var anim gif.GIF
	_, err := run(config{preset: display.QVGA, frames: 3, buffers: 2, dma: true, blit: true}, func(n int, s framebuffer.Surface, frame []byte) {
		anim.Image = append(anim.Image, paletted(s.Image(frame)))
		anim.Delay = append(anim.Delay, 2)
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, img := range anim.Image {
		if img.Bounds() != image.Rect(0, 0, 320, 240) || len(img.Palette) > 256 {
			t.Fatalf("unexpected frame %v, %d colors", img.Bounds(), len(img.Palette))
		}
	}

	name := filepath.Join(t.TempDir(), "scene.gif")
	if err := writeGIF(name, &anim); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Image) != 3 {
		t.Errorf("%d frames in GIF", len(got.Image))
	}
}

func TestParseMode(t *testing.T) {
	if m, err := parseMode("Full"); err != nil || m != flush.Full {
		t.Errorf("parseMode(Full) = %v, %v", m, err)
	}
	if _, err := parseMode("double"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestPrintStats(t *testing.T) {
	var out bytes.Buffer
	st := flush.Stats{Frames: 3}
	st.Paths[flush.PathBlit] = 2
	printStats(&out, st)
	if !strings.Contains(out.String(), "path   blit  2") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}
