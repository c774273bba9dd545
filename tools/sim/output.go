package sim

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"os"

	"github.com/ericpauley/go-quantize/quantize"

	"github.com/nuvoton-bsp/fbflush/flush"
	"github.com/nuvoton-bsp/fbflush/hal"
)

// paletted converts a frame to a paletted image for the GIF encoder.
func paletted(img image.Image) *image.Paletted {
	q := quantize.MedianCutQuantizer{}
	p := q.Quantize(make(color.Palette, 0, 256), img)
	dst := image.NewPaletted(img.Bounds(), p)
	draw.Draw(dst, dst.Bounds(), img, image.Point{}, draw.Src)
	return dst
}

func writeGIF(name string, anim *gif.GIF) error {
	w, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(w, anim); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func printStats(w io.Writer, st flush.Stats) {
	fmt.Fprintf(w, "frames %d\n", st.Frames)
	for p, n := range st.Paths {
		fmt.Fprintf(w, "path   %-5v %d\n", flush.Path(p), n)
	}
	for e, n := range st.Waits {
		fmt.Fprintf(w, "wait   %-5v %d\n", hal.Engine(e), n)
	}
	fmt.Fprintf(w, "blocked %v\n", st.Wait)
}
