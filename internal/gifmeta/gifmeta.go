// Package gifmeta reads structural metadata from GIF artifacts.
package gifmeta

import (
	"bufio"
	"fmt"
	"image/gif"
	"os"
	"time"
)

// delayUnit is the GIF frame delay resolution.
const delayUnit = 10 * time.Millisecond

// Metadata summarizes a GIF artifact.
type Metadata struct {
	Width      int
	Height     int
	FrameCount int
	Duration   time.Duration
	LoopCount  int
}

// Resolution renders the logical screen size as WxH.
func (m Metadata) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Read decodes the GIF at path and returns its metadata.
func Read(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	g, err := gif.DecodeAll(bufio.NewReader(f))
	if err != nil {
		return Metadata{}, fmt.Errorf("decode gif %s: %w", path, err)
	}
	meta := Metadata{
		Width:      g.Config.Width,
		Height:     g.Config.Height,
		FrameCount: len(g.Image),
		LoopCount:  g.LoopCount,
	}
	if (meta.Width == 0 || meta.Height == 0) && len(g.Image) > 0 {
		b := g.Image[0].Bounds()
		meta.Width, meta.Height = b.Dx(), b.Dy()
	}
	for _, d := range g.Delay {
		meta.Duration += time.Duration(d) * delayUnit
	}
	return meta, nil
}
