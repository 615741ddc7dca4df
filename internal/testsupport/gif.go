package testsupport

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
)

// GIFSpec describes a synthetic GIF. Seed varies the pixel pattern so that
// different seeds produce visually different frames.
type GIFSpec struct {
	Frames int
	Width  int
	Height int
	Delay  int // hundredths of a second per frame
	Seed   int
}

// WriteGIF encodes a deterministic GIF at path.
func WriteGIF(t testing.TB, path string, spec GIFSpec) {
	t.Helper()
	if err := RenderGIF(path, spec); err != nil {
		t.Fatalf("write gif %s: %v", path, err)
	}
}

// RenderGIF encodes a deterministic GIF at path. Identical specs produce
// identical bytes.
func RenderGIF(path string, spec GIFSpec) error {
	if spec.Frames <= 0 {
		spec.Frames = 1
	}
	if spec.Width <= 0 {
		spec.Width = 32
	}
	if spec.Height <= 0 {
		spec.Height = 32
	}
	if spec.Delay <= 0 {
		spec.Delay = 10
	}
	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i)}
	}
	g := &gif.GIF{}
	for f := 0; f < spec.Frames; f++ {
		img := image.NewPaletted(image.Rect(0, 0, spec.Width, spec.Height), palette)
		for y := 0; y < spec.Height; y++ {
			for x := 0; x < spec.Width; x++ {
				v := (x*255/spec.Width + y*spec.Seed*37 + f) % 256
				if spec.Seed%2 == 1 {
					v = 255 - v
				}
				img.SetColorIndex(x, y, uint8(v))
			}
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, spec.Delay)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gif.EncodeAll(f, g); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
