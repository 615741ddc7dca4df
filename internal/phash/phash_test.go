package phash

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
)

func gradient(w, h int, invert bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if invert {
				v = 255 - v
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestFromImageStableAcrossScale(t *testing.T) {
	small := FromImage(gradient(90, 80, false))
	large := FromImage(gradient(360, 320, false))
	if d := Distance(small, large); d > 0.05 {
		t.Fatalf("scaled copies differ by %.3f", d)
	}
}

func TestFromImageSeparatesDifferentContent(t *testing.T) {
	a := FromImage(gradient(64, 64, false))
	b := FromImage(gradient(64, 64, true))
	if Hamming(a, b) < 32 {
		t.Fatalf("inverted gradients too similar: hamming=%d", Hamming(a, b))
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want float64
	}{
		{0, 0, 0},
		{0, 1, 1.0 / 64},
		{0, ^uint64(0), 1},
		{0xF0, 0x0F, 8.0 / 64},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Fatalf("Distance(%x,%x) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFileHashesFirstFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.gif")
	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i)}
	}
	frame := image.NewPaletted(image.Rect(0, 0, 64, 64), palette)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			frame.SetColorIndex(x, y, uint8(x*4))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gif.EncodeAll(f, &gif.GIF{Image: []*image.Paletted{frame}, Delay: []int{10}}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = f.Close()

	got, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if want := FromImage(frame); got != want {
		t.Fatalf("File hash %x, want %x", got, want)
	}
}
