// Package phash computes difference hashes of GIF frames.
package phash

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

const (
	hashWidth  = 8
	hashHeight = 8
	hashBits   = hashWidth * hashHeight
)

// FromImage returns the 64-bit difference hash of img. Each bit records
// whether a pixel is brighter than its right neighbour on a 9x8 grayscale
// thumbnail.
func FromImage(img image.Image) uint64 {
	thumb := imaging.Grayscale(imaging.Resize(img, hashWidth+1, hashHeight, imaging.Lanczos))
	var hash uint64
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth; x++ {
			left := thumb.NRGBAAt(x, y).R
			right := thumb.NRGBAAt(x+1, y).R
			hash <<= 1
			if left > right {
				hash |= 1
			}
		}
	}
	return hash
}

// File hashes the first frame of the image at path.
func File(path string) (uint64, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return FromImage(img), nil
}

// Hamming returns the number of differing bits.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Distance returns the fraction of differing bits in [0,1].
func Distance(a, b uint64) float64 {
	return float64(Hamming(a, b)) / hashBits
}
