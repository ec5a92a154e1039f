// Package depth derives a single-channel depth buffer from the starless
// background layer.
package depth

import (
	"image"
	"math"
)

// Gamma shapes luminance into depth; < 1 lifts faint nebulosity.
const Gamma = 0.8

// Luminance weights. Blue is weighted highest on purpose so that nebular
// structure reads as "near"; the weights do not sum to one.
const (
	weightR = 2 // tenths
	weightG = 5
	weightB = 8
)

const maxLumTenths = 255 * (weightR + weightG + weightB)

// depthLUT maps luminance (in tenths) to the gamma-shaped depth value.
var depthLUT = func() [maxLumTenths + 1]uint8 {
	var lut [maxLumTenths + 1]uint8
	for i := range lut {
		lum := float64(i) / 10
		v := math.Pow(lum/255, Gamma) * 255
		lut[i] = clampByte(math.Round(v))
	}
	return lut
}()

// Luminance returns 0.2·R + 0.5·G + 0.8·B.
func Luminance(r, g, b uint8) float64 {
	return float64(lumTenths(r, g, b)) / 10
}

func lumTenths(r, g, b uint8) int {
	return weightR*int(r) + weightG*int(g) + weightB*int(b)
}

// Enhance applies the gamma curve to a luminance value, clamped to 0..255.
func Enhance(lum float64) uint8 {
	if lum <= 0 {
		return 0
	}
	return clampByte(math.Round(math.Pow(lum/255, Gamma) * 255))
}

// Build returns a new depth map of the same size as bg. When blurRadius > 0
// the map is blurred with that radius afterwards. bg is not modified.
func Build(bg *image.RGBA, blurRadius float64) *image.Gray {
	b := bg.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		off := bg.PixOffset(b.Min.X, b.Min.Y+y)
		src := bg.Pix[off : off+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			i := x * 4
			dst[x] = depthLUT[lumTenths(src[i], src[i+1], src[i+2])]
		}
	}

	if blurRadius > 0 {
		Blur(out, blurRadius)
	}
	return out
}

// Normalized returns the depth at (x, y) in [0, 1].
func Normalized(m *image.Gray, x, y int) float64 {
	return float64(m.Pix[y*m.Stride+x]) / 255
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
