package depth

import (
	"image"
	"math"
)

// boxesForGauss returns the widths of n box filters whose repeated
// application approximates a gaussian with the given sigma.
func boxesForGauss(sigma float64, n int) []int {
	wIdeal := math.Sqrt(12*sigma*sigma/float64(n) + 1)
	wl := int(math.Floor(wIdeal))
	if wl%2 == 0 {
		wl--
	}
	wu := wl + 2

	mIdeal := (12*sigma*sigma - float64(n*wl*wl) - float64(4*n*wl) - float64(3*n)) / float64(-4*wl-4)
	m := int(math.Round(mIdeal))

	sizes := make([]int, n)
	for i := range sizes {
		if i < m {
			sizes[i] = wl
		} else {
			sizes[i] = wu
		}
	}
	return sizes
}

// Blur applies a gaussian-like blur of the given pixel radius in place,
// using three separable box passes with clamped edges.
func Blur(img *image.Gray, radius float64) {
	if radius <= 0 {
		return
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}

	buf := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			buf[y*w+x] = float32(v)
		}
	}
	tmp := make([]float32, w*h)

	for _, size := range boxesForGauss(radius, 3) {
		r := (size - 1) / 2
		if r < 1 {
			continue
		}
		boxBlurH(buf, tmp, w, h, r)
		boxBlurV(tmp, buf, w, h, r)
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range row {
			row[x] = clampByte(math.Round(float64(buf[y*w+x])))
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// boxBlurH is a running-sum horizontal box filter.
func boxBlurH(src, dst []float32, w, h, r int) {
	win := float32(2*r + 1)
	for y := 0; y < h; y++ {
		row := src[y*w : y*w+w]
		var sum float32
		for x := -r; x <= r; x++ {
			sum += row[clampIndex(x, w)]
		}
		for x := 0; x < w; x++ {
			dst[y*w+x] = sum / win
			sum += row[clampIndex(x+r+1, w)] - row[clampIndex(x-r, w)]
		}
	}
}

// boxBlurV is the vertical counterpart of boxBlurH.
func boxBlurV(src, dst []float32, w, h, r int) {
	win := float32(2*r + 1)
	for x := 0; x < w; x++ {
		var sum float32
		for y := -r; y <= r; y++ {
			sum += src[clampIndex(y, h)*w+x]
		}
		for y := 0; y < h; y++ {
			dst[y*w+x] = sum / win
			sum += src[clampIndex(y+r+1, h)*w+x] - src[clampIndex(y-r, h)*w+x]
		}
	}
}
