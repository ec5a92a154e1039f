// Package stereo synthesises the left/right eye views from the source layers
// and their depth map.
package stereo

import (
	"fmt"
	"image"
	"math"

	"github.com/ivlev/stereo2video/internal/config"
	"github.com/ivlev/stereo2video/internal/source"
)

// Views is a synthesised stereo pair. Both views have the source dimensions.
type Views struct {
	Left  *image.RGBA
	Right *image.RGBA
}

// Displacement returns the horizontal parallax in pixels for a normalised
// depth d: round((d - 0.5) * horizontalDisplace), halves rounded up.
func Displacement(d, horizontalDisplace float64) int {
	return int(math.Floor((d-0.5)*horizontalDisplace + 0.5))
}

// Synthesize builds both eye views. The left view is the reference eye
// (background screen star layer). The right view samples the background at
// x - displacement; samples falling outside the image stay opaque black.
// Inputs are not modified and the returned buffers are freshly allocated.
func Synthesize(pair *source.Pair, depthMap *image.Gray, p config.StereoParams) (*Views, error) {
	w, h := pair.Width, pair.Height
	if db := depthMap.Bounds(); db.Dx() != w || db.Dy() != h {
		return nil, fmt.Errorf("depth map %dx%d does not match source %dx%d", db.Dx(), db.Dy(), w, h)
	}

	left := image.NewRGBA(image.Rect(0, 0, w, h))
	right := image.NewRGBA(image.Rect(0, 0, w, h))

	// displacement per depth value
	var disp [256]int
	for v := range disp {
		disp[v] = Displacement(float64(v)/255, p.HorizontalDisplace)
	}

	shift := 0
	if p.StarShiftAmount > 0 {
		shift = int(math.Round(p.StarShiftAmount))
	}

	var boost *[256]uint8
	if p.ContrastBoost != 1.0 {
		boost = boostLUT(p.ContrastBoost)
	}

	rowBytes := w * 4
	for y := 0; y < h; y++ {
		bg := pair.Background.Pix[y*pair.Background.Stride : y*pair.Background.Stride+rowBytes]
		stars := pair.Stars.Pix[y*pair.Stars.Stride : y*pair.Stars.Stride+rowBytes]
		l := left.Pix[y*left.Stride : y*left.Stride+rowBytes]
		r := right.Pix[y*right.Stride : y*right.Stride+rowBytes]
		dm := depthMap.Pix[y*depthMap.Stride : y*depthMap.Stride+w]

		copy(l, bg)
		for i := 3; i < rowBytes; i += 4 {
			l[i] = 255
		}
		screenLayer(l, stars, w, 0)

		for x := 0; x < w; x++ {
			sx := x - disp[dm[x]]
			d := x * 4
			r[d+3] = 255
			if sx < 0 || sx >= w {
				continue
			}
			s := sx * 4
			r[d+0] = bg[s+0]
			r[d+1] = bg[s+1]
			r[d+2] = bg[s+2]
		}
		screenLayer(r, stars, w, shift)

		if boost != nil {
			boostRow(l, boost)
			boostRow(r, boost)
		}
	}

	return &Views{Left: left, Right: right}, nil
}
