package source

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// ErrImageLoad matches every ImageLoadError via errors.Is.
var ErrImageLoad = errors.New("image load failed")

// ImageLoadError reports a missing, undecodable or mismatched source layer.
type ImageLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ImageLoadError) Error() string {
	msg := "load image"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

func (e *ImageLoadError) Is(target error) bool { return target == ErrImageLoad }

// Pair holds the starless background and the stars-only layer.
// Both layers have identical dimensions and are never mutated after load.
type Pair struct {
	Background *image.RGBA
	Stars      *image.RGBA
	Width      int
	Height     int
}

// NewPair converts both layers to RGBA and checks their dimensions.
func NewPair(background, stars image.Image) (*Pair, error) {
	if background == nil || stars == nil {
		return nil, &ImageLoadError{Reason: "both background and star layer are required"}
	}
	bb, sb := background.Bounds(), stars.Bounds()
	if bb.Dx() == 0 || bb.Dy() == 0 {
		return nil, &ImageLoadError{Reason: "background is empty"}
	}
	if bb.Dx() != sb.Dx() || bb.Dy() != sb.Dy() {
		return nil, &ImageLoadError{
			Reason: fmt.Sprintf("dimension mismatch: background %dx%d, stars %dx%d", bb.Dx(), bb.Dy(), sb.Dx(), sb.Dy()),
		}
	}
	return &Pair{
		Background: toRGBA(background),
		Stars:      toRGBA(stars),
		Width:      bb.Dx(),
		Height:     bb.Dy(),
	}, nil
}

// LoadPair decodes both layers from disk. dpi only matters for PDF input.
func LoadPair(backgroundPath, starsPath string, dpi int) (*Pair, error) {
	bg, err := Load(backgroundPath, dpi)
	if err != nil {
		return nil, err
	}
	stars, err := Load(starsPath, dpi)
	if err != nil {
		return nil, err
	}
	pair, err := NewPair(bg, stars)
	if err != nil {
		var le *ImageLoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = starsPath
		}
		return nil, err
	}
	return pair, nil
}

// Downscale returns a copy of the pair resized to w×h with Lanczos
// resampling, or the pair itself when the size already matches.
func (p *Pair) Downscale(w, h int) *Pair {
	if w <= 0 || h <= 0 || (w == p.Width && h == p.Height) {
		return p
	}
	return &Pair{
		Background: toRGBA(resize.Resize(uint(w), uint(h), p.Background, resize.Lanczos3)),
		Stars:      toRGBA(resize.Resize(uint(w), uint(h), p.Stars, resize.Lanczos3)),
		Width:      w,
		Height:     h,
	}
}

// toRGBA returns img as a zero-origin *image.RGBA with a tight stride,
// copying only when necessary.
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if ok && rgba.Stride == bounds.Dx()*4 && rgba.Rect.Min.X == 0 && rgba.Rect.Min.Y == 0 {
		return rgba
	}
	rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}
