package renderer

import (
	"math"

	"github.com/ivlev/stereo2video/internal/config"
)

// MinScale is the smallest scale a transform may carry.
const MinScale = 1e-3

// FrameTransform is the camera state for one frame.
type FrameTransform struct {
	Scale    float64
	PanX     float64 // px
	PanY     float64 // px
	Rotation float64 // radians, positive is clockwise on screen
}

// Identity is the untransformed camera.
var Identity = FrameTransform{Scale: 1}

// Transform computes the camera state at progress for a view of the given
// width. progress is clamped to [0,1] and eased before use.
func Transform(progress float64, a config.AnimationSettings, width int) FrameTransform {
	p := ease(clamp01(progress), a.Easing)
	amp := a.Amplification / 100

	ft := Identity
	switch a.MotionType {
	case config.MotionZoomIn:
		ft.Scale = lerp(1, 1+amp, p)
	case config.MotionZoomOut:
		ft.Scale = lerp(1+amp, 1, p)
	case config.MotionPanLeft:
		maxPan := float64(width) * amp * 0.5
		ft.PanX = maxPan - p*2*maxPan
	case config.MotionPanRight:
		maxPan := float64(width) * amp * 0.5
		ft.PanX = -maxPan + p*2*maxPan
	}

	if a.Spin > 0 {
		dir := 1.0
		if a.SpinDirection == config.SpinCounterclockwise {
			dir = -1
		}
		ft.Rotation = p * (a.Spin * math.Pi / 180) * dir
	}

	ft, _ = Sanitize(ft)
	return ft
}

// Sanitize clamps a transform into the drawable range. The returned warning
// is nil when nothing had to change.
func Sanitize(ft FrameTransform) (FrameTransform, *DegenerateTransformWarning) {
	var w *DegenerateTransformWarning
	note := func(field string, got, used float64) {
		if w == nil {
			w = &DegenerateTransformWarning{}
		}
		w.Fields = append(w.Fields, ClampedField{Name: field, Got: got, Used: used})
	}

	switch {
	case math.IsNaN(ft.Scale) || math.IsInf(ft.Scale, 0):
		note("scale", ft.Scale, 1)
		ft.Scale = 1
	case ft.Scale < MinScale:
		note("scale", ft.Scale, MinScale)
		ft.Scale = MinScale
	}
	if !finite(ft.PanX) {
		note("pan_x", ft.PanX, 0)
		ft.PanX = 0
	}
	if !finite(ft.PanY) {
		note("pan_y", ft.PanY, 0)
		ft.PanY = 0
	}
	if !finite(ft.Rotation) {
		note("rotation", ft.Rotation, 0)
		ft.Rotation = 0
	}
	return ft, w
}

func ease(t float64, easing string) float64 {
	if easing == config.EasingEaseInOut {
		return easeInOutCubic(t)
	}
	return t
}

func clamp01(t float64) float64 {
	switch {
	case math.IsNaN(t) || t < 0:
		return 0
	case t > 1:
		return 1
	}
	return t
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
