package renderer

import (
	"math"

	"golang.org/x/image/math/f64"
)

// Affine is a 2×3 row-major matrix mapping source to destination:
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
//
// It carries no dependency on the drawing backend; Aff3 converts it.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// IdentityAffine maps every point to itself.
var IdentityAffine = Affine{A: 1, E: 1}

func Translate(tx, ty float64) Affine {
	return Affine{A: 1, C: tx, E: 1, F: ty}
}

func Scale(s float64) Affine {
	return Affine{A: s, E: s}
}

// Rotate rotates by theta radians. With y pointing down a positive angle
// turns clockwise on screen.
func Rotate(theta float64) Affine {
	sin, cos := math.Sincos(theta)
	return Affine{A: cos, B: -sin, D: sin, E: cos}
}

// Then returns m·n: n is applied first, then m.
func (m Affine) Then(n Affine) Affine {
	return Affine{
		A: m.A*n.A + m.B*n.D,
		B: m.A*n.B + m.B*n.E,
		C: m.A*n.C + m.B*n.F + m.C,
		D: m.D*n.A + m.E*n.D,
		E: m.D*n.B + m.E*n.E,
		F: m.D*n.C + m.E*n.F + m.F,
	}
}

// Apply maps a point.
func (m Affine) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.C, m.D*x + m.E*y + m.F
}

// Aff3 converts to the x/image representation.
func (m Affine) Aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.B, m.C, m.D, m.E, m.F}
}

// Compose builds the per-eye matrix: translate to the slot origin, move to
// the view centre, rotate, scale, pan in scaled space and move back.
func Compose(originX, originY float64, w, h int, ft FrameTransform) Affine {
	cx, cy := float64(w)/2, float64(h)/2
	return Translate(originX, originY).
		Then(Translate(cx, cy)).
		Then(Rotate(ft.Rotation)).
		Then(Scale(ft.Scale)).
		Then(Translate(ft.PanX/ft.Scale, ft.PanY/ft.Scale)).
		Then(Translate(-cx, -cy))
}
