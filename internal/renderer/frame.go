// Package renderer turns a pair of eye views and a camera transform into a
// side-by-side stereo frame.
package renderer

import (
	"fmt"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/stereo2video/internal/config"
	"github.com/ivlev/stereo2video/internal/stereo"
)

// Layout is the geometry of the composite frame.
type Layout struct {
	ViewWidth  int
	ViewHeight int
	Spacing    int
	Border     int
}

func NewLayout(w, h int, p config.StereoParams) Layout {
	return Layout{ViewWidth: w, ViewHeight: h, Spacing: p.StereoSpacing, Border: p.BorderSize}
}

// Size returns the composite dimensions: (2w + spacing + 2b) × (h + 2b).
func (l Layout) Size() (int, int) {
	return 2*l.ViewWidth + l.Spacing + 2*l.Border, l.ViewHeight + 2*l.Border
}

func (l Layout) Bounds() image.Rectangle {
	w, h := l.Size()
	return image.Rect(0, 0, w, h)
}

func (l Layout) LeftSlot() image.Rectangle {
	b := l.Border
	return image.Rect(b, b, b+l.ViewWidth, b+l.ViewHeight)
}

func (l Layout) RightSlot() image.Rectangle {
	x := l.Border + l.ViewWidth + l.Spacing
	return image.Rect(x, l.Border, x+l.ViewWidth, l.Border+l.ViewHeight)
}

// Renderer draws composite frames for one set of views. It holds no per-frame
// state, so a single Renderer may serve live preview and export.
type Renderer struct {
	layout Layout
	left   *image.RGBA
	right  *image.RGBA
	tag    *shareTag

	// OnWarning receives recoverable problems such as clamped transforms.
	OnWarning func(error)
}

// New creates a renderer. shareURL is optional; it is stamped as a QR code
// into the bottom-right border when the border is wide enough.
func New(views *stereo.Views, p config.StereoParams, shareURL string) (*Renderer, error) {
	if views == nil || views.Left == nil || views.Right == nil {
		return nil, fmt.Errorf("renderer: views are required")
	}
	lb, rb := views.Left.Bounds(), views.Right.Bounds()
	if lb.Size() != rb.Size() {
		return nil, fmt.Errorf("renderer: eye views differ in size: %v vs %v", lb.Size(), rb.Size())
	}

	r := &Renderer{
		layout: NewLayout(lb.Dx(), lb.Dy(), p),
		left:   views.Left,
		right:  views.Right,
	}
	if shareURL != "" && p.BorderSize >= MinTagBorder {
		tag, err := newShareTag(shareURL, r.layout)
		if err != nil {
			return nil, err
		}
		r.tag = tag
	}
	return r, nil
}

func (r *Renderer) Layout() Layout { return r.layout }

// Render draws the frame for ft into dst, which must match the layout size.
func (r *Renderer) Render(dst *image.RGBA, ft FrameTransform) error {
	if dst.Bounds() != r.layout.Bounds() {
		return fmt.Errorf("renderer: surface %v does not match layout %v", dst.Bounds(), r.layout.Bounds())
	}

	ft, warn := Sanitize(ft)
	if warn != nil && r.OnWarning != nil {
		r.OnWarning(warn)
	}

	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	r.drawEye(dst, r.left, r.layout.LeftSlot(), ft)
	r.drawEye(dst, r.right, r.layout.RightSlot(), ft)

	if r.tag != nil {
		r.tag.draw(dst)
	}
	return nil
}

func (r *Renderer) drawEye(dst, view *image.RGBA, slot image.Rectangle, ft FrameTransform) {
	m := Compose(float64(slot.Min.X), float64(slot.Min.Y), r.layout.ViewWidth, r.layout.ViewHeight, ft)
	clip := dst.SubImage(slot).(*image.RGBA)
	xdraw.BiLinear.Transform(clip, m.Aff3(), view, view.Bounds(), xdraw.Over, nil)
}
