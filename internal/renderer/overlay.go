package renderer

import (
	"fmt"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/skip2/go-qrcode"
)

// MinTagBorder is the narrowest border that can hold a share tag.
const MinTagBorder = 24

const tagMargin = 2

type shareTag struct {
	img  *image.RGBA
	rect image.Rectangle
}

func newShareTag(url string, l Layout) (*shareTag, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("share tag: %w", err)
	}
	q.DisableBorder = true

	side := l.Border - 2*tagMargin
	src := q.Image(side)

	// go-qrcode returns a larger image when side is below the module count
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	if src.Bounds().Dx() == side && src.Bounds().Dy() == side {
		draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		xdraw.NearestNeighbor.Scale(img, img.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}

	w, h := l.Size()
	origin := image.Pt(w-l.Border+tagMargin, h-l.Border+tagMargin)
	return &shareTag{img: img, rect: image.Rectangle{Min: origin, Max: origin.Add(image.Pt(side, side))}}, nil
}

func (t *shareTag) draw(dst *image.RGBA) {
	draw.Draw(dst, t.rect, t.img, image.Point{}, draw.Src)
}
