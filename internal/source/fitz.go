package source

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// renderFitz rasterises the first page of a document MuPDF can open.
func renderFitz(path string, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, &ImageLoadError{Path: path, Reason: "undecodable", Err: err}
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, &ImageLoadError{Path: path, Reason: "document has no pages"}
	}
	img, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		return nil, &ImageLoadError{Path: path, Reason: "rasterise first page", Err: err}
	}
	return img, nil
}
