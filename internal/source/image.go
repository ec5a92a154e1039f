package source

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultDPI is used to rasterise PDF input when no DPI is given.
const DefaultDPI = 150

// Load decodes one raster layer. PNG, JPEG, WebP, BMP and TIFF go through the
// registered image decoders; PDF and TIFF variants the Go decoder rejects are
// rasterised with MuPDF.
func Load(path string, dpi int) (image.Image, error) {
	if path == "" {
		return nil, &ImageLoadError{Reason: "path is empty"}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &ImageLoadError{Path: path, Reason: "not found", Err: err}
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return renderFitz(path, dpi)
	}

	img, err := decodeFile(path)
	if err != nil && (ext == ".tif" || ext == ".tiff") {
		if fimg, ferr := renderFitz(path, dpi); ferr == nil {
			return fimg, nil
		}
	}
	if err != nil {
		return nil, &ImageLoadError{Path: path, Reason: "undecodable", Err: err}
	}
	return img, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
