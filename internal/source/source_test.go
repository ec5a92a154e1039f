package source

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPair(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "starless.png")
	stars := filepath.Join(dir, "stars.png")
	writePNG(t, bg, 40, 30, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	writePNG(t, stars, 40, 30, color.NRGBA{A: 255})

	pair, err := LoadPair(bg, stars, 0)
	if err != nil {
		t.Fatalf("LoadPair failed: %v", err)
	}
	if pair.Width != 40 || pair.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", pair.Width, pair.Height)
	}
	if got := pair.Background.RGBAAt(5, 5); got.R != 10 || got.G != 20 || got.B != 30 {
		t.Errorf("Unexpected background pixel %v", got)
	}
}

func TestLoadPairErrors(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.png")
	small := filepath.Join(dir, "small.png")
	junk := filepath.Join(dir, "junk.png")
	writePNG(t, bg, 40, 30, color.White)
	writePNG(t, small, 20, 30, color.White)
	os.WriteFile(junk, []byte("not an image"), 0644)

	tests := []struct {
		name     string
		bg, star string
	}{
		{"missing background", filepath.Join(dir, "nope.png"), bg},
		{"empty path", "", bg},
		{"dimension mismatch", bg, small},
		{"undecodable", bg, junk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := LoadPair(tt.bg, tt.star, 0)
			if pair != nil {
				t.Error("Expected no pair on error")
			}
			if !errors.Is(err, ErrImageLoad) {
				t.Fatalf("Expected ErrImageLoad, got %v", err)
			}
			var le *ImageLoadError
			if !errors.As(err, &le) {
				t.Fatalf("Expected *ImageLoadError, got %T", err)
			}
			t.Logf("%s: %v", tt.name, err)
		})
	}
}

func TestNewPairNormalisesOrigin(t *testing.T) {
	bg := image.NewRGBA(image.Rect(10, 10, 20, 15))
	stars := image.NewGray(image.Rect(0, 0, 10, 5))
	bg.Set(10, 10, color.RGBA{R: 255, A: 255})

	pair, err := NewPair(bg, stars)
	if err != nil {
		t.Fatalf("NewPair failed: %v", err)
	}
	if pair.Background.Rect.Min != (image.Point{}) {
		t.Errorf("Expected zero origin, got %v", pair.Background.Rect)
	}
	if got := pair.Background.RGBAAt(0, 0); got.R != 255 {
		t.Errorf("Origin pixel not carried over: %v", got)
	}
}

func TestDownscale(t *testing.T) {
	bg := image.NewRGBA(image.Rect(0, 0, 100, 50))
	stars := image.NewRGBA(image.Rect(0, 0, 100, 50))
	pair, err := NewPair(bg, stars)
	if err != nil {
		t.Fatal(err)
	}

	if same := pair.Downscale(100, 50); same != pair {
		t.Error("Expected identical pair for the same size")
	}

	small := pair.Downscale(50, 25)
	if small.Width != 50 || small.Height != 25 {
		t.Errorf("Expected 50x25, got %dx%d", small.Width, small.Height)
	}
	if small.Background.Bounds().Dx() != 50 || small.Stars.Bounds().Dy() != 25 {
		t.Errorf("Layer sizes not updated: %v %v", small.Background.Bounds(), small.Stars.Bounds())
	}
}
