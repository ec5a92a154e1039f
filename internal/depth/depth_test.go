package depth

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestLuminanceWeights(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    float64
	}{
		{0, 0, 0, 0},
		{255, 0, 0, 51},
		{0, 255, 0, 127.5},
		{0, 0, 255, 204},
		{10, 20, 30, 36},
	}
	for _, tt := range tests {
		if got := Luminance(tt.r, tt.g, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Luminance(%d,%d,%d) = %v, want %v", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestEnhance(t *testing.T) {
	if Enhance(0) != 0 {
		t.Error("Enhance(0) should be 0")
	}
	if Enhance(255) != 255 {
		t.Errorf("Enhance(255) = %d, want 255", Enhance(255))
	}
	if Enhance(382.5) != 255 {
		t.Errorf("Luminance above 255 must clamp, got %d", Enhance(382.5))
	}
	want := uint8(math.Round(math.Pow(128.0/255, 0.8) * 255))
	if got := Enhance(128); got != want {
		t.Errorf("Enhance(128) = %d, want %d", got, want)
	}
}

func TestBuildDimensionsAndPurity(t *testing.T) {
	bg := solid(37, 19, color.RGBA{R: 40, G: 80, B: 120, A: 255})
	before := append([]byte(nil), bg.Pix...)

	for _, blur := range []float64{0, 2.5} {
		m := Build(bg, blur)
		if m.Bounds().Dx() != 37 || m.Bounds().Dy() != 19 {
			t.Errorf("blur=%v: depth size %v, want 37x19", blur, m.Bounds())
		}
	}
	if !bytes.Equal(before, bg.Pix) {
		t.Error("Build mutated its input")
	}
}

func TestBuildMatchesFormula(t *testing.T) {
	bg := image.NewRGBA(image.Rect(0, 0, 3, 1))
	bg.SetRGBA(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	bg.SetRGBA(1, 0, color.RGBA{R: 0, G: 0, B: 100, A: 255})
	bg.SetRGBA(2, 0, color.RGBA{R: 100, G: 0, B: 0, A: 255})

	m := Build(bg, 0)
	for x := 0; x < 3; x++ {
		c := bg.RGBAAt(x, 0)
		want := Enhance(Luminance(c.R, c.G, c.B))
		if got := m.GrayAt(x, 0).Y; got != want {
			t.Errorf("x=%d: depth %d, want %d", x, got, want)
		}
	}
	if m.GrayAt(1, 0).Y <= m.GrayAt(2, 0).Y {
		t.Error("Blue should read nearer than the same amount of red")
	}
}

func TestUniformBackgroundGivesUniformDepth(t *testing.T) {
	// 0.2*85 + 0.5*85 + 0.8*85 = 127.5, i.e. mid-gray luminance
	bg := solid(64, 48, color.RGBA{R: 85, G: 85, B: 85, A: 255})

	for _, blur := range []float64{0, 1, 4, 10} {
		m := Build(bg, blur)
		first := m.Pix[0]
		for i, v := range m.Pix {
			if v != first {
				t.Fatalf("blur=%v: depth not uniform at %d (%d vs %d)", blur, i, v, first)
			}
		}
		t.Logf("blur=%v: uniform depth %d (%.3f normalised)", blur, first, float64(first)/255)
	}
}

func TestBlurSmoothsStep(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 40, 1))
	for x := 20; x < 40; x++ {
		m.Pix[x] = 255
	}
	Blur(m, 3)

	if m.Pix[0] != 0 || m.Pix[39] != 255 {
		t.Errorf("Far edges should be preserved, got %d and %d", m.Pix[0], m.Pix[39])
	}
	if m.Pix[19] == 0 || m.Pix[20] == 255 {
		t.Errorf("Step not smoothed: %v", m.Pix[15:25])
	}
	for x := 1; x < 40; x++ {
		if m.Pix[x] < m.Pix[x-1] {
			t.Fatalf("Blur of a step must stay monotonic, broke at %d: %v", x, m.Pix)
		}
	}
}

func TestBoxesForGauss(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 3, 8} {
		sizes := boxesForGauss(sigma, 3)
		var variance float64
		for _, s := range sizes {
			if s%2 == 0 {
				t.Errorf("sigma=%v: even box size %d", sigma, s)
			}
			variance += float64(s*s-1) / 12
		}
		if math.Abs(math.Sqrt(variance)-sigma) > 0.6 {
			t.Errorf("sigma=%v: boxes %v approximate sigma %.2f", sigma, sizes, math.Sqrt(variance))
		}
	}
}
