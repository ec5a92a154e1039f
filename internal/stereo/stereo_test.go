package stereo

import (
	"image"
	"image/color"
	"testing"

	"github.com/ivlev/stereo2video/internal/config"
	"github.com/ivlev/stereo2video/internal/source"
)

func newPair(t *testing.T, bg, stars *image.RGBA) *source.Pair {
	t.Helper()
	p, err := source.NewPair(bg, stars)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	return p
}

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// gradient stores x in the red channel so sampled columns are recognisable.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x + 1), G: 0, B: 0, A: 255})
		}
	}
	return img
}

func uniformDepth(w, h int, v uint8) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for i := range m.Pix {
		m.Pix[i] = v
	}
	return m
}

func TestDisplacement(t *testing.T) {
	tests := []struct {
		d, hd float64
		want  int
	}{
		{1, 20, 10},
		{0, 20, -10},
		{0.5, 20, 0},
		{0.5, 100, 0},
		{0.75, 20, 5},
		{0.625, 4, 1},  // +0.5 rounds up
		{0.375, 4, 0},  // -0.5 rounds toward +inf
		{1, 0, 0},
	}
	for _, tt := range tests {
		if got := Displacement(tt.d, tt.hd); got != tt.want {
			t.Errorf("Displacement(%v, %v) = %d, want %d", tt.d, tt.hd, got, tt.want)
		}
	}
}

func TestScreen(t *testing.T) {
	tests := []struct{ a, b, want uint8 }{
		{0, 0, 0},
		{0, 200, 200},
		{200, 0, 200},
		{255, 17, 255},
		{128, 128, 192},
	}
	for _, tt := range tests {
		if got := screen(tt.a, tt.b); got != tt.want {
			t.Errorf("screen(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if screen(tt.a, tt.b) < tt.a || screen(tt.a, tt.b) < tt.b {
			t.Errorf("screen(%d, %d) darkened", tt.a, tt.b)
		}
	}
}

func TestSynthesizeDimensions(t *testing.T) {
	w, h := 37, 11
	pair := newPair(t, gradient(w, h), fill(w, h, color.RGBA{A: 255}))
	views, err := Synthesize(pair, uniformDepth(w, h, 128), config.DefaultStereoParams())
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]*image.RGBA{"left": views.Left, "right": views.Right} {
		if v.Bounds().Dx() != w || v.Bounds().Dy() != h {
			t.Errorf("%s view is %v, want %dx%d", name, v.Bounds(), w, h)
		}
	}
}

func TestSynthesizeRejectsMismatchedDepth(t *testing.T) {
	pair := newPair(t, gradient(10, 10), fill(10, 10, color.RGBA{}))
	if _, err := Synthesize(pair, uniformDepth(9, 10, 0), config.DefaultStereoParams()); err == nil {
		t.Fatal("expected error for mismatched depth map")
	}
}

func TestRightViewShiftsAndLeavesBlackEdges(t *testing.T) {
	w, h := 40, 3
	bg := gradient(w, h)
	pair := newPair(t, bg, fill(w, h, color.RGBA{}))
	p := config.DefaultStereoParams() // hd = 20

	views, err := Synthesize(pair, uniformDepth(w, h, 255), p)
	if err != nil {
		t.Fatal(err)
	}

	for x := 0; x < w; x++ {
		got := views.Right.RGBAAt(x, 1)
		if x < 10 {
			if got != (color.RGBA{A: 255}) {
				t.Fatalf("x=%d: want opaque black, got %v", x, got)
			}
			continue
		}
		if want := bg.RGBAAt(x-10, 1); got != want {
			t.Fatalf("x=%d: got %v, want %v", x, got, want)
		}
	}

	// left is the reference eye
	for x := 0; x < w; x++ {
		if views.Left.RGBAAt(x, 1) != bg.RGBAAt(x, 1) {
			t.Fatalf("left view differs from background at x=%d", x)
		}
	}
}

func TestNegativeDisplacementLeavesRightEdge(t *testing.T) {
	w, h := 30, 2
	bg := gradient(w, h)
	pair := newPair(t, bg, fill(w, h, color.RGBA{}))

	views, err := Synthesize(pair, uniformDepth(w, h, 0), config.DefaultStereoParams())
	if err != nil {
		t.Fatal(err)
	}
	// displacement -10: right[x] = bg[x+10]
	if got, want := views.Right.RGBAAt(0, 0), bg.RGBAAt(10, 0); got != want {
		t.Errorf("x=0: got %v, want %v", got, want)
	}
	if got := views.Right.RGBAAt(w-1, 0); got != (color.RGBA{A: 255}) {
		t.Errorf("last column should be black, got %v", got)
	}
}

func TestUniformDepthGivesUniformShift(t *testing.T) {
	w, h := 25, 4
	bg := gradient(w, h)
	pair := newPair(t, bg, fill(w, h, color.RGBA{}))
	p := config.DefaultStereoParams()
	p.HorizontalDisplace = 40

	depthValue := uint8(200)
	shift := Displacement(float64(depthValue)/255, p.HorizontalDisplace)
	t.Logf("depth %d -> shift %d", depthValue, shift)

	views, err := Synthesize(pair, uniformDepth(w, h, depthValue), p)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < h; y++ {
		for x := shift; x < w; x++ {
			if views.Right.RGBAAt(x, y) != bg.RGBAAt(x-shift, y) {
				t.Fatalf("(%d,%d) not shifted by %d", x, y, shift)
			}
		}
	}
}

func TestStarShift(t *testing.T) {
	w, h := 12, 1
	stars := fill(w, h, color.RGBA{})
	stars.SetRGBA(2, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	pair := newPair(t, fill(w, h, color.RGBA{A: 255}), stars)

	p := config.DefaultStereoParams()
	p.HorizontalDisplace = 0
	p.StarShiftAmount = 3

	views, err := Synthesize(pair, uniformDepth(w, h, 128), p)
	if err != nil {
		t.Fatal(err)
	}
	white := color.RGBA{255, 255, 255, 255}
	if views.Left.RGBAAt(2, 0) != white {
		t.Errorf("left star moved: %v", views.Left.RGBAAt(2, 0))
	}
	if views.Right.RGBAAt(5, 0) != white {
		t.Errorf("right star not at x=5: %v", views.Right.RGBAAt(5, 0))
	}
	if views.Right.RGBAAt(2, 0) == white {
		t.Error("right star still at x=2")
	}
}

func TestContrastBoost(t *testing.T) {
	w, h := 4, 1
	bg := fill(w, h, color.RGBA{R: 100, G: 200, B: 0, A: 255})
	pair := newPair(t, bg, fill(w, h, color.RGBA{}))

	p := config.DefaultStereoParams()
	p.HorizontalDisplace = 0
	p.ContrastBoost = 2

	views, err := Synthesize(pair, uniformDepth(w, h, 128), p)
	if err != nil {
		t.Fatal(err)
	}
	want := color.RGBA{R: 200, G: 255, B: 0, A: 255}
	for _, v := range []*image.RGBA{views.Left, views.Right} {
		if got := v.RGBAAt(1, 0); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestSynthesizeDoesNotMutateInputs(t *testing.T) {
	w, h := 16, 4
	bg := gradient(w, h)
	stars := fill(w, h, color.RGBA{R: 50, G: 50, B: 50, A: 255})
	pair := newPair(t, bg, stars)
	before := append([]uint8(nil), pair.Background.Pix...)

	p := config.DefaultStereoParams()
	p.ContrastBoost = 1.5
	if _, err := Synthesize(pair, uniformDepth(w, h, 255), p); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if pair.Background.Pix[i] != before[i] {
			t.Fatal("background mutated")
		}
	}
}
