package histogram

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/photo-curator/internal/imageio"
)

func grayOf(levels ...uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, len(levels), 1))
	copy(g.Pix, levels)
	return g
}

func TestLUT(t *testing.T) {
	var h Histogram
	h[10], h[20], h[30] = 2, 1, 1

	lut := LUT(h)
	tests := []struct {
		level    int
		expected uint8
	}{
		{0, 0},
		{10, 0},
		{15, 0},
		{20, 128},
		{25, 128},
		{30, 255},
		{255, 255},
	}
	for _, tt := range tests {
		if lut[tt.level] != tt.expected {
			t.Errorf("lut[%d] = %d, want %d", tt.level, lut[tt.level], tt.expected)
		}
	}
}

func TestLUTSingleLevelIsIdentity(t *testing.T) {
	var h Histogram
	h[77] = 100
	lut := LUT(h)
	for i, v := range lut {
		if int(v) != i {
			t.Fatalf("lut[%d] = %d, want identity", i, v)
		}
	}
}

func TestLUTEmptyIsIdentity(t *testing.T) {
	lut := LUT(Histogram{})
	if lut[0] != 0 || lut[128] != 128 || lut[255] != 255 {
		t.Error("empty histogram should map to identity")
	}
}

func TestEqualizeGray(t *testing.T) {
	out := EqualizeGray(grayOf(10, 10, 20, 30))
	expected := []uint8{0, 0, 128, 255}
	for i, v := range expected {
		if out.Pix[i] != v {
			t.Errorf("pixel %d = %d, want %d", i, out.Pix[i], v)
		}
	}
}

func TestEqualizeNeutralColours(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	for x, v := range []uint8{10, 10, 20, 30} {
		img.SetNRGBA(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
	}

	out := Equalize(img)
	for x, v := range []uint8{0, 0, 128, 255} {
		c := out.NRGBAAt(x, 0)
		if c.R != v || c.G != v || c.B != v {
			t.Errorf("pixel %d = %v, want gray %d", x, c, v)
		}
	}
}

func TestEqualizeConstantColourUnchanged(t *testing.T) {
	src := color.NRGBA{R: 200, G: 100, B: 50, A: 255}
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = src.R, src.G, src.B, src.A
	}

	c := Equalize(img).NRGBAAt(1, 1)
	for _, d := range []int{int(c.R) - 200, int(c.G) - 100, int(c.B) - 50} {
		if d < -2 || d > 2 {
			t.Fatalf("constant colour drifted to %v", c)
		}
	}
}

func TestEqualizePreservesAlphaAndBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	img.SetNRGBA(5, 5, color.NRGBA{R: 10, G: 10, B: 10, A: 40})
	img.SetNRGBA(6, 5, color.NRGBA{R: 90, G: 90, B: 90, A: 200})

	out := Equalize(img)
	if out.Bounds() != img.Bounds() {
		t.Fatalf("bounds changed to %v", out.Bounds())
	}
	if out.NRGBAAt(5, 5).A != 40 || out.NRGBAAt(6, 5).A != 200 {
		t.Error("alpha not preserved")
	}
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(100 + x)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestEqualizeDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "OptimizedImages")

	if err := imageio.Save(filepath.Join(in, "a.png"), gradient(20, 4)); err != nil {
		t.Fatal(err)
	}
	if err := imageio.Save(filepath.Join(in, "b.jpg"), gradient(20, 4)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "bad.png"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	var calls int
	summary, err := EqualizeDir(context.Background(), Native, in, out, []string{".png", ".jpg"}, nil, func(current, total int) {
		calls++
		if total != 3 {
			t.Errorf("unexpected total %d", total)
		}
	})
	if err != nil {
		t.Fatalf("EqualizeDir failed: %v", err)
	}

	if summary.Total != 3 || summary.Written != 2 || summary.Skipped != 1 || summary.Failed != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if calls != 3 {
		t.Errorf("expected 3 progress calls, got %d", calls)
	}

	img, _, err := imageio.Load(filepath.Join(out, "a.png"))
	if err != nil {
		t.Fatalf("equalized png missing: %v", err)
	}
	first := color.GrayModel.Convert(img.At(0, 0)).(color.Gray)
	last := color.GrayModel.Convert(img.At(19, 0)).(color.Gray)
	if first.Y != 0 || last.Y != 255 {
		t.Errorf("expected stretched range, got %d..%d", first.Y, last.Y)
	}
	if _, err := os.Stat(filepath.Join(out, "b.jpg")); err != nil {
		t.Errorf("equalized jpg missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "bad.png")); !os.IsNotExist(err) {
		t.Error("unreadable image should not be written")
	}
}

func TestEqualizeDirCancelled(t *testing.T) {
	in := t.TempDir()
	if err := imageio.Save(filepath.Join(in, "a.png"), gradient(4, 4)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EqualizeDir(ctx, Native, in, t.TempDir(), nil, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		src      string
		expected string
	}{
		{"in/a.png", "out/a.png"},
		{"in/b.JPG", "out/b.JPG"},
		{"in/c.gif", "out/c.png"},
		{"in/d.webp", "out/d.png"},
	}
	for _, tt := range tests {
		if got := outputPath("out", tt.src); got != filepath.FromSlash(tt.expected) {
			t.Errorf("outputPath(%q) = %q, want %q", tt.src, got, tt.expected)
		}
	}
}

func TestNewEqualizer(t *testing.T) {
	if _, err := NewEqualizer("native"); err != nil {
		t.Errorf("native should exist: %v", err)
	}
	if _, err := NewEqualizer("nope"); err == nil {
		t.Error("expected error for unknown equalizer")
	}
}
