// Package histogram stretches image brightness by equalizing the luma
// histogram while leaving chroma untouched.
package histogram

import (
	"image"
	"image/color"
	"math"
)

// Histogram counts pixels per 8-bit level.
type Histogram [256]int

// Of returns the histogram of a gray image.
func Of(g *image.Gray) Histogram {
	var h Histogram
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)]
		for _, v := range row {
			h[v]++
		}
	}
	return h
}

// LUT builds the equalization lookup table. The darkest occupied level maps
// to 0 and the cumulative distribution of the remaining levels is scaled to
// 255. A single-level image maps to itself.
func LUT(h Histogram) [256]uint8 {
	var lut [256]uint8

	total := 0
	for _, n := range h {
		total += n
	}

	first := 0
	for first < 255 && h[first] == 0 {
		first++
	}

	if h[first] == total {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	scale := 255.0 / float64(total-h[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += h[i]
		lut[i] = clamp(float64(sum) * scale)
	}
	return lut
}

// EqualizeGray returns a new gray image with an equalized histogram.
func EqualizeGray(g *image.Gray) *image.Gray {
	lut := LUT(Of(g))
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}

// Equalize converts img to YUV (BT.601), equalizes Y and converts back.
// Alpha is preserved.
func Equalize(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	ys := image.NewGray(image.Rect(0, 0, w, h))
	us := make([]float64, w*h)
	vs := make([]float64, w*h)
	alpha := make([]uint8, w*h)

	for y := range h {
		for x := range w {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			yy, u, v := rgbToYUV(c.R, c.G, c.B)
			i := y*w + x
			ys.Pix[i] = clamp(yy)
			us[i], vs[i] = u, v
			alpha[i] = c.A
		}
	}

	eq := EqualizeGray(ys)

	out := image.NewNRGBA(b)
	for y := range h {
		for x := range w {
			i := y*w + x
			r, g, bl := yuvToRGB(float64(eq.Pix[i]), us[i], vs[i])
			out.SetNRGBA(b.Min.X+x, b.Min.Y+y, color.NRGBA{R: r, G: g, B: bl, A: alpha[i]})
		}
	}
	return out
}

// rgbToYUV uses the analog BT.601 YUV form with U and V offset by 128.
// U and V are kept unrounded so the round trip only loses the Y change.
func rgbToYUV(r, g, b uint8) (y, u, v float64) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	y = 0.299*rf + 0.587*gf + 0.114*bf
	u = 0.492*(bf-y) + 128
	v = 0.877*(rf-y) + 128
	return y, u, v
}

func yuvToRGB(y, u, v float64) (r, g, b uint8) {
	u -= 128
	v -= 128
	return clamp(y + 1.140*v), clamp(y - 0.395*u - 0.581*v), clamp(y + 2.032*u)
}

func clamp(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
