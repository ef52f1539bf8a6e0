// Package sharpness scores how well focused the centre of an image is.
//
// The score is the variance of a 3x3 Laplacian response over the middle band
// of the luminance image (37.5% to 62.5% of each dimension). In-focus edges
// give a high-variance second derivative; a blurred centre does not.
package sharpness

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"
)

// DefaultThreshold is the variance below which an image counts as blurry.
const DefaultThreshold = 20.0

// Centre band bounds as fractions of width and height.
const (
	centreStart = 0.375
	centreEnd   = 0.625
)

// Verdict is the outcome of classifying one image.
type Verdict int

const (
	Sharp Verdict = iota
	Blurry
)

func (v Verdict) String() string {
	if v == Blurry {
		return "blurry"
	}
	return "sharp"
}

// Scorer computes a sharpness score for an image.
type Scorer interface {
	Score(img image.Image) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(img image.Image) float64

// Score calls f(img).
func (f ScorerFunc) Score(img image.Image) float64 { return f(img) }

var (
	backendsMu sync.RWMutex
	backends   = map[string]func() Scorer{
		"native": func() Scorer { return ScorerFunc(LaplacianVariance) },
	}
)

// RegisterBackend makes a scorer available under name.
func RegisterBackend(name string, factory func() Scorer) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewScorer returns the scorer registered under name.
func NewScorer(name string) (Scorer, error) {
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sharpness backend %q (available: %v)", name, Backends())
	}
	return factory(), nil
}

// Classifier turns scores into verdicts at a fixed threshold.
type Classifier struct {
	threshold float64
	scorer    Scorer
}

// New creates a classifier using the native scorer.
func New(threshold float64) *Classifier {
	return &Classifier{threshold: threshold, scorer: ScorerFunc(LaplacianVariance)}
}

// NewWithScorer creates a classifier with a custom scorer.
func NewWithScorer(threshold float64, scorer Scorer) *Classifier {
	return &Classifier{threshold: threshold, scorer: scorer}
}

// Threshold returns the configured blur threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Score returns the centre Laplacian variance of img.
func (c *Classifier) Score(img image.Image) float64 {
	return c.scorer.Score(img)
}

// Classify returns Blurry when the score is below the threshold.
func (c *Classifier) Classify(img image.Image) Verdict {
	_, v := c.Evaluate(img)
	return v
}

// Evaluate returns both the score and the verdict.
func (c *Classifier) Evaluate(img image.Image) (float64, Verdict) {
	score := c.scorer.Score(img)
	if score < c.threshold {
		return score, Blurry
	}
	return score, Sharp
}

// CentreRegion returns the centre band of a w x h image in local coordinates.
// Bounds are truncated the same way integer slicing of the pixel grid is.
func CentreRegion(w, h int) image.Rectangle {
	return image.Rect(
		int(float64(w)*centreStart),
		int(float64(h)*centreStart),
		int(float64(w)*centreEnd),
		int(float64(h)*centreEnd),
	)
}

// LaplacianVariance scores img with the native implementation.
func LaplacianVariance(img image.Image) float64 {
	gray := Luminance(img)
	b := gray.Bounds()
	r := CentreRegion(b.Dx(), b.Dy()).Add(b.Min)
	return Variance(Laplacian(gray, r))
}

// Luminance converts img to 8-bit gray with the BT.601 weights in the
// 14-bit fixed point form used by common vision libraries. Alpha is ignored.
func Luminance(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			lum := (uint32(c.R)*4899 + uint32(c.G)*9617 + uint32(c.B)*1868 + 1<<13) >> 14
			gray.Pix[gray.PixOffset(x, y)] = uint8(lum)
		}
	}
	return gray
}

// Laplacian applies the 4-neighbour kernel [0 1 0; 1 -4 1; 0 1 0] to the
// region r of gray, treating r as a standalone image with reflect-101 borders.
// Responses are returned row-major.
func Laplacian(gray *image.Gray, r image.Rectangle) []float64 {
	r = r.Intersect(gray.Bounds())
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}

	at := func(x, y int) float64 {
		return float64(gray.Pix[gray.PixOffset(r.Min.X+reflect101(x, w), r.Min.Y+reflect101(y, h))])
	}

	out := make([]float64, 0, w*h)
	for y := range h {
		for x := range w {
			out = append(out, at(x-1, y)+at(x+1, y)+at(x, y-1)+at(x, y+1)-4*at(x, y))
		}
	}
	return out
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel.
func reflect101(p, n int) int {
	if n == 1 {
		return 0
	}
	for p < 0 || p >= n {
		if p < 0 {
			p = -p
		} else {
			p = 2*n - 2 - p
		}
	}
	return p
}

// Variance returns the population variance of values, or 0 for none.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}
