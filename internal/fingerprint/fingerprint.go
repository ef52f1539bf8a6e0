package fingerprint

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"
	"strconv"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
)

// Algorithm names a fingerprinting method. Fingerprints produced by different
// algorithms are never comparable.
type Algorithm string

const (
	// PHash is the DCT perceptual hash computed by goimagehash. It follows the
	// reference imagehash.phash layout and is the default.
	PHash Algorithm = "phash"
	// DCT is the in-house 32x32 DCT hash (DC term excluded from the median).
	DCT Algorithm = "dct"
	// DHash is a 9x8 horizontal difference hash.
	DHash Algorithm = "dhash"
)

// Bits is the length of every fingerprint in bits.
const Bits = 64

// ErrIncomparable is returned when two fingerprints come from different algorithms.
var ErrIncomparable = errors.New("fingerprints from different algorithms are not comparable")

// Algorithms lists the supported algorithms in display order.
func Algorithms() []Algorithm {
	return []Algorithm{PHash, DCT, DHash}
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown fingerprint algorithm %q (supported: phash, dct, dhash)", s)
}

// Fingerprint is a 64-bit perceptual hash tagged with its algorithm.
type Fingerprint struct {
	Algorithm Algorithm
	Hash      uint64
}

// String renders the hash as 16 hex characters.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", f.Hash)
}

// MarshalText implements encoding.TextMarshaler as "<algorithm>:<hex>".
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(string(f.Algorithm) + ":" + f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Parse reads the "<algorithm>:<hex>" form produced by MarshalText.
func Parse(s string) (Fingerprint, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != ':' {
			continue
		}
		alg, err := ParseAlgorithm(s[:i])
		if err != nil {
			return Fingerprint{}, err
		}
		hash, err := strconv.ParseUint(s[i+1:], 16, 64)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("invalid fingerprint hash %q: %w", s[i+1:], err)
		}
		return Fingerprint{Algorithm: alg, Hash: hash}, nil
	}
	return Fingerprint{}, fmt.Errorf("invalid fingerprint %q", s)
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// Distance returns the Hamming distance between two fingerprints of the same algorithm.
func Distance(a, b Fingerprint) (int, error) {
	if a.Algorithm != b.Algorithm {
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, a.Algorithm, b.Algorithm)
	}
	return HammingDistance(a.Hash, b.Hash), nil
}

// Similar returns true if two hashes are within the given threshold.
func Similar(hash1, hash2 uint64, threshold int) bool {
	return HammingDistance(hash1, hash2) <= threshold
}

// Hasher computes fingerprints with one fixed algorithm.
type Hasher interface {
	Algorithm() Algorithm
	Fingerprint(img image.Image) (Fingerprint, error)
}

// NewHasher returns the hasher for alg.
func NewHasher(alg Algorithm) (Hasher, error) {
	switch alg {
	case PHash:
		return perceptionHasher{}, nil
	case DCT:
		return funcHasher{alg: DCT, fn: computePHash}, nil
	case DHash:
		return funcHasher{alg: DHash, fn: computeDHash}, nil
	}
	return nil, fmt.Errorf("unknown fingerprint algorithm %q", alg)
}

type perceptionHasher struct{}

func (perceptionHasher) Algorithm() Algorithm { return PHash }

func (perceptionHasher) Fingerprint(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("computing perception hash: %w", err)
	}
	return Fingerprint{Algorithm: PHash, Hash: h.GetHash()}, nil
}

type funcHasher struct {
	alg Algorithm
	fn  func(image.Image) uint64
}

func (h funcHasher) Algorithm() Algorithm { return h.alg }

func (h funcHasher) Fingerprint(img image.Image) (Fingerprint, error) {
	if img.Bounds().Empty() {
		return Fingerprint{}, errors.New("cannot fingerprint an empty image")
	}
	return Fingerprint{Algorithm: h.alg, Hash: h.fn(img)}, nil
}

// HashResult holds every supported fingerprint of one image.
type HashResult struct {
	PHash Fingerprint `json:"phash"`
	DCT   Fingerprint `json:"dct"`
	DHash Fingerprint `json:"dhash"`
}

// ComputeHashes computes all fingerprints for an already decoded image.
func ComputeHashes(img image.Image) (*HashResult, error) {
	result := &HashResult{}
	for _, alg := range Algorithms() {
		h, err := NewHasher(alg)
		if err != nil {
			return nil, err
		}
		fp, err := h.Fingerprint(img)
		if err != nil {
			return nil, err
		}
		switch alg {
		case PHash:
			result.PHash = fp
		case DCT:
			result.DCT = fp
		case DHash:
			result.DHash = fp
		}
	}
	return result, nil
}

// computePHash computes a 64-bit perceptual hash using DCT.
func computePHash(img image.Image) uint64 {
	// 1. Resize to 32x32 for DCT processing
	resized := resizeImage(img, 32, 32)

	// 2. Convert to grayscale
	gray := toGrayscale(resized)

	// 3. Compute 32x32 DCT
	dct := computeDCT(gray)

	// 4. Take the top-left 8x8 block (low frequencies) without the DC
	//    component, topping up from the next row.
	lowFreq := make([]float64, 0, 64)
	for u := range 9 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			if len(lowFreq) < 64 {
				lowFreq = append(lowFreq, dct[u][v])
			}
		}
	}

	// 5. Compute median of the 64 values
	median := computeMedian(lowFreq)

	// 6. Generate hash: 1 if value > median, 0 otherwise
	var hash uint64
	for i := range 64 {
		if lowFreq[i] > median {
			hash |= 1 << (63 - i)
		}
	}

	return hash
}

// computeDHash computes a 64-bit difference hash.
func computeDHash(img image.Image) uint64 {
	// 9 columns give 8 horizontal differences per row.
	resized := resizeImage(img, 9, 8)
	gray := toGrayscale(resized)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}

	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	return gray
}

// computeDCT computes the 2D DCT-II of a square grayscale block.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// Separable transform: rows first, then columns.
	tmp := make([][]float64, size)
	for u := range size {
		tmp[u] = make([]float64, size)
		for y := range size {
			var sum float64
			for x := range size {
				sum += gray[x][y] * cosTable[u][x]
			}
			tmp[u][y] = sum
		}
	}
	for u := range size {
		for v := range size {
			var sum float64
			for y := range size {
				sum += tmp[u][y] * cosTable[v][y]
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
