//go:build gocv

package sharpness

import (
	"image"

	"gocv.io/x/gocv"
)

func init() {
	RegisterBackend("opencv", func() Scorer { return OpenCVScorer{} })
}

// OpenCVScorer computes the centre Laplacian variance with OpenCV.
// Build with -tags gocv and a system OpenCV to enable it.
type OpenCVScorer struct{}

// Score implements Scorer.
func (OpenCVScorer) Score(img image.Image) float64 {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return 0
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	r := CentreRegion(gray.Cols(), gray.Rows())
	if r.Empty() {
		return 0
	}
	// Region shares pixels with gray; filtering a clone keeps the border
	// reflection inside the crop.
	view := gray.Region(r)
	centre := view.Clone()
	view.Close()
	defer centre.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(centre, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}
