//go:build gocv

package histogram

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenCV equalizes with cvtColor and equalizeHist.
var OpenCV Equalizer = EqualizerFunc(equalizeOpenCV)

func init() {
	equalizers["opencv"] = OpenCV
}

func equalizeOpenCV(img image.Image) (image.Image, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("converting image: %w", err)
	}
	defer src.Close()

	yuv := gocv.NewMat()
	defer yuv.Close()
	gocv.CvtColor(src, &yuv, gocv.ColorBGRToYUV)

	channels := gocv.Split(yuv)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	y := gocv.NewMat()
	defer y.Close()
	gocv.EqualizeHist(channels[0], &y)
	channels[0].Close()
	channels[0] = y.Clone()

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(merged, &bgr, gocv.ColorYUVToBGR)

	return bgr.ToImage()
}
