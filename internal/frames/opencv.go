//go:build gocv

package frames

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// OpenCV extracts frames with gocv's VideoCapture. It needs no ffmpeg binary
// but requires OpenCV at build time.
type OpenCV struct{}

func (OpenCV) Name() string { return "opencv" }

func (OpenCV) ExtractVideo(ctx context.Context, video, dir, prefix string) error {
	vc, err := gocv.VideoCaptureFile(video)
	if err != nil {
		return fmt.Errorf("opening %s: %w", video, err)
	}
	defer vc.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	n := 0
	for vc.Read(&frame) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if frame.Empty() {
			continue
		}
		n++
		path := fmt.Sprintf(FramePattern(dir, prefix), n)
		if ok := gocv.IMWrite(path, frame); !ok {
			return fmt.Errorf("writing %s", path)
		}
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", video, ErrNoFrames)
	}
	return nil
}

func init() {
	backends["opencv"] = func(string) Backend { return OpenCV{} }
}
