// Package frames turns videos into numbered still images.
package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/photo-curator/internal/imageio"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

// DefaultExtensions are the video extensions picked up by ListVideos.
var DefaultExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

// ErrNoFrames is reported for a video that produced no frames.
var ErrNoFrames = errors.New("no frames in video")

// Backend writes every frame of one video into dir as <prefix>_Frame_NNNN.png.
type Backend interface {
	Name() string
	ExtractVideo(ctx context.Context, video, dir, prefix string) error
}

// Result describes one processed video.
type Result struct {
	Video  string `json:"video"`
	Dir    string `json:"dir"`
	Frames int    `json:"frames"`
	Err    error  `json:"-"`
}

// Progress is reported after each video.
type Progress struct {
	Current int
	Total   int
	Video   string
}

type Extractor struct {
	backend    Backend
	extensions []string
	logger     *slog.Logger
}

// New creates an extractor. Empty extensions select DefaultExtensions.
func New(backend Backend, extensions []string, logger *slog.Logger) *Extractor {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{backend: backend, extensions: extensions, logger: logger}
}

// VideoName is the folder and file prefix of the i-th video (1-based).
func VideoName(i int) string {
	return fmt.Sprintf("Video_%02d", i)
}

// ListVideos returns the videos directly inside dir in name order.
func ListVideos(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading video directory: %w", err)
	}

	var videos []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && imageio.IsImageExt(filepath.Ext(entry.Name()), extensions) {
			videos = append(videos, filepath.Join(dir, entry.Name()))
		}
	}
	storage.SortPaths(videos)
	return videos, nil
}

// Extract processes every video of videoDir into outputDir/Video_NN. A failed
// video is logged and reported in its Result; the others still run.
func (e *Extractor) Extract(ctx context.Context, videoDir, outputDir string, onProgress func(Progress)) ([]Result, error) {
	videos, err := ListVideos(videoDir, e.extensions)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(videos))
	for i, video := range videos {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		name := VideoName(i + 1)
		dir := filepath.Join(outputDir, name)
		res := Result{Video: video, Dir: dir}

		if err := os.MkdirAll(dir, 0755); err != nil {
			res.Err = fmt.Errorf("creating %s: %w", dir, err)
		} else if err := e.backend.ExtractVideo(ctx, video, dir, name); err != nil {
			res.Err = err
		}

		res.Frames = countFrames(dir, name)
		if res.Err == nil && res.Frames == 0 {
			res.Err = fmt.Errorf("%s: %w", video, ErrNoFrames)
		}
		if res.Err != nil {
			e.logger.Warn("frame extraction failed", "video", video, "backend", e.backend.Name(), "error", res.Err)
		} else {
			e.logger.Info("frames extracted", "video", video, "dir", dir, "frames", res.Frames)
		}
		results = append(results, res)

		if onProgress != nil {
			onProgress(Progress{Current: i + 1, Total: len(videos), Video: video})
		}
	}
	return results, nil
}

// FramePattern is the printf-style frame path for a video prefix.
func FramePattern(dir, prefix string) string {
	return filepath.Join(dir, prefix+"_Frame_%04d.png")
}

func countFrames(dir, prefix string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), prefix+"_Frame_") && strings.HasSuffix(entry.Name(), ".png") {
			n++
		}
	}
	return n
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
