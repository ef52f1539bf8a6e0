package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-curator/internal/frames"
)

var extractCmd = &cobra.Command{
	Use:   "extract <video-dir>",
	Short: "Extract every frame of every video into per-video folders",
	Long: `Extract all frames from the videos in video-dir. Videos are numbered in
file name order; the frames of the n-th video land in
<output>/Video_NN/Video_NN_Frame_0001.png and so on.

Examples:
  photo-curator extract rawvideos --output rawpictures
  photo-curator extract --backend opencv rawvideos   # needs -tags gocv`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output directory (defaults to rawpictures next to the video directory)")
	extractCmd.Flags().String("backend", "", "Frame backend: ffmpeg, or opencv when built with -tags gocv")
	extractCmd.Flags().String("ffmpeg", "", "Path of the ffmpeg binary")
}

func runExtract(cmd *cobra.Command, args []string) error {
	videoDir := args[0]

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if backend := mustGetString(cmd, "backend"); backend != "" {
		cfg.Frames.Backend = backend
	}
	if bin := mustGetString(cmd, "ffmpeg"); bin != "" {
		cfg.Frames.FFmpeg = bin
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend, err := frames.NewBackend(cfg.Frames.Backend, cfg.Frames.FFmpeg)
	if err != nil {
		return err
	}

	outputDir := mustGetString(cmd, "output")
	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(filepath.Clean(videoDir)), "rawpictures")
	}

	ctx, stop := signalContext()
	defer stop()

	var bar *progressbar.ProgressBar
	extractor := frames.New(backend, cfg.Frames.Extensions, logger)
	results, err := extractor.Extract(ctx, videoDir, outputDir, func(p frames.Progress) {
		if bar == nil {
			bar = newProgressBar(p.Total, "Extracting", "videos")
		}
		bar.Add(1)
	})
	if err != nil {
		return err
	}

	total := 0
	for _, r := range results {
		total += r.Frames
	}
	failed := frames.Failed(results)

	fmt.Printf("Videos:           %d\n", len(results))
	fmt.Printf("Frames written:   %d\n", total)
	for _, r := range failed {
		fmt.Printf("Failed:           %s: %v\n", filepath.Base(r.Video), r.Err)
	}
	fmt.Printf("Output:           %s\n", outputDir)

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d videos failed", len(failed), len(results))
	}
	return nil
}
