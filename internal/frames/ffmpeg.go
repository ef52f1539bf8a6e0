package frames

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpeg extracts frames by running the ffmpeg binary.
type FFmpeg struct {
	Binary string
	run    func(ctx context.Context, name string, args ...string) error
}

// NewFFmpeg returns a backend invoking binary ("ffmpeg" when empty).
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary, run: runCommand}
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

// Args returns the ffmpeg arguments for one video.
func (f *FFmpeg) Args(video, dir, prefix string) []string {
	return []string{"-hide_banner", "-loglevel", "error", "-i", video, FramePattern(dir, prefix)}
}

func (f *FFmpeg) ExtractVideo(ctx context.Context, video, dir, prefix string) error {
	return f.run(ctx, f.Binary, f.Args(video, dir, prefix)...)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return nil
}
