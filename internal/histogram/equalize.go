package histogram

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/photo-curator/internal/imageio"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

// Equalizer adjusts the brightness of one image.
type Equalizer interface {
	Equalize(img image.Image) (image.Image, error)
}

// EqualizerFunc adapts a function to the Equalizer interface.
type EqualizerFunc func(img image.Image) (image.Image, error)

func (f EqualizerFunc) Equalize(img image.Image) (image.Image, error) { return f(img) }

// Native is the pure Go equalizer.
var Native Equalizer = EqualizerFunc(func(img image.Image) (image.Image, error) {
	return Equalize(img), nil
})

var equalizers = map[string]Equalizer{"native": Native}

// Equalizers lists the compiled-in equalizer names.
func Equalizers() []string {
	names := make([]string, 0, len(equalizers))
	for name := range equalizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEqualizer returns the named implementation.
func NewEqualizer(name string) (Equalizer, error) {
	e, ok := equalizers[name]
	if !ok {
		return nil, fmt.Errorf("unknown equalizer %q (available: %v)", name, Equalizers())
	}
	return e, nil
}

// Summary counts the results of EqualizeDir.
type Summary struct {
	Total   int `json:"total"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// EqualizeDir writes an equalized copy of every image in inputDir into
// outputDir under the same name. Formats without an encoder are written as PNG.
func EqualizeDir(
	ctx context.Context, eq Equalizer, inputDir, outputDir string, exts []string,
	logger *slog.Logger, onProgress func(current, total int),
) (*Summary, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	paths, err := storage.ListImages(inputDir, exts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", outputDir, err)
	}

	summary := &Summary{Total: len(paths)}
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		img, _, err := imageio.Load(path)
		if err != nil {
			summary.Skipped++
			logger.Warn("skipping unreadable image", "path", path, "error", err)
		} else if err := equalizeOne(eq, img, outputPath(outputDir, path)); err != nil {
			summary.Failed++
			logger.Warn("failed to write equalized image", "path", path, "error", err)
		} else {
			summary.Written++
		}

		if onProgress != nil {
			onProgress(i+1, len(paths))
		}
	}
	return summary, nil
}

func equalizeOne(eq Equalizer, img image.Image, dst string) error {
	out, err := eq.Equalize(img)
	if err != nil {
		return err
	}
	return imageio.Save(dst, out)
}

func outputPath(outputDir, src string) string {
	name := filepath.Base(src)
	ext := filepath.Ext(name)
	if imageio.FormatForExt(ext) == "" {
		name = strings.TrimSuffix(name, ext) + ".png"
	}
	return filepath.Join(outputDir, name)
}
