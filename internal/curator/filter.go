package curator

import (
	"context"
	"path/filepath"

	"github.com/kozaktomas/photo-curator/internal/sharpness"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

// FilterSummary counts the results of a sharpness-only pass.
type FilterSummary struct {
	Total   int `json:"total"`
	Sharp   int `json:"sharp"`
	Blurry  int `json:"blurry"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Filter places every sharp image of inputDir into outputDir under its
// original name. Blurry and unreadable images are left alone. The Writer
// decides whether sharp images are copied or moved.
func (c *Curator) Filter(ctx context.Context, inputDir, outputDir string) (*FilterSummary, error) {
	paths, err := storage.ListImages(inputDir, c.cfg.Extensions)
	if err != nil {
		return nil, err
	}

	summary := &FilterSummary{Total: len(paths)}
	current := 0
	err = c.forEachAnalysed(ctx, paths, true, false, func(_ int, a analysis) {
		outcome := c.filterOne(ctx, a, outputDir, summary)
		if outcome == "" {
			return
		}
		current++
		if c.onProgress != nil {
			c.onProgress(ProgressInfo{
				Phase:   "filtering",
				Current: current,
				Total:   len(paths),
				Path:    a.path,
				Outcome: outcome,
			})
		}
	})

	c.logger.Info("filter finished",
		"sharp", summary.Sharp,
		"blurry", summary.Blurry,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

func (c *Curator) filterOne(ctx context.Context, a analysis, outputDir string, summary *FilterSummary) Outcome {
	switch {
	case a.err != nil:
		summary.Skipped++
		c.logger.Warn("skipping unreadable image", "path", a.path, "error", a.err)
		return OutcomeSkipped
	case a.verdict == sharpness.Blurry:
		summary.Blurry++
		c.logger.Debug("blurry", "path", a.path, "score", a.score)
		return OutcomeBlurry
	}

	_, err := c.writer.Place(ctx, a.path, outputDir, filepath.Base(a.path))
	if interrupted(ctx, err) {
		return ""
	}
	if err != nil {
		summary.Failed++
		c.logger.Warn("failed to place sharp image", "path", a.path,
			"error", &IOError{Path: a.path, Destination: outputDir, Err: err})
		return OutcomeFailed
	}
	summary.Sharp++
	return OutcomeAccepted
}
