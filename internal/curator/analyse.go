package curator

import (
	"context"
	"sync"

	"github.com/kozaktomas/photo-curator/internal/fingerprint"
	"github.com/kozaktomas/photo-curator/internal/imageio"
	"github.com/kozaktomas/photo-curator/internal/sharpness"
)

// windowPerWorker bounds how many decoded results wait for the ordered merge.
const windowPerWorker = 4

// analysis is the order-independent part of processing one image.
type analysis struct {
	path        string
	scored      bool
	score       float64
	verdict     sharpness.Verdict
	fingerprint fingerprint.Fingerprint
	err         error
}

func (c *Curator) analyse(path string, checkSharpness, computeFingerprint bool) analysis {
	a := analysis{path: path, verdict: sharpness.Sharp}

	img, _, err := imageio.Load(path)
	if err != nil {
		a.err = &DecodeError{Path: path, Err: err}
		return a
	}

	if checkSharpness {
		a.scored = true
		a.score, a.verdict = c.classifier.Evaluate(img)
		if a.verdict == sharpness.Blurry {
			return a
		}
	}

	if computeFingerprint {
		fp, err := c.hasher.Fingerprint(img)
		if err != nil {
			a.err = &DecodeError{Path: path, Err: err}
			return a
		}
		a.fingerprint = fp
	}
	return a
}

// forEachAnalysed analyses paths with up to Workers goroutines and calls fn
// for each result strictly in input order. The context is checked before
// every image; on cancellation the context error is returned.
func (c *Curator) forEachAnalysed(
	ctx context.Context, paths []string, checkSharpness, computeFingerprint bool, fn func(int, analysis),
) error {
	workers := c.cfg.Workers
	if workers <= 1 {
		for i, path := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i, c.analyse(path, checkSharpness, computeFingerprint))
		}
		return nil
	}

	window := workers * windowPerWorker
	for start := 0; start < len(paths); start += window {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+window, len(paths))
		results := c.analyseWindow(ctx, paths[start:end], workers, checkSharpness, computeFingerprint)

		for j, a := range results {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(start+j, a)
		}
	}
	return nil
}

func (c *Curator) analyseWindow(
	ctx context.Context, paths []string, workers int, checkSharpness, computeFingerprint bool,
) []analysis {
	results := make([]analysis, len(paths))
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range paths {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				results[idx] = analysis{path: path, err: ctx.Err()}
				return
			}
			results[idx] = c.analyse(path, checkSharpness, computeFingerprint)
		}(i, paths[i])
	}

	wg.Wait()
	return results
}
