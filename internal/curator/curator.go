// Package curator runs the curation pipeline over a directory of images:
// blur filtering, first-seen-wins deduplication and bucketed renaming.
package curator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kozaktomas/photo-curator/internal/config"
	"github.com/kozaktomas/photo-curator/internal/dedup"
	"github.com/kozaktomas/photo-curator/internal/fingerprint"
	"github.com/kozaktomas/photo-curator/internal/sequencer"
	"github.com/kozaktomas/photo-curator/internal/sharpness"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

// Options carries the collaborators of a Curator. All fields are optional.
type Options struct {
	Writer     storage.Writer     // defaults to moving files on disk
	Logger     *slog.Logger       // defaults to discarding
	Recorder   Recorder           // receives every decision
	OnProgress func(ProgressInfo) // called after each image
}

type Curator struct {
	cfg        config.CurationConfig
	index      dedup.Index
	classifier *sharpness.Classifier
	hasher     fingerprint.Hasher
	writer     storage.Writer
	logger     *slog.Logger
	recorder   Recorder
	onProgress func(ProgressInfo)
}

// New creates a curator. The configuration is expected to be validated; New
// still rejects settings it cannot build components from.
func New(cfg config.CurationConfig, opts Options) (*Curator, error) {
	alg, err := fingerprint.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	hasher, err := fingerprint.NewHasher(alg)
	if err != nil {
		return nil, err
	}
	index, err := dedup.ParseIndex(cfg.Index)
	if err != nil {
		return nil, err
	}
	backend := cfg.SharpnessBackend
	if backend == "" {
		backend = "native"
	}
	scorer, err := sharpness.NewScorer(backend)
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BlurryAction == "" {
		cfg.BlurryAction = config.BlurryDiscard
	}

	c := &Curator{
		cfg:        cfg,
		index:      index,
		classifier: sharpness.NewWithScorer(cfg.BlurThreshold, scorer),
		hasher:     hasher,
		writer:     opts.Writer,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		onProgress: opts.OnProgress,
	}
	if c.writer == nil {
		c.writer = storage.NewFSWriter(storage.ModeMove, false)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	if !index.Exact() {
		c.logger.Warn("seen-set index is approximate and may keep near-duplicates a linear scan would reject",
			"index", index)
	}
	return c, nil
}

// Run curates every image directly inside inputDir, writing into outputDir.
func (c *Curator) Run(ctx context.Context, inputDir, outputDir string) (*Result, error) {
	paths, err := storage.ListImages(inputDir, c.cfg.Extensions)
	if err != nil {
		return nil, err
	}
	return c.RunPaths(ctx, paths, outputDir)
}

// run holds the state of one pass. Nothing is shared between passes.
type run struct {
	engine  *dedup.Engine
	seq     *sequencer.Sequencer
	out     string
	result  *Result
	total   int
	current int

	// interrupted is set when a placement was abandoned because ctx ended.
	interrupted bool
}

// RunPaths curates paths in the given order. On cancellation it returns the
// partial result together with the context error.
func (c *Curator) RunPaths(ctx context.Context, paths []string, outputDir string) (*Result, error) {
	engine, err := dedup.New(c.cfg.HashThreshold, c.index)
	if err != nil {
		return nil, err
	}
	seq, err := sequencer.New(c.cfg.HashThreshold, c.cfg.BucketCapacity)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine: engine,
		seq:    seq,
		out:    outputDir,
		result: &Result{Summary: Summary{Total: len(paths)}},
		total:  len(paths),
	}

	c.logger.Info("curation started",
		"images", len(paths),
		"output", outputDir,
		"blur_filter", c.cfg.SharpnessFilter,
		"blur_threshold", c.cfg.BlurThreshold,
		"hash_threshold", c.cfg.HashThreshold,
		"capacity", c.cfg.BucketCapacity,
		"algorithm", c.hasher.Algorithm(),
		"index", c.index,
		"workers", c.cfg.Workers)

	err = c.forEachAnalysed(ctx, paths, c.cfg.SharpnessFilter, true, func(i int, a analysis) {
		d := c.route(ctx, r, i, a)
		if r.interrupted {
			return
		}
		r.result.Decisions = append(r.result.Decisions, d)
		r.result.Summary.count(d.Outcome)
		c.record(ctx, d)
		c.progress(r, "curating", d)
	})
	if err == nil && r.interrupted {
		err = ctx.Err()
	}

	r.result.Summary.Buckets = seq.Counters().Buckets
	s := r.result.Summary
	c.logger.Info("curation finished",
		"processed", s.Processed,
		"accepted", s.Accepted,
		"duplicates", s.Duplicates,
		"blurry", s.Blurry,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"buckets", s.Buckets)

	return r.result, err
}

// route turns one analysed image into a decision and performs its storage action.
func (c *Curator) route(ctx context.Context, r *run, ordinal int, a analysis) Decision {
	d := Decision{
		Ordinal:          ordinal,
		Source:           a.path,
		SharpnessChecked: a.scored,
		Sharpness:        a.score,
	}

	if a.err != nil {
		d.Outcome = OutcomeSkipped
		d.Err = a.err
		c.logger.Warn("skipping unreadable image", "path", a.path, "error", a.err)
		return d
	}

	if a.verdict == sharpness.Blurry {
		return c.routeBlurry(ctx, r, d)
	}

	fp := a.fingerprint
	d.Fingerprint = &fp

	res, err := r.engine.Evaluate(fp)
	if err != nil {
		d.Outcome = OutcomeSkipped
		d.Err = err
		c.logger.Warn("skipping image with incomparable fingerprint", "path", a.path, "error", err)
		return d
	}

	var p sequencer.Placement
	if res.Verdict == dedup.Duplicate {
		p = r.seq.PeekRejected()
		d.MatchedSource = res.Match.Key
		d.MatchDistance = res.Match.Distance
	} else {
		p = r.seq.PeekAccepted()
	}

	dir := filepath.Join(r.out, p.Dir)
	dst, err := c.writer.Place(ctx, a.path, dir, p.Name)
	if interrupted(ctx, err) {
		r.interrupted = true
		return d
	}
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = &IOError{Path: a.path, Destination: filepath.Join(dir, p.Name), Err: err}
		c.logger.Warn("failed to place image", "path", a.path, "error", d.Err)
		return d
	}

	if err := r.seq.Commit(p); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = fmt.Errorf("committing %s: %w", p.Name, err)
		c.logger.Error("sequencer out of step", "path", a.path, "error", err)
		return d
	}
	d.Placement = &p
	d.Destination = dst

	if res.Verdict == dedup.Duplicate {
		d.Outcome = OutcomeDuplicate
		c.logger.Debug("duplicate",
			"path", a.path, "name", p.Name, "matches", res.Match.Key, "distance", res.Match.Distance)
		return d
	}

	if err := r.engine.Accept(a.path, fp); err != nil {
		d.Outcome = OutcomeFailed
		d.Err = err
		c.logger.Error("failed to accept fingerprint", "path", a.path, "error", err)
		return d
	}
	d.Outcome = OutcomeAccepted
	c.logger.Debug("accepted", "path", a.path, "bucket", p.Dir, "name", p.Name, "fingerprint", fp.String())
	return d
}

func (c *Curator) routeBlurry(ctx context.Context, r *run, d Decision) Decision {
	c.logger.Debug("blurry", "path", d.Source, "score", d.Sharpness, "threshold", c.cfg.BlurThreshold)

	if c.cfg.BlurryAction != config.BlurryMove {
		d.Outcome = OutcomeBlurry
		return d
	}

	dir := filepath.Join(r.out, c.cfg.BlurryDir)
	name := filepath.Base(d.Source)
	dst, err := c.writer.Place(ctx, d.Source, dir, name)
	if interrupted(ctx, err) {
		r.interrupted = true
		return d
	}
	if err != nil {
		d.Outcome = OutcomeFailed
		d.Err = &IOError{Path: d.Source, Destination: filepath.Join(dir, name), Err: err}
		c.logger.Warn("failed to move blurry image", "path", d.Source, "error", d.Err)
		return d
	}
	d.Outcome = OutcomeBlurry
	d.Destination = dst
	return d
}

// interrupted reports whether err is the cancellation of ctx rather than a
// storage failure.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (c *Curator) record(ctx context.Context, d Decision) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, d); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("failed to record decision", "path", d.Source, "error", err)
	}
}

func (c *Curator) progress(r *run, phase string, d Decision) {
	r.current++
	if c.onProgress == nil {
		return
	}
	c.onProgress(ProgressInfo{
		Phase:   phase,
		Current: r.current,
		Total:   r.total,
		Path:    d.Source,
		Outcome: d.Outcome,
		Summary: r.result.Summary,
	})
}
