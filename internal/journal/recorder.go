package journal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kozaktomas/photo-curator/internal/curator"
)

// RunRecorder writes the decisions of one run. It implements curator.Recorder.
type RunRecorder struct {
	journal *Journal
	runID   string
	logger  *slog.Logger
}

// Begin starts a run and returns a recorder for it.
func (j *Journal) Begin(ctx context.Context, inputDir, outputDir, configYAML string, logger *slog.Logger) (*RunRecorder, error) {
	id, err := j.StartRun(ctx, inputDir, outputDir, configYAML)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RunRecorder{journal: j, runID: id, logger: logger}, nil
}

// RunID returns the ID of the recorded run.
func (r *RunRecorder) RunID() string { return r.runID }

func (r *RunRecorder) Record(ctx context.Context, d curator.Decision) error {
	// Decisions are stored even when the run is being cancelled.
	return r.journal.RecordDecision(context.WithoutCancel(ctx), r.runID, d)
}

// Finish stores the final summary. The status is derived from runErr.
// Failures are logged and not returned; the journal never fails a run.
func (r *RunRecorder) Finish(ctx context.Context, res *curator.Result, runErr error) {
	status := StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = StatusCancelled
	case runErr != nil:
		status = StatusFailed
	}

	var summary curator.Summary
	if res != nil {
		summary = res.Summary
	}
	if err := r.journal.FinishRun(context.WithoutCancel(ctx), r.runID, status, summary, runErr); err != nil {
		r.logger.Warn("failed to finish journal run", "run_id", r.runID, "error", err)
	}
}
