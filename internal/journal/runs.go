package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kozaktomas/photo-curator/internal/curator"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run is one recorded curation run.
type Run struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	InputDir   string          `json:"input_dir"`
	OutputDir  string          `json:"output_dir"`
	Config     string          `json:"config,omitempty"`
	Summary    curator.Summary `json:"summary"`
	Error      string          `json:"error,omitempty"`
}

// DecisionRecord is one stored routing decision.
type DecisionRecord struct {
	RunID         string          `json:"run_id"`
	Ordinal       int             `json:"ordinal"`
	Source        string          `json:"source"`
	Outcome       curator.Outcome `json:"outcome"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	Sharpness     *float64        `json:"sharpness,omitempty"`
	Bucket        *int            `json:"bucket,omitempty"`
	Sequence      *int            `json:"sequence,omitempty"`
	Destination   string          `json:"destination,omitempty"`
	MatchedSource string          `json:"matched_source,omitempty"`
	Distance      *int            `json:"distance,omitempty"`
	Error         string          `json:"error,omitempty"`
}

var runColumns = []string{
	"id", "status", "started_at", "finished_at", "input_dir", "output_dir", "config",
	"total", "processed", "accepted", "duplicates", "blurry", "skipped", "failed", "buckets", "error",
}

// StartRun records a new run in the running state and returns its ID.
func (j *Journal) StartRun(ctx context.Context, inputDir, outputDir, configYAML string) (string, error) {
	id := uuid.NewString()
	err := j.exec(ctx, j.sb.Insert("runs").
		Columns("id", "status", "started_at", "input_dir", "output_dir", "config").
		Values(id, StatusRunning, j.timestamp(), inputDir, outputDir, configYAML))
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final summary and status of a run.
func (j *Journal) FinishRun(ctx context.Context, id, status string, s curator.Summary, runErr error) error {
	var errText any
	if runErr != nil {
		errText = runErr.Error()
	}
	err := j.exec(ctx, j.sb.Update("runs").
		SetMap(map[string]any{
			"status":      status,
			"finished_at": j.timestamp(),
			"total":       s.Total,
			"processed":   s.Processed,
			"accepted":    s.Accepted,
			"duplicates":  s.Duplicates,
			"blurry":      s.Blurry,
			"skipped":     s.Skipped,
			"failed":      s.Failed,
			"buckets":     s.Buckets,
			"error":       errText,
		}).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

// RecordDecision stores one routing decision of a run.
func (j *Journal) RecordDecision(ctx context.Context, runID string, d curator.Decision) error {
	var fp, sharpness, bucket, sequence, dest, matched, distance, errText any
	if d.Fingerprint != nil {
		text, _ := d.Fingerprint.MarshalText()
		fp = string(text)
	}
	if d.SharpnessChecked {
		sharpness = d.Sharpness
	}
	if d.Placement != nil {
		if d.Placement.Bucket > 0 {
			bucket = d.Placement.Bucket
		}
		sequence = d.Placement.Sequence
	}
	if d.Destination != "" {
		dest = d.Destination
	}
	if d.MatchedSource != "" {
		matched = d.MatchedSource
		distance = d.MatchDistance
	}
	if d.Err != nil {
		errText = d.Err.Error()
	}

	err := j.exec(ctx, j.sb.Insert("decisions").
		Columns("run_id", "ordinal", "source", "outcome", "fingerprint", "sharpness",
			"bucket", "sequence", "destination", "matched_source", "distance", "error").
		Values(runID, d.Ordinal, d.Source, string(d.Outcome), fp, sharpness,
			bucket, sequence, dest, matched, distance, errText))
	if err != nil {
		return fmt.Errorf("recording decision for %s: %w", d.Source, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	b := j.sb.Select(runColumns...).From("runs").OrderBy("started_at DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run or ErrNotFound.
func (j *Journal) GetRun(ctx context.Context, id string) (*Run, error) {
	query, args, err := j.sb.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	r, err := scanRun(j.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Decisions returns the decisions of a run in processing order.
func (j *Journal) Decisions(ctx context.Context, runID string) ([]DecisionRecord, error) {
	query, args, err := j.sb.Select(
		"run_id", "ordinal", "source", "outcome", "fingerprint", "sharpness",
		"bucket", "sequence", "destination", "matched_source", "distance", "error",
	).From("decisions").Where(sq.Eq{"run_id": runID}).OrderBy("ordinal").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			d                          DecisionRecord
			outcome                    string
			fp, dest, matched, errText sql.NullString
			sharpness                  sql.NullFloat64
			bucket, sequence, distance sql.NullInt64
		)
		if err := rows.Scan(&d.RunID, &d.Ordinal, &d.Source, &outcome, &fp, &sharpness,
			&bucket, &sequence, &dest, &matched, &distance, &errText); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Outcome = curator.Outcome(outcome)
		d.Fingerprint = fp.String
		d.Destination = dest.String
		d.MatchedSource = matched.String
		d.Error = errText.String
		if sharpness.Valid {
			d.Sharpness = &sharpness.Float64
		}
		d.Bucket = intPtr(bucket)
		d.Sequence = intPtr(sequence)
		d.Distance = intPtr(distance)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r                 Run
		started           string
		finished, cfg, ee sql.NullString
	)
	err := row.Scan(&r.ID, &r.Status, &started, &finished, &r.InputDir, &r.OutputDir, &cfg,
		&r.Summary.Total, &r.Summary.Processed, &r.Summary.Accepted, &r.Summary.Duplicates,
		&r.Summary.Blurry, &r.Summary.Skipped, &r.Summary.Failed, &r.Summary.Buckets, &ee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = parseTimestamp(started)
	if finished.Valid {
		t := parseTimestamp(finished.String)
		r.FinishedAt = &t
	}
	r.Config = cfg.String
	r.Error = ee.String
	return &r, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
