package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/photo-curator/internal/config"
	"github.com/kozaktomas/photo-curator/internal/constants"
	"github.com/kozaktomas/photo-curator/internal/curator"
	"github.com/kozaktomas/photo-curator/internal/journal"
	"github.com/kozaktomas/photo-curator/internal/storage"
)

// RunsHandler handles curation run endpoints
type RunsHandler struct {
	config     *config.Config
	jobManager *JobManager
	journal    *journal.Journal // optional
	logger     *slog.Logger
}

// NewRunsHandler creates a new runs handler. j may be nil.
func NewRunsHandler(cfg *config.Config, jm *JobManager, j *journal.Journal, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RunsHandler{
		config:     cfg,
		jobManager: jm,
		journal:    j,
		logger:     logger,
	}
}

// RunOverrides replaces curation settings for a single run.
type RunOverrides struct {
	BlurThreshold   *float64 `json:"blur_threshold,omitempty"`
	HashThreshold   *int     `json:"hash_threshold,omitempty"`
	BucketCapacity  *int     `json:"bucket_capacity,omitempty"`
	SharpnessFilter *bool    `json:"sharpness_filter,omitempty"`
	Algorithm       *string  `json:"algorithm,omitempty"`
	Index           *string  `json:"index,omitempty"`
	BlurryAction    *string  `json:"blurry_action,omitempty"`
	Workers         *int     `json:"workers,omitempty"`
}

func (o RunOverrides) apply(c *config.CurationConfig) {
	if o.BlurThreshold != nil {
		c.BlurThreshold = *o.BlurThreshold
	}
	if o.HashThreshold != nil {
		c.HashThreshold = *o.HashThreshold
	}
	if o.BucketCapacity != nil {
		c.BucketCapacity = *o.BucketCapacity
	}
	if o.SharpnessFilter != nil {
		c.SharpnessFilter = *o.SharpnessFilter
	}
	if o.Algorithm != nil {
		c.Algorithm = *o.Algorithm
	}
	if o.Index != nil {
		c.Index = *o.Index
	}
	if o.BlurryAction != nil {
		c.BlurryAction = *o.BlurryAction
	}
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
}

// StartRequest represents a run start request
type StartRequest struct {
	InputDir  string       `json:"input_dir"`
	OutputDir string       `json:"output_dir"`
	DryRun    bool         `json:"dry_run"`
	Overrides RunOverrides `json:"overrides"`
}

// Start starts a new curation run
func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.InputDir == "" {
		respondError(w, http.StatusBadRequest, "input_dir is required")
		return
	}
	if info, err := os.Stat(req.InputDir); err != nil || !info.IsDir() {
		respondError(w, http.StatusBadRequest, "input_dir is not a directory")
		return
	}
	if req.OutputDir == "" {
		req.OutputDir = req.InputDir
	}
	if root := h.config.Server.Root; root != "" {
		if !insideRoot(root, req.InputDir) || !insideRoot(root, req.OutputDir) {
			h.logger.Warn("rejected run outside root",
				"input_dir", sanitizeForLog(req.InputDir), "output_dir", sanitizeForLog(req.OutputDir))
			respondError(w, http.StatusForbidden, "directories must be inside the server root")
			return
		}
	}

	cfg := *h.config
	req.Overrides.apply(&cfg.Curation)
	if err := cfg.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobManager.CreateJob(uuid.NewString(), req.InputDir, req.OutputDir, req.DryRun)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)

	go h.runJob(ctx, cancel, job, &cfg)

	state := job.State()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id":     state.ID,
		"input_dir":  state.InputDir,
		"output_dir": state.OutputDir,
		"status":     string(JobStatusPending),
	})
}

// insideRoot reports whether dir is root or below it. Symlinks are resolved
// for whichever part of the path exists.
func insideRoot(root, dir string) bool {
	r, err := resolvePath(root)
	if err != nil {
		return false
	}
	d, err := resolvePath(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(r, d)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(abs)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", err
		}
		missing = append([]string{filepath.Base(abs)}, missing...)
		abs = parent
	}
}

// runJob runs the curation in the background
func (h *RunsHandler) runJob(ctx context.Context, cancel context.CancelFunc, job *RunJob, cfg *config.Config) {
	defer cancel()
	defer h.jobManager.Release(job)

	state := job.State()
	logger := h.logger.With("run_id", state.ID)

	job.update(func(s *RunState) { s.Status = JobStatusRunning })
	job.SendEvent(JobEvent{Type: "started", Message: "Curation run started"})

	opts := curator.Options{
		Logger: logger,
		OnProgress: func(info curator.ProgressInfo) {
			job.update(func(s *RunState) {
				s.Current = info.Current
				s.Total = info.Total
				s.Summary = info.Summary
				if info.Total > 0 {
					s.Progress = int(float64(info.Current) / float64(info.Total) * 100)
				}
			})
			job.SendEvent(JobEvent{
				Type: "progress",
				Data: map[string]any{
					"phase":   info.Phase,
					"current": info.Current,
					"total":   info.Total,
					"path":    info.Path,
					"outcome": info.Outcome,
					"summary": info.Summary,
				},
			})
		},
	}

	if state.DryRun {
		opts.Writer = storage.NewDryRunWriter(logger)
	} else {
		mode, err := storage.ParseMode(cfg.Storage.Mode)
		if err != nil {
			h.failJob(job, err.Error())
			return
		}
		opts.Writer = storage.NewFSWriter(mode, cfg.Storage.Overwrite)
	}

	var recorder *journal.RunRecorder
	if h.journal != nil {
		rec, err := h.journal.Begin(ctx, state.InputDir, state.OutputDir, cfg.YAML(), logger)
		if err != nil {
			logger.Warn("journal unavailable for run", "error", err)
		} else {
			recorder = rec
			opts.Recorder = rec
			job.update(func(s *RunState) { s.JournalRunID = rec.RunID() })
		}
	}

	c, err := curator.New(cfg.Curation, opts)
	if err != nil {
		if recorder != nil {
			recorder.Finish(ctx, nil, err)
		}
		h.failJob(job, err.Error())
		return
	}

	res, err := c.Run(ctx, state.InputDir, state.OutputDir)
	if recorder != nil {
		recorder.Finish(ctx, res, err)
	}
	if res != nil {
		job.update(func(s *RunState) { s.Summary = res.Summary })
	}

	if err != nil {
		if ctx.Err() != nil {
			job.finish(JobStatusCancelled, "")
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Run was cancelled", Data: job.State().Summary})
			return
		}
		h.failJob(job, fmt.Sprintf("curation failed: %v", err))
		return
	}

	job.finish(JobStatusCompleted, "")
	job.SendEvent(JobEvent{Type: "completed", Data: res.Summary})
}

func (h *RunsHandler) failJob(job *RunJob, message string) {
	h.logger.Error("run failed", "run_id", job.State().ID, "error", sanitizeForLog(message))
	job.finish(JobStatusFailed, message)
	job.SendEvent(JobEvent{Type: "job_error", Message: message})
}

// List returns the active runs and, with a journal, the recorded history
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	states := make([]RunState, len(jobs))
	for i, job := range jobs {
		states[i] = job.State()
	}

	resp := map[string]any{"runs": states}

	if h.journal != nil {
		limit := constants.DefaultRunListLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				respondError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = min(n, constants.MaxRunListLimit)
		}

		history, err := h.journal.ListRuns(r.Context(), limit)
		if err != nil {
			h.logger.Error("failed to list journal runs", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		resp["history"] = history
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get returns one run, from memory or from the journal
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	if runID == "" {
		respondError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	if job := h.jobManager.GetJob(runID); job != nil {
		respondJSON(w, http.StatusOK, job.State())
		return
	}

	if h.journal != nil {
		run, err := h.journal.GetRun(r.Context(), runID)
		if err == nil {
			respondJSON(w, http.StatusOK, run)
			return
		}
		if !errors.Is(err, journal.ErrNotFound) {
			h.logger.Error("failed to read journal run", "run_id", sanitizeForLog(runID), "error", err)
			respondError(w, http.StatusInternalServerError, "failed to read run")
			return
		}
	}

	respondError(w, http.StatusNotFound, "run not found")
}

// Decisions returns the recorded decisions of a journal run
func (h *RunsHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		respondError(w, http.StatusNotFound, "journal is not configured")
		return
	}

	runID := chi.URLParam(r, "runId")
	if _, err := h.journal.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to read run")
		return
	}

	decisions, err := h.journal.Decisions(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to read decisions", "run_id", sanitizeForLog(runID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read decisions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

// Events streams run events via SSE
func (h *RunsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*RunJob).State()
		},
	)
}

// Cancel cancels a running curation
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	if runID == "" {
		respondError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	job := h.jobManager.GetJob(runID)
	if job == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "run already finished")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
