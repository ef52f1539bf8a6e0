package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/photo-curator/internal/constants"
	"github.com/kozaktomas/photo-curator/internal/curator"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrInputBusy is returned when a run is already active for an input directory.
var ErrInputBusy = errors.New("a run is already active for this input directory")

// RunState is the JSON view of a curation job.
type RunState struct {
	ID           string          `json:"id"`
	InputDir     string          `json:"input_dir"`
	OutputDir    string          `json:"output_dir"`
	DryRun       bool            `json:"dry_run"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	Total        int             `json:"total"`
	Current      int             `json:"current"`
	Summary      curator.Summary `json:"summary"`
	JournalRunID string          `json:"journal_run_id,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// RunJob represents an async curation run.
type RunJob struct {
	EventBroadcaster
	state RunState
	key   string
}

// State returns a copy of the job state.
func (j *RunJob) State() RunState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// GetStatus returns the current job status (implements SSEJob).
func (j *RunJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state.Status
}

// update applies fn to the state under the job lock.
func (j *RunJob) update(fn func(s *RunState)) {
	j.mu.Lock()
	fn(&j.state)
	j.mu.Unlock()
}

// finish moves the job into a terminal status.
func (j *RunJob) finish(status JobStatus, message string) {
	now := time.Now()
	j.update(func(s *RunState) {
		s.Status = status
		s.Error = message
		s.CompletedAt = &now
		if status == JobStatusCompleted {
			s.Progress = 100
		}
	})
}

// Cancel cancels the run.
func (j *RunJob) Cancel() {
	j.EventBroadcaster.Cancel()
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelling event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelling", Message: "Run cancellation requested"})
}

// setCancel stores the function used by Cancel.
func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async runs. At most one run is active per input directory.
type JobManager struct {
	jobs   map[string]*RunJob
	active map[string]string // input dir -> job ID
	mu     sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*RunJob),
		active: make(map[string]string),
	}
}

// inputKey normalizes an input directory for the busy check.
func inputKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// CreateJob registers a pending run, or returns ErrInputBusy.
func (m *JobManager) CreateJob(id, inputDir, outputDir string, dryRun bool) (*RunJob, error) {
	key := inputKey(inputDir)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[key]; busy {
		return nil, ErrInputBusy
	}

	job := &RunJob{
		key: key,
		state: RunState{
			ID:        id,
			InputDir:  inputDir,
			OutputDir: outputDir,
			DryRun:    dryRun,
			Status:    JobStatusPending,
			StartedAt: time.Now(),
		},
	}
	m.jobs[id] = job
	m.active[key] = id
	return job, nil
}

// Release frees the input directory of a finished job.
func (m *JobManager) Release(job *RunJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[job.key] == job.state.ID {
		delete(m.active, job.key)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *RunJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok && m.active[job.key] == id {
		delete(m.active, job.key)
	}
	delete(m.jobs, id)
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*RunJob {
	m.mu.RLock()
	jobs := make([]*RunJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].State().StartedAt.After(jobs[b].State().StartedAt)
	})
	return jobs
}
