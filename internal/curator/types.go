package curator

import (
	"context"

	"github.com/kozaktomas/photo-curator/internal/fingerprint"
	"github.com/kozaktomas/photo-curator/internal/sequencer"
)

// Outcome is where an image ended up.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeBlurry    Outcome = "blurry"
	OutcomeSkipped   Outcome = "skipped" // decode failure
	OutcomeFailed    Outcome = "failed"  // storage failure
)

// Decision describes what happened to one candidate.
type Decision struct {
	Ordinal          int                      `json:"ordinal"`
	Source           string                   `json:"source"`
	Outcome          Outcome                  `json:"outcome"`
	SharpnessChecked bool                     `json:"sharpness_checked"`
	Sharpness        float64                  `json:"sharpness"`
	Fingerprint      *fingerprint.Fingerprint `json:"fingerprint,omitempty"`
	Placement        *sequencer.Placement     `json:"placement,omitempty"`
	Destination      string                   `json:"destination,omitempty"`
	MatchedSource    string                   `json:"matched_source,omitempty"`
	MatchDistance    int                      `json:"match_distance,omitempty"`
	Err              error                    `json:"-"`
}

// Error returns the error text or "".
func (d Decision) Error() string {
	if d.Err == nil {
		return ""
	}
	return d.Err.Error()
}

// Summary counts outcomes for a run.
type Summary struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"` // decoded and analysed
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Blurry     int `json:"blurry"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Buckets    int `json:"buckets"`
}

func (s *Summary) count(o Outcome) {
	switch o {
	case OutcomeAccepted:
		s.Accepted++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeBlurry:
		s.Blurry++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
	if o != OutcomeSkipped {
		s.Processed++
	}
}

// Result is the outcome of a run.
type Result struct {
	Summary   Summary    `json:"summary"`
	Decisions []Decision `json:"decisions"`
}

// ProgressInfo contains progress information for callbacks.
type ProgressInfo struct {
	Phase   string  `json:"phase"` // "curating" or "filtering"
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Path    string  `json:"path"`
	Outcome Outcome `json:"outcome"`
	Summary Summary `json:"summary"`
}

// Recorder receives every decision, e.g. to persist it.
type Recorder interface {
	Record(ctx context.Context, d Decision) error
}
