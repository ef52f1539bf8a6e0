// Package sequencer hands out bucket directories and canonical file names.
//
// Accepted images fill Set_001, Set_002, ... up to a fixed capacity each and
// are numbered with one run-wide counter. Duplicates share a separate counter
// and a single sink directory. Names are built before anything touches the
// disk; a placement is committed only once the caller has stored the file.
package sequencer

import (
	"errors"
	"fmt"
	"path/filepath"
)

// DefaultCapacity is the number of accepted images per bucket.
const DefaultCapacity = 1000

// DuplicatesDir is the sink directory for rejected images.
const DuplicatesDir = "duplicates"

// ErrStalePlacement is returned when committing a placement that is no
// longer the next one for its kind.
var ErrStalePlacement = errors.New("stale placement")

// Kind tells accepted placements from duplicate ones.
type Kind int

const (
	Accepted Kind = iota
	Rejected
)

func (k Kind) String() string {
	if k == Rejected {
		return "rejected"
	}
	return "accepted"
}

// Placement is a routing decision: where a file goes and what it is called.
type Placement struct {
	Kind     Kind
	Bucket   int // 0 for rejected placements
	Sequence int
	Dir      string
	Name     string
}

// Path joins Dir and Name.
func (p Placement) Path() string {
	return filepath.Join(p.Dir, p.Name)
}

// Counters is a snapshot of how many placements were committed.
type Counters struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Buckets    int `json:"buckets"`
}

// Sequencer tracks the counters of one run. It is not safe for concurrent use.
type Sequencer struct {
	threshold  int
	capacity   int
	bucket     int
	accepted   int
	duplicates int
}

// New creates a sequencer. threshold is the hash threshold embedded in names.
func New(threshold, capacity int) (*Sequencer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("bucket capacity must be at least 1, got %d", capacity)
	}
	return &Sequencer{
		threshold:  threshold,
		capacity:   capacity,
		bucket:     1,
		accepted:   1,
		duplicates: 1,
	}, nil
}

// Capacity returns the per-bucket capacity.
func (s *Sequencer) Capacity() int { return s.capacity }

// PeekAccepted returns the placement the next accepted image would get.
func (s *Sequencer) PeekAccepted() Placement {
	bucket := s.bucket
	if s.accepted > bucket*s.capacity {
		bucket++
	}
	return Placement{
		Kind:     Accepted,
		Bucket:   bucket,
		Sequence: s.accepted,
		Dir:      BucketName(bucket),
		Name:     fmt.Sprintf("threshold_%d_pass_sorted_%05d.png", s.threshold, s.accepted),
	}
}

// PeekRejected returns the placement the next duplicate would get.
func (s *Sequencer) PeekRejected() Placement {
	return Placement{
		Kind:     Rejected,
		Sequence: s.duplicates,
		Dir:      DuplicatesDir,
		Name:     fmt.Sprintf("threshold_%d_failed_duplicate_%05d.png", s.threshold, s.duplicates),
	}
}

// Commit advances the counters past p.
func (s *Sequencer) Commit(p Placement) error {
	switch p.Kind {
	case Accepted:
		if next := s.PeekAccepted(); p != next {
			return fmt.Errorf("%w: accepted %05d, expected %05d", ErrStalePlacement, p.Sequence, next.Sequence)
		}
		s.bucket = p.Bucket
		s.accepted++
	case Rejected:
		if next := s.PeekRejected(); p != next {
			return fmt.Errorf("%w: duplicate %05d, expected %05d", ErrStalePlacement, p.Sequence, next.Sequence)
		}
		s.duplicates++
	default:
		return fmt.Errorf("unknown placement kind %d", p.Kind)
	}
	return nil
}

// Assign returns and commits the next accepted placement.
func (s *Sequencer) Assign() Placement {
	p := s.PeekAccepted()
	s.bucket = p.Bucket
	s.accepted++
	return p
}

// Reject returns and commits the next duplicate placement.
func (s *Sequencer) Reject() Placement {
	p := s.PeekRejected()
	s.duplicates++
	return p
}

// Counters returns committed totals.
func (s *Sequencer) Counters() Counters {
	c := Counters{
		Accepted:   s.accepted - 1,
		Duplicates: s.duplicates - 1,
	}
	if c.Accepted > 0 {
		c.Buckets = s.bucket
	}
	return c
}

// BucketName formats the directory name of bucket k.
func BucketName(k int) string {
	return fmt.Sprintf("Set_%03d", k)
}
