// Package dedup decides whether a fingerprint repeats one seen earlier in the
// same run. The first image of a near-identical group wins; later ones are
// duplicates of it.
package dedup

import (
	"fmt"

	"github.com/kozaktomas/photo-curator/internal/fingerprint"
)

// DefaultThreshold is the largest Hamming distance still treated as a duplicate.
const DefaultThreshold = 8

// Verdict is the dedup outcome for one fingerprint.
type Verdict int

const (
	Unique Verdict = iota
	Duplicate
)

func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "unique"
}

// Entry is one accepted fingerprint and the image that owns it.
type Entry struct {
	Ordinal     int
	Key         string
	Fingerprint fingerprint.Fingerprint
}

// Match is a seen entry within threshold of a query.
type Match struct {
	Entry
	Distance int
}

// Result carries the verdict and, for duplicates, the entry that matched.
type Result struct {
	Verdict Verdict
	Match   *Match
}

// Engine owns the seen set of one run. It is not safe for concurrent use.
type Engine struct {
	threshold int
	seen      SeenSet
	algorithm fingerprint.Algorithm
	next      int
}

// New creates an engine with an empty seen set of the given index kind.
func New(threshold int, index Index) (*Engine, error) {
	if threshold < 0 || threshold > fingerprint.Bits {
		return nil, fmt.Errorf("hash threshold must be between 0 and %d, got %d", fingerprint.Bits, threshold)
	}
	set, err := NewSeenSet(index, threshold)
	if err != nil {
		return nil, err
	}
	return &Engine{threshold: threshold, seen: set}, nil
}

// Threshold returns the configured distance threshold.
func (e *Engine) Threshold() int { return e.threshold }

// Len returns how many fingerprints have been accepted.
func (e *Engine) Len() int { return e.seen.Len() }

// Evaluate classifies fp against the accepted fingerprints without changing them.
func (e *Engine) Evaluate(fp fingerprint.Fingerprint) (Result, error) {
	if err := e.checkAlgorithm(fp); err != nil {
		return Result{}, err
	}
	m, ok := e.seen.Nearest(fp.Hash, e.threshold)
	if !ok {
		return Result{Verdict: Unique}, nil
	}
	return Result{Verdict: Duplicate, Match: &m}, nil
}

// Accept records fp as seen. Call it only after Evaluate returned Unique and
// the image has been placed.
func (e *Engine) Accept(key string, fp fingerprint.Fingerprint) error {
	if err := e.checkAlgorithm(fp); err != nil {
		return err
	}
	if e.algorithm == "" {
		e.algorithm = fp.Algorithm
	}
	e.seen.Add(Entry{Ordinal: e.next, Key: key, Fingerprint: fp})
	e.next++
	return nil
}

// Observe evaluates fp and accepts it when unique.
func (e *Engine) Observe(key string, fp fingerprint.Fingerprint) (Result, error) {
	res, err := e.Evaluate(fp)
	if err != nil {
		return Result{}, err
	}
	if res.Verdict == Unique {
		if err := e.Accept(key, fp); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (e *Engine) checkAlgorithm(fp fingerprint.Fingerprint) error {
	if e.algorithm != "" && fp.Algorithm != e.algorithm {
		return fmt.Errorf("%w: run uses %s, got %s", fingerprint.ErrIncomparable, e.algorithm, fp.Algorithm)
	}
	return nil
}
