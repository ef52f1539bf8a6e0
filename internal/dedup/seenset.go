package dedup

import (
	"fmt"

	"github.com/kozaktomas/photo-curator/internal/fingerprint"
)

// Index selects the seen-set implementation.
type Index string

const (
	// IndexLinear scans every accepted fingerprint.
	IndexLinear Index = "linear"
	// IndexMIH is exact multi-index hashing. Verdicts match IndexLinear.
	IndexMIH Index = "mih"
	// IndexHNSW is an approximate neighbour graph and may miss matches.
	IndexHNSW Index = "hnsw"
)

// Indexes lists the supported index kinds.
func Indexes() []Index {
	return []Index{IndexLinear, IndexMIH, IndexHNSW}
}

// ParseIndex validates an index name.
func ParseIndex(s string) (Index, error) {
	for _, idx := range Indexes() {
		if string(idx) == s {
			return idx, nil
		}
	}
	return "", fmt.Errorf("unknown seen-set index %q (supported: linear, mih, hnsw)", s)
}

// Exact reports whether the index always finds a match when one exists.
func (i Index) Exact() bool { return i != IndexHNSW }

// SeenSet is a grow-only collection of accepted fingerprints.
type SeenSet interface {
	Add(e Entry)
	// Nearest returns the earliest-added entry within threshold of hash.
	Nearest(hash uint64, threshold int) (Match, bool)
	Len() int
}

// NewSeenSet creates an empty set of the given kind. threshold sizes the
// multi-index blocks and is ignored by the other kinds.
func NewSeenSet(index Index, threshold int) (SeenSet, error) {
	switch index {
	case IndexLinear, "":
		return &LinearSet{}, nil
	case IndexMIH:
		return NewMIHSet(threshold), nil
	case IndexHNSW:
		return NewHNSWSet(), nil
	}
	return nil, fmt.Errorf("unknown seen-set index %q", index)
}

// LinearSet compares against every entry in insertion order.
type LinearSet struct {
	entries []Entry
}

func (s *LinearSet) Add(e Entry) {
	s.entries = append(s.entries, e)
}

func (s *LinearSet) Nearest(hash uint64, threshold int) (Match, bool) {
	for _, e := range s.entries {
		if d := fingerprint.HammingDistance(hash, e.Fingerprint.Hash); d <= threshold {
			return Match{Entry: e, Distance: d}, true
		}
	}
	return Match{}, false
}

func (s *LinearSet) Len() int { return len(s.entries) }
