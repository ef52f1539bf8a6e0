package dedup

import (
	"github.com/coder/hnsw"

	"github.com/kozaktomas/photo-curator/internal/fingerprint"
)

const (
	hnswMaxNeighbors = 16
	hnswCandidates   = 32
)

// HNSWSet keeps the hashes in a navigable small-world graph over their 64 bits
// as 0/1 vectors. Euclidean distance on such vectors is the square root of
// the Hamming distance, so graph order matches Hamming order. Candidates are
// verified with the exact distance, but the graph search itself is
// approximate and a true match can be missed.
type HNSWSet struct {
	graph   *hnsw.Graph[int]
	entries []Entry
}

// NewHNSWSet creates an empty graph-backed set.
func NewHNSWSet() *HNSWSet {
	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return &HNSWSet{graph: g}
}

func (s *HNSWSet) Add(e Entry) {
	s.graph.Add(hnsw.MakeNode(len(s.entries), bitVector(e.Fingerprint.Hash)))
	s.entries = append(s.entries, e)
}

func (s *HNSWSet) Nearest(hash uint64, threshold int) (Match, bool) {
	if len(s.entries) == 0 {
		return Match{}, false
	}

	k := min(hnswCandidates, len(s.entries))
	best := -1
	bestDist := 0
	for _, n := range s.graph.Search(bitVector(hash), k) {
		d := fingerprint.HammingDistance(hash, s.entries[n.Key].Fingerprint.Hash)
		if d > threshold {
			continue
		}
		if best < 0 || n.Key < best {
			best, bestDist = n.Key, d
		}
	}
	if best < 0 {
		return Match{}, false
	}
	return Match{Entry: s.entries[best], Distance: bestDist}, true
}

func (s *HNSWSet) Len() int { return len(s.entries) }

func bitVector(hash uint64) []float32 {
	v := make([]float32, fingerprint.Bits)
	for i := range v {
		if hash&(uint64(1)<<uint(i)) != 0 {
			v[i] = 1
		}
	}
	return v
}
