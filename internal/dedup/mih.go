package dedup

import "github.com/kozaktomas/photo-curator/internal/fingerprint"

// MIHSet splits each hash into threshold+1 disjoint bit blocks. Two hashes
// within threshold bits of each other agree exactly on at least one block,
// so only entries sharing a block value need a full comparison.
type MIHSet struct {
	threshold int
	shifts    []uint
	masks     []uint64
	tables    []map[uint64][]int
	linear    LinearSet
}

// NewMIHSet creates an empty set tuned for threshold. Thresholds that leave
// no room for a block per bit degrade to a linear scan.
func NewMIHSet(threshold int) *MIHSet {
	s := &MIHSet{threshold: threshold}
	blocks := threshold + 1
	if blocks < 1 || blocks > fingerprint.Bits {
		return s
	}

	width := fingerprint.Bits / blocks
	extra := fingerprint.Bits % blocks
	var shift uint
	for i := range blocks {
		w := width
		if i < extra {
			w++
		}
		s.shifts = append(s.shifts, shift)
		s.masks = append(s.masks, (uint64(1)<<uint(w))-1)
		s.tables = append(s.tables, make(map[uint64][]int))
		shift += uint(w)
	}
	return s
}

func (s *MIHSet) Add(e Entry) {
	idx := len(s.linear.entries)
	s.linear.Add(e)
	for b := range s.tables {
		key := s.block(e.Fingerprint.Hash, b)
		s.tables[b][key] = append(s.tables[b][key], idx)
	}
}

// Nearest honours the threshold the set was built for. A larger query
// threshold falls back to the linear scan since blocks no longer cover it.
func (s *MIHSet) Nearest(hash uint64, threshold int) (Match, bool) {
	if len(s.tables) == 0 || threshold > s.threshold {
		return s.linear.Nearest(hash, threshold)
	}

	best := -1
	bestDist := 0
	for b := range s.tables {
		for _, idx := range s.tables[b][s.block(hash, b)] {
			if best >= 0 && idx >= best {
				break
			}
			d := fingerprint.HammingDistance(hash, s.linear.entries[idx].Fingerprint.Hash)
			if d <= threshold {
				best, bestDist = idx, d
				break
			}
		}
	}
	if best < 0 {
		return Match{}, false
	}
	return Match{Entry: s.linear.entries[best], Distance: bestDist}, true
}

func (s *MIHSet) Len() int { return s.linear.Len() }

func (s *MIHSet) block(hash uint64, b int) uint64 {
	return (hash >> s.shifts[b]) & s.masks[b]
}
