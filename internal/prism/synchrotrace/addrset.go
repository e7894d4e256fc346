package synchrotrace

import "slices"

// Range is an inclusive address range.
type Range struct {
	First, Last uint64
}

// AddrSet is a set of addresses stored as sorted, disjoint ranges. Ranges
// that overlap or touch are merged on insert, so every address is listed
// once and the set prints as few ranges as possible.
type AddrSet struct {
	ranges []Range
}

// Insert adds [first, last] to the set. first must not exceed last.
func (s *AddrSet) Insert(first, last uint64) {
	// i is the first range that ends at or just before first; j is the
	// first range that starts after last+1. Everything in [i, j) merges.
	i, _ := slices.BinarySearchFunc(s.ranges, first, func(r Range, first uint64) int {
		if r.Last >= first || first-r.Last == 1 {
			return 1
		}
		return -1
	})
	j := i
	for j < len(s.ranges) && (s.ranges[j].First <= last || s.ranges[j].First-last == 1) {
		j++
	}

	merged := Range{First: first, Last: last}
	if i < j {
		merged.First = min(first, s.ranges[i].First)
		merged.Last = max(last, s.ranges[j-1].Last)
	}
	s.ranges = slices.Replace(s.ranges, i, j, merged)
}

// Ranges returns the ranges in ascending order. The slice is only valid
// until the next Insert or Reset.
func (s *AddrSet) Ranges() []Range { return s.ranges }

// Len returns the number of ranges.
func (s *AddrSet) Len() int { return len(s.ranges) }

// Reset empties the set, keeping its storage.
func (s *AddrSet) Reset() { s.ranges = s.ranges[:0] }
