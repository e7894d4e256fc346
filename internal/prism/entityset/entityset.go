// Package entityset implements a deduplicating ordered set of entity ids.
//
// Aggregating the writers or readers of a graph neighbourhood needs a set that
// never holds the same id twice and iterates in a stable order. Set is a
// sorted small vector: Add is a binary search plus an insert, Union is a
// linear merge. No recursion, no duplicate insertion.
//
// Key operations:
//   - Add, Contains: O(log n) search, O(n) insert
//   - Union: O(n+m) merge into the receiver
//   - IDs: sorted view, do not modify
package entityset

import (
	"slices"
	"strings"

	"github.com/VANDAL/prism/internal/prism/entity"
)

// Set is a sorted, duplicate-free collection of entity ids.
//
// The zero value is an empty set ready to use.
type Set struct {
	ids []entity.ID
}

// Of builds a set from ids in any order, dropping duplicates.
func Of(ids ...entity.ID) Set {
	s := Set{ids: slices.Clone(ids)}
	slices.Sort(s.ids)
	s.ids = slices.Compact(s.ids)
	return s
}

// Add inserts id and reports whether it was new.
func (s *Set) Add(id entity.ID) bool {
	i, found := slices.BinarySearch(s.ids, id)
	if found {
		return false
	}
	s.ids = slices.Insert(s.ids, i, id)
	return true
}

// Contains reports whether id is in the set.
func (s Set) Contains(id entity.ID) bool {
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

// Union merges other into s.
//
// Algorithm: classic two-pointer merge of two sorted slices, skipping equal
// heads once.
func (s *Set) Union(other Set) {
	if len(other.ids) == 0 {
		return
	}
	if len(s.ids) == 0 {
		s.ids = slices.Clone(other.ids)
		return
	}

	merged := make([]entity.ID, 0, len(s.ids)+len(other.ids))
	i, j := 0, 0
	for i < len(s.ids) && j < len(other.ids) {
		a, b := s.ids[i], other.ids[j]
		switch {
		case a < b:
			merged = append(merged, a)
			i++
		case b < a:
			merged = append(merged, b)
			j++
		default:
			merged = append(merged, a)
			i++
			j++
		}
	}
	merged = append(merged, s.ids[i:]...)
	merged = append(merged, other.ids[j:]...)
	s.ids = merged
}

// Len returns the number of ids.
func (s Set) Len() int {
	return len(s.ids)
}

// IDs returns the ids in ascending order. The slice is shared with the set.
func (s Set) IDs() []entity.ID {
	return s.ids
}

// Equal reports whether both sets hold the same ids.
func (s Set) Equal(other Set) bool {
	return slices.Equal(s.ids, other.ids)
}

// String returns "{a, b, c}".
func (s Set) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, id := range s.ids {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(id.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
