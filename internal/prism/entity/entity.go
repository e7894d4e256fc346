// Package entity defines entity identifiers and the per-entity record.
//
// An entity is the unit of attribution: a function activation, a thread or an
// instruction block. IDs are 32-bit, start at 0 for every session and only
// ever grow; the allocator refuses to wrap:
//
//	0, 1, 2, ... 0xFFFFFFFE, <ResourceExhaustion>
//
// 0xFFFFFFFF is Undef and never names a live entity.
package entity

import (
	"strconv"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// ID identifies one entity for the lifetime of a session.
type ID uint32

// Undef marks "no entity": an unwritten byte, an empty call stack.
const Undef ID = 1<<32 - 1

// Valid reports whether id names an entity.
func (id ID) Valid() bool {
	return id != Undef
}

// String returns the decimal id, or "<undef>".
func (id ID) String() string {
	if id == Undef {
		return "<undef>"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Allocator hands out strictly increasing IDs.
//
// Not safe for concurrent use; the tracker owns one per session.
type Allocator struct {
	next ID
}

// NewAllocator returns an allocator whose first ID is 0.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// NewAllocatorAt returns an allocator whose first ID is start. Used to drive
// the overflow path without allocating four billion entities.
func NewAllocatorAt(start ID) *Allocator {
	return &Allocator{next: start}
}

// Next returns the next ID.
//
// Returns a ResourceExhaustion error once every ID below Undef has been
// issued; the counter is left unchanged so later calls fail the same way.
func (a *Allocator) Next() (ID, error) {
	if a.next == Undef {
		return Undef, fault.Exhausted("entity.Allocator.Next", fault.ID("entity", uint64(a.next)),
			"entity id counter overflow after %d ids", uint64(Undef))
	}
	id := a.next
	a.next++
	return id, nil
}

// Issued returns how many IDs have been handed out since 0.
func (a *Allocator) Issued() uint64 {
	return uint64(a.next)
}
