// Package syncshadow keeps the shadow state of synchronization objects.
//
// Every lock, barrier, condition or thread named by a sync event gets a
// SyncVar created on first sight. The SyncVar counts operations per kind,
// remembers which threads touched the object and tracks lock nesting, so the
// report can show contention points and unbalanced unlocks next to the
// communication graph.
//
// Thread lifecycle events (spawn, join) additionally build the thread tree.
//
// Not safe for concurrent use; owned by the tracker.
package syncshadow

import (
	"cmp"
	"math"
	"slices"

	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// SyncVar is the shadow of one synchronization object.
type SyncVar struct {
	ID uint64

	// Counts holds operations per kind.
	Counts [event.NumSyncKinds]uint64

	// LastThread is the thread of the most recent operation.
	LastThread uint32

	// Aux is the last auxiliary object seen, e.g. the mutex of a
	// condition wait.
	Aux uint64

	// Held is the current lock nesting depth.
	Held int

	// Unbalanced counts unlocks observed while not held.
	Unbalanced uint64

	threads []uint32 // sorted, distinct
}

// Threads returns the distinct threads that operated on the object.
func (sv *SyncVar) Threads() []uint32 {
	return sv.threads
}

// Total returns the number of operations on the object.
func (sv *SyncVar) Total() uint64 {
	var n uint64
	for _, c := range sv.Counts {
		n += c
	}
	return n
}

func (sv *SyncVar) observe(tid uint32, ev event.Sync) {
	sv.Counts[ev.Kind]++
	sv.LastThread = tid
	if ev.Aux != 0 {
		sv.Aux = ev.Aux
	}
	if i, found := slices.BinarySearch(sv.threads, tid); !found {
		sv.threads = slices.Insert(sv.threads, i, tid)
	}

	switch ev.Kind {
	case event.SyncLock, event.SyncSpinLock:
		sv.Held++
	case event.SyncUnlock, event.SyncSpinUnlock:
		if sv.Held == 0 {
			sv.Unbalanced++
		} else {
			sv.Held--
		}
	}
}

// SyncShadow maps object ids to SyncVars.
type SyncShadow struct {
	vars    map[uint64]*SyncVar
	parents map[uint32]uint32 // child thread → spawning thread
	joins   map[uint32]uint32 // joined thread → joining thread
}

// NewSyncShadow creates an empty shadow.
func NewSyncShadow() *SyncShadow {
	return &SyncShadow{
		vars:    make(map[uint64]*SyncVar),
		parents: make(map[uint32]uint32),
		joins:   make(map[uint32]uint32),
	}
}

// GetOrCreate returns the SyncVar of id, creating it on first use.
func (s *SyncShadow) GetOrCreate(id uint64) *SyncVar {
	sv, ok := s.vars[id]
	if !ok {
		sv = &SyncVar{ID: id}
		s.vars[id] = sv
	}
	return sv
}

// Get returns the SyncVar of id without creating it.
func (s *SyncShadow) Get(id uint64) *SyncVar {
	return s.vars[id]
}

// Observe records a sync event issued by thread tid.
//
// Spawn and join events take the child thread id as their object id; an id
// that does not fit a thread id is a ProtocolViolation and records nothing.
func (s *SyncShadow) Observe(tid uint32, ev event.Sync) error {
	if (ev.Kind == event.SyncSpawn || ev.Kind == event.SyncJoin) && ev.ID > math.MaxUint32 {
		return fault.Violation("syncshadow.Observe", fault.ID("tid", ev.ID),
			"%s of a thread id exceeding 32 bits", ev.Kind)
	}
	s.GetOrCreate(ev.ID).observe(tid, ev)

	switch ev.Kind {
	case event.SyncSpawn:
		s.parents[uint32(ev.ID)] = tid
	case event.SyncJoin:
		s.joins[uint32(ev.ID)] = tid
	}
	return nil
}

// Parent returns the thread that spawned tid.
func (s *SyncShadow) Parent(tid uint32) (uint32, bool) {
	p, ok := s.parents[tid]
	return p, ok
}

// Joiner returns the thread that joined tid.
func (s *SyncShadow) Joiner(tid uint32) (uint32, bool) {
	j, ok := s.joins[tid]
	return j, ok
}

// Len returns the number of objects seen.
func (s *SyncShadow) Len() int {
	return len(s.vars)
}

// Vars returns every SyncVar ordered by id.
func (s *SyncShadow) Vars() []*SyncVar {
	out := make([]*SyncVar, 0, len(s.vars))
	for _, sv := range s.vars {
		out = append(out, sv)
	}
	slices.SortFunc(out, func(a, b *SyncVar) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
