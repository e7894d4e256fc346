package synchrotrace

import "slices"

// Counters are the running totals of one thread.
type Counters struct {
	Iops   uint64
	Flops  uint64
	Reads  uint64
	Writes uint64
	Instrs uint64
}

// Region is the activity of a thread between two barriers, or between a
// lock and its unlock.
type Region struct {
	Iops        uint64
	Flops       uint64
	Instrs      uint64
	MemAccesses uint64
	Comm        uint64
	Locks       uint64
}

func (r *Region) add(o Region) {
	r.Iops += o.Iops
	r.Flops += o.Flops
	r.Instrs += o.Instrs
	r.MemAccesses += o.MemAccesses
	r.Comm += o.Comm
	r.Locks += o.Locks
}

// IopsPerMem is the integer operations per memory access, 0 without
// accesses.
func (r Region) IopsPerMem() float64 { return ratio(r.Iops, r.MemAccesses) }

// FlopsPerMem is the floating-point operations per memory access.
func (r Region) FlopsPerMem() float64 { return ratio(r.Flops, r.MemAccesses) }

// LocksPerOp is the lock acquisitions per compute operation.
func (r Region) LocksPerOp() float64 { return ratio(r.Locks, r.Iops+r.Flops) }

func ratio(n, d uint64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Barrier is the region a thread finished by waiting on barrier ID.
type Barrier struct {
	ID uint64
	Region
}

// Lock is the region a thread spent holding lock ID.
type Lock struct {
	ID uint64
	Region
}

// ThreadStats accumulates the counters and regions of one thread. Lock
// regions assume one lock is held at a time: a nested lock extends the
// open region and the first unlock closes it.
type ThreadStats struct {
	Counters
	Barriers []Barrier
	Locks    []Lock

	barrier Region
	lock    Region
	locked  bool
}

func (s *ThreadStats) regions(fn func(*Region)) {
	fn(&s.barrier)
	if s.locked {
		fn(&s.lock)
	}
}

func (s *ThreadStats) iop() {
	s.Iops++
	s.regions(func(r *Region) { r.Iops++ })
}

func (s *ThreadStats) flop() {
	s.Flops++
	s.regions(func(r *Region) { r.Flops++ })
}

func (s *ThreadStats) instr() {
	s.Instrs++
	s.regions(func(r *Region) { r.Instrs++ })
}

func (s *ThreadStats) read() {
	s.Reads++
	s.regions(func(r *Region) { r.MemAccesses++ })
}

func (s *ThreadStats) write() {
	s.Writes++
	s.regions(func(r *Region) { r.MemAccesses++ })
}

func (s *ThreadStats) comm() {
	s.regions(func(r *Region) { r.Comm++ })
}

func (s *ThreadStats) onLock() {
	s.barrier.Locks++
	s.locked = true
}

func (s *ThreadStats) onUnlock(id uint64) {
	s.Locks = append(s.Locks, Lock{ID: id, Region: s.lock})
	s.lock = Region{}
	s.locked = false
}

func (s *ThreadStats) onBarrier(id uint64) {
	s.Barriers = append(s.Barriers, Barrier{ID: id, Region: s.barrier})
	s.barrier = Region{}
}

// MergeBarriers folds the barrier regions of one thread into the merged
// regions of the threads before it and returns the result.
//
// Threads need not wait on the same barriers. Each region of from is added
// to the first region of merged with the same id at or after the previous
// match; regions of from without a match are inserted in front of the next
// match, or after the previous match when none follows. Repeated waits on
// one barrier therefore stay separate regions.
//
//	T1  T2  T3      merged
//	B1      B1      B1
//	B2  B2  B2      B2
//	B3      B3      B3
//	B2  B2  B2      B2
func MergeBarriers(merged, from []Barrier) []Barrier {
	if len(from) == 0 {
		return merged
	}
	if len(merged) == 0 {
		return slices.Clone(from)
	}

	begin, cur := 0, 0
	next, prev := 0, len(merged)
	for begin < len(from) {
		if cur == len(from) {
			return slices.Insert(merged, prev, from[begin:]...)
		}
		m := next
		for m < len(merged) && merged[m].ID != from[cur].ID {
			m++
		}
		if m == len(merged) {
			cur++
			continue
		}

		merged[m].add(from[cur].Region)
		if begin != cur {
			merged = slices.Insert(merged, m, from[begin:cur]...)
			m += cur - begin
		}
		prev = m + 1
		next = prev
		cur++
		begin = cur
	}
	return merged
}
