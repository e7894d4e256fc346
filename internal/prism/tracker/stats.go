package tracker

// Unattributed counts activity observed while the active thread had no live
// entity, e.g. loader code before the first function marker.
type Unattributed struct {
	Iops       uint64
	Flops      uint64
	Instrs     uint64
	LoadBytes  uint64
	StoreBytes uint64
}

// Stats tracks attribution totals for a session.
//
// In a typical trace LocalBytes dominates CommBytes by one to two orders of
// magnitude: most loads hit bytes the loading function produced itself.
type Stats struct {
	Loads      uint64 // Load events.
	Stores     uint64 // Store events.
	LoadBytes  uint64 // Bytes loaded by live entities.
	StoreBytes uint64 // Bytes stored by live entities.
	LocalBytes uint64 // Loaded bytes attributed as local.
	CommBytes  uint64 // Loaded bytes attributed to an edge.

	Entities  uint64 // Entities entered.
	Finalized uint64 // Records finalized.
	Threads   int    // Thread contexts created.
	Swaps     uint64 // Thread swaps.
	MaxDepth  int    // Deepest call stack seen.

	Unattributed Unattributed
}

// LocalRatio returns LocalBytes / (LocalBytes + CommBytes), or 0.
func (s Stats) LocalRatio() float64 {
	total := s.LocalBytes + s.CommBytes
	if total == 0 {
		return 0
	}
	return float64(s.LocalBytes) / float64(total)
}
