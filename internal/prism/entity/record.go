package entity

// Record is the accumulated cost of one entity.
//
// A Record is created when its entity is entered and finalized when the
// entity exits or its thread is retired. The tracker stops touching it after
// finalization; sinks may keep the pointer.
type Record struct {
	ID     ID
	Name   string
	Caller ID // Undef for a root entity.
	Thread uint32

	Iops   uint64
	Flops  uint64
	Instrs uint64

	// LocalBytes counts loaded bytes last written or already read by this
	// entity.
	LocalBytes uint64

	// StoreBytes counts bytes written by this entity.
	StoreBytes uint64

	// CommEdges maps a producer entity to the number of bytes this entity
	// read from it.
	CommEdges map[ID]uint64

	finalized bool
}

// NewRecord creates the record of a freshly entered entity.
func NewRecord(id ID, name string, caller ID, thread uint32) *Record {
	return &Record{
		ID:        id,
		Name:      name,
		Caller:    caller,
		Thread:    thread,
		CommEdges: make(map[ID]uint64),
	}
}

// AddComm adds n bytes to the edge towards producer.
func (r *Record) AddComm(producer ID, n uint64) {
	r.CommEdges[producer] += n
}

// CommBytes sums every outgoing edge.
func (r *Record) CommBytes() uint64 {
	var total uint64
	for _, n := range r.CommEdges {
		total += n
	}
	return total
}

// Finalize marks the record immutable. It reports false if the record was
// already finalized.
func (r *Record) Finalize() bool {
	if r.finalized {
		return false
	}
	r.finalized = true
	return true
}

// Finalized reports whether Finalize has been called.
func (r *Record) Finalized() bool {
	return r.finalized
}
