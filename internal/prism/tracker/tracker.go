// Package tracker implements the entity context tracker.
//
// The tracker turns the ordered event stream into entity-scoped statistics.
// It keeps one threadctx.Context per observed thread and an explicit active
// context chosen by thread id on every swap. Memory events consult the shadow
// memory byte by byte to split loaded bytes into local bytes and
// communication edges; compute events bump the current entity's counters;
// sync events feed the sync shadow; context events move the call stacks.
//
// # Attribution rule
//
// For a load of byte b by the current entity E:
//
//	writer(b) == E           → local
//	E already reads b        → local
//	otherwise                → edge (E → writer(b)) += 1, E becomes a reader of b
//
// A store makes E the writer of each byte and clears the reader sets.
//
// # Thread Safety
//
// None. The tracker, its shadow memory and its graph are driven by the
// single dispatch loop of a session.
package tracker

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/elastic/go-freelru"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/depgraph"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
	"github.com/VANDAL/prism/internal/prism/namedepot"
	"github.com/VANDAL/prism/internal/prism/shadowmem"
	"github.com/VANDAL/prism/internal/prism/syncshadow"
	"github.com/VANDAL/prism/internal/prism/threadctx"
)

// RecordSink receives every finalized EntityRecord, in finalization order.
type RecordSink interface {
	Entity(rec *entity.Record) error
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithIDStart makes the first allocated entity id start instead of 0.
func WithIDStart(start entity.ID) Option {
	return func(t *Tracker) {
		t.ids = entity.NewAllocatorAt(start)
	}
}

// Tracker is the entity context tracker.
type Tracker struct {
	cfg    config.Tracker
	shadow *shadowmem.ShadowMemory
	sink   RecordSink

	ids   *entity.Allocator
	names *namedepot.Depot
	graph *depgraph.Graph
	syncs *syncshadow.SyncShadow

	threads map[uint32]*threadctx.Context
	active  *threadctx.Context

	blockNames *freelru.LRU[uint64, string]

	stats Stats
}

func hashAddr(addr uint64) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], addr)
	return uint32(xxh3.Hash(b[:]))
}

// New creates a tracker over shadow. Thread 0 is the active thread until the
// first swap. sink may be nil.
func New(shadow *shadowmem.ShadowMemory, sink RecordSink, cfg config.Tracker,
	opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg:     cfg,
		shadow:  shadow,
		sink:    sink,
		ids:     entity.NewAllocator(),
		names:   namedepot.New(),
		graph:   depgraph.New(),
		syncs:   syncshadow.NewSyncShadow(),
		threads: make(map[uint32]*threadctx.Context),
	}
	for _, opt := range opts {
		opt(t)
	}

	if cfg.Granularity == config.Block {
		lru, err := freelru.New[uint64, string](cfg.BlockCacheSize, hashAddr)
		if err != nil {
			return nil, fault.Wrap(fault.Configuration, "tracker.New", "", err)
		}
		t.blockNames = lru
	}

	t.OnThreadSwap(0)
	t.stats.Swaps = 0
	return t, nil
}

// OnThreadSwap makes tid's context active, creating it on first use.
func (t *Tracker) OnThreadSwap(tid uint32) {
	ctx, ok := t.threads[tid]
	if !ok {
		ctx = threadctx.New(tid)
		t.threads[tid] = ctx
		t.stats.Threads++
		log.Debugf("tracker: new thread context %d", tid)
	}
	t.active = ctx
	t.stats.Swaps++
}

// OnEnterEntity enters a new entity on the active thread and returns its id.
func (t *Tracker) OnEnterEntity(name string) (entity.ID, error) {
	return t.enter(t.names.InternString(name))
}

func (t *Tracker) enter(name string) (entity.ID, error) {
	id, err := t.ids.Next()
	if err != nil {
		return entity.Undef, fmt.Errorf("enter %q on thread %d: %w", name, t.active.TID, err)
	}
	t.active.Push(id, name)
	t.stats.Entities++
	if d := t.active.Depth(); d > t.stats.MaxDepth {
		t.stats.MaxDepth = d
	}
	return id, nil
}

// OnExitEntity leaves the innermost entity of the active thread and
// finalizes its record.
func (t *Tracker) OnExitEntity() error {
	rec, err := t.active.Pop()
	if err != nil {
		return err
	}
	return t.finalize(rec)
}

func (t *Tracker) finalize(rec *entity.Record) error {
	if !rec.Finalize() {
		return nil
	}
	t.graph.Merge(rec.ID, rec.CommEdges)
	t.stats.Finalized++
	if t.sink != nil {
		return t.sink.Entity(rec)
	}
	return nil
}

// OnCompute counts one operation for the current entity.
func (t *Tracker) OnCompute(isFloat bool) {
	rec := t.active.CurrentRecord()
	switch {
	case rec == nil && isFloat:
		t.stats.Unattributed.Flops++
	case rec == nil:
		t.stats.Unattributed.Iops++
	case isFloat:
		rec.Flops++
	default:
		rec.Iops++
	}
}

// OnInstr counts one instruction for the current entity.
func (t *Tracker) OnInstr() {
	if rec := t.active.CurrentRecord(); rec != nil {
		rec.Instrs++
		return
	}
	t.stats.Unattributed.Instrs++
}

// OnMemory attributes an access of n bytes at addr.
//
// Stores make the current entity the writer (entity.Undef when no entity is
// live). Loads run the per-byte attribution rule. Unattributed loads only
// validate the range.
func (t *Tracker) OnMemory(isStore bool, addr, n uint64) error {
	if err := t.shadow.CheckRange(addr, n); err != nil {
		return err
	}

	cur := t.active.Current()
	rec := t.active.CurrentRecord()

	if isStore {
		t.stats.Stores++
		if err := t.shadow.UpdateWriter(addr, n, cur); err != nil {
			return err
		}
		if rec == nil {
			t.stats.Unattributed.StoreBytes += n
			return nil
		}
		rec.StoreBytes += n
		t.stats.StoreBytes += n
		return nil
	}

	t.stats.Loads++
	if rec == nil {
		t.stats.Unattributed.LoadBytes += n
		return nil
	}

	var local, comm uint64
	for b := addr; b < addr+n; b++ {
		writer, err := t.shadow.WriterOf(b)
		if err != nil {
			return err
		}
		if writer == cur {
			local++
			continue
		}
		seen, err := t.shadow.IsReader(b, cur)
		if err != nil {
			return err
		}
		if seen {
			local++
			continue
		}
		rec.AddComm(writer, 1)
		comm++
		if err := t.shadow.UpdateReader(b, 1, cur); err != nil {
			return err
		}
	}

	rec.LocalBytes += local
	t.stats.LoadBytes += n
	t.stats.LocalBytes += local
	t.stats.CommBytes += comm
	return nil
}

// OnBlock handles an instruction-block marker. In block granularity a new
// block address ends the current block entity and starts a new one; in
// function granularity blocks are ignored.
func (t *Tracker) OnBlock(addr uint64) error {
	if t.cfg.Granularity != config.Block {
		return nil
	}
	isBlock, last := t.active.BlockTop()
	if isBlock && last == addr {
		return nil
	}
	if isBlock {
		if err := t.OnExitEntity(); err != nil {
			return err
		}
	}
	if _, err := t.enter(t.blockName(addr)); err != nil {
		return err
	}
	t.active.MarkBlock(addr)
	return nil
}

func (t *Tracker) blockName(addr uint64) string {
	if name, ok := t.blockNames.Get(addr); ok {
		return name
	}
	name := t.names.InternString(fmt.Sprintf("%#x", addr))
	t.blockNames.Add(addr, name)
	return name
}

// OnSync routes a sync event: swaps change the active thread, every
// other kind is recorded in the sync shadow.
func (t *Tracker) OnSync(ev event.Sync) error {
	if ev.Kind == event.SyncUndef || ev.Kind >= event.NumSyncKinds {
		return fault.Violation("tracker.OnSync", fault.ID("sync", ev.ID),
			"unknown sync kind %d", uint8(ev.Kind))
	}
	if ev.Kind == event.SyncSwap {
		if ev.ID > uint64(^uint32(0)) {
			return fault.Violation("tracker.OnSync", fault.ID("tid", ev.ID),
				"thread id exceeds 32 bits")
		}
		t.OnThreadSwap(uint32(ev.ID))
		return nil
	}
	return t.syncs.Observe(t.active.TID, ev)
}

// Close retires every thread context in ascending thread id order,
// finalizing live entities innermost first. The tracker must not receive
// events afterwards.
func (t *Tracker) Close() error {
	tids := make([]uint32, 0, len(t.threads))
	for tid := range t.threads {
		tids = append(tids, tid)
	}
	slices.Sort(tids)

	for _, tid := range tids {
		for _, rec := range t.threads[tid].Retire() {
			if err := t.finalize(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActiveThread returns the id of the active thread.
func (t *Tracker) ActiveThread() uint32 {
	return t.active.TID
}

// Current returns the innermost live entity of the active thread.
func (t *Tracker) Current() entity.ID {
	return t.active.Current()
}

// CurrentRecord returns the live record of the current entity, or nil.
// The record keeps changing until it is finalized.
func (t *Tracker) CurrentRecord() *entity.Record {
	return t.active.CurrentRecord()
}

// Graph returns the dependency graph of finalized entities.
func (t *Tracker) Graph() *depgraph.Graph {
	return t.graph
}

// Syncs returns the sync-object shadow.
func (t *Tracker) Syncs() *syncshadow.SyncShadow {
	return t.syncs
}

// Shadow returns the shadow memory.
func (t *Tracker) Shadow() *shadowmem.ShadowMemory {
	return t.shadow
}

// Names returns the name depot.
func (t *Tracker) Names() *namedepot.Depot {
	return t.names
}

// Stats returns a snapshot of attribution totals.
func (t *Tracker) Stats() Stats {
	return t.stats
}
