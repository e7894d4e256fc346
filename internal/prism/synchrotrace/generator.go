// Package synchrotrace writes per-thread event traces for trace-driven
// multithreaded simulation.
//
// Where the tracker attributes data to entities, the generator attributes
// it to threads. Each thread gets its own trace of numbered records:
//
//	compute        local operations and accesses, folded up to a limit
//	communication  reads of data last written by another thread, with the
//	               producer thread, its record and the address ranges
//	sync           locks, barriers, spawns, joins and conditions
//
// A record's number is the event id of its thread; a communication edge
// names the producer's compute record that holds the store. On Close the
// generator also writes the thread tree with barrier participants, and
// per-thread statistics with barrier regions merged across threads.
//
// Output files in the trace directory:
//
//	sigil.events.out-<tid>.zst  records of one thread, zstd compressed
//	sigil.pthread.out           spawns and barrier participants
//	sigil.stats.out             per-thread and per-barrier statistics
//
// Not safe for concurrent use; the session owns it.
package synchrotrace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
	"github.com/VANDAL/prism/internal/prism/shadowmem"
)

// File names inside the trace directory.
const (
	EventsPrefix = "sigil.events.out-"
	EventsSuffix = ".zst"
	PthreadFile  = "sigil.pthread.out"
	StatsFile    = "sigil.stats.out"
)

// EventsFile returns the name of the trace of thread tid.
func EventsFile(tid uint32) string {
	return fmt.Sprintf("%s%d%s", EventsPrefix, tid, EventsSuffix)
}

// Sync record types understood by trace consumers.
var syncTypes = [event.NumSyncKinds]uint8{
	event.SyncLock:          1,
	event.SyncUnlock:        2,
	event.SyncSpawn:         3,
	event.SyncJoin:          4,
	event.SyncBarrier:       5,
	event.SyncCondWait:      6,
	event.SyncCondSignal:    7,
	event.SyncCondBroadcast: 8,
	event.SyncSpinLock:      9,
	event.SyncSpinUnlock:    10,
}

type spawn struct {
	parent uint32
	child  uint64
}

type barrier struct {
	id      uint64
	threads []uint32 // sorted, distinct
}

// Generator is an event.Handler writing thread traces.
type Generator struct {
	dir   string
	limit uint64

	// owners holds, per byte, the last writing thread as writer and the
	// threads that read it since as readers. stores holds the event id of
	// the writing record in the writer field.
	owners *shadowmem.ShadowMemory
	stores *shadowmem.ShadowMemory

	threads map[uint32]*thread
	order   []uint32 // first-seen order
	tid     uint32
	cur     *thread

	spawns   []spawn
	barriers []barrier
	local    AddrSet
	closed   bool
}

// New prepares a generator writing into cfg.Dir, which is created if
// missing. Both shadow memories follow the session's geometry and cap.
func New(cfg config.Trace, shadow config.Shadow) (*Generator, error) {
	const op = "synchrotrace.New"
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, fault.Configf(op, "no trace directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fault.Wrap(fault.Configuration, op, cfg.Dir, err)
	}

	owners, err := shadowmem.NewShadowMemory(shadow)
	if err != nil {
		return nil, err
	}
	// Store ids never gain readers.
	storeCfg := shadow
	storeCfg.ReaderPoolInitial, storeCfg.ReaderPoolMax = 1, 1
	stores, err := shadowmem.NewShadowMemory(storeCfg)
	if err != nil {
		return nil, err
	}

	return &Generator{
		dir:     cfg.Dir,
		limit:   uint64(cfg.PrimsPerComp),
		owners:  owners,
		stores:  stores,
		threads: make(map[uint32]*thread),
	}, nil
}

// current returns the active thread, opening its trace on first use.
func (g *Generator) current() (*thread, error) {
	if g.cur != nil {
		return g.cur, nil
	}
	if g.closed {
		return nil, fault.Violation("synchrotrace.Generator", fault.ID("tid", uint64(g.tid)),
			"event after close")
	}
	if th, ok := g.threads[g.tid]; ok {
		g.cur = th
		return th, nil
	}

	path := filepath.Join(g.dir, EventsFile(g.tid))
	out, err := createTrace(path, true)
	if err != nil {
		return nil, err
	}
	th := &thread{tid: g.tid, out: out}
	g.threads[g.tid] = th
	g.order = append(g.order, g.tid)
	g.cur = th
	log.Debugf("synchrotrace: thread %d traced to %s", g.tid, path)
	return th, nil
}

func (g *Generator) swap(id uint64) error {
	if id >= uint64(entity.Undef) {
		return fault.Violation("synchrotrace.swap", fault.ID("tid", id),
			"thread id out of range")
	}
	if g.cur != nil {
		if uint32(id) == g.tid {
			return nil
		}
		if err := g.cur.flushAll(); err != nil {
			return err
		}
	}
	g.tid, g.cur = uint32(id), nil
	_, err := g.current()
	return err
}

// OnComp implements event.Handler.
func (g *Generator) OnComp(ev event.Comp) error {
	th, err := g.current()
	if err != nil {
		return err
	}
	if err := th.flushComm(); err != nil {
		return err
	}
	switch ev.Kind {
	case event.IOP:
		th.comp.iops++
		th.stats.iop()
	case event.FLOP:
		th.comp.flops++
		th.stats.flop()
	}
	return nil
}

// OnMem implements event.Handler.
func (g *Generator) OnMem(ev event.Mem) error {
	if ev.Size == 0 {
		return nil
	}
	th, err := g.current()
	if err != nil {
		return err
	}
	switch ev.Kind {
	case event.Load:
		return g.read(th, ev.Addr, uint64(ev.Size))
	case event.Store:
		return g.write(th, ev.Addr, uint64(ev.Size))
	}
	return nil
}

// read classifies every byte. A byte is communicated when another thread
// wrote it and this thread has not read it since; any communicated byte
// makes the whole access part of a communication record, otherwise it
// joins the compute record.
func (g *Generator) read(th *thread, addr, n uint64) error {
	if err := g.owners.CheckRange(addr, n); err != nil {
		return err
	}
	self := entity.ID(th.tid)
	g.local.Reset()
	communicated := false

	for a := addr; a < addr+n; a++ {
		seen, err := g.owners.IsReader(a, self)
		if err != nil {
			return err
		}
		if seen {
			g.local.Insert(a, a)
			continue
		}
		if err := g.owners.UpdateReader(a, 1, self); err != nil {
			return err
		}
		writer, err := g.owners.WriterOf(a)
		if err != nil {
			return err
		}
		if writer == entity.Undef || writer == self {
			g.local.Insert(a, a)
			continue
		}
		eid, err := g.stores.WriterOf(a)
		if err != nil {
			return err
		}
		th.comm.add(uint32(writer), uint32(eid), a)
		communicated = true
	}

	th.stats.read()
	if communicated {
		th.stats.comm()
		return th.flushComp()
	}
	if err := th.flushComm(); err != nil {
		return err
	}
	th.comp.reads++
	for _, r := range g.local.Ranges() {
		th.comp.readAddrs.Insert(r.First, r.Last)
	}
	return th.checkLimit(g.limit)
}

// write records a store in the compute record. The bytes remember the id
// that record will be written with.
func (g *Generator) write(th *thread, addr, n uint64) error {
	if err := th.flushComm(); err != nil {
		return err
	}
	if err := g.owners.UpdateWriter(addr, n, entity.ID(th.tid)); err != nil {
		return err
	}
	if err := g.stores.UpdateWriter(addr, n, entity.ID(th.eid)); err != nil {
		return err
	}
	th.comp.writes++
	th.comp.writeAddrs.Insert(addr, addr+n-1)
	th.stats.write()
	return th.checkLimit(g.limit)
}

// OnSync implements event.Handler. Swaps change the active thread; other
// kinds end the thread's pending records and add a sync record.
func (g *Generator) OnSync(ev event.Sync) error {
	if ev.Kind == event.SyncSwap {
		return g.swap(ev.ID)
	}
	if ev.Kind >= event.NumSyncKinds || syncTypes[ev.Kind] == 0 {
		return nil
	}
	th, err := g.current()
	if err != nil {
		return err
	}
	if err := th.flushAll(); err != nil {
		return err
	}

	args := []uint64{ev.ID}
	if ev.Kind == event.SyncCondWait {
		args = append(args, ev.Aux)
	}
	if err := th.sync(syncTypes[ev.Kind], args...); err != nil {
		return err
	}

	switch ev.Kind {
	case event.SyncLock:
		th.stats.onLock()
	case event.SyncUnlock:
		th.stats.onUnlock(ev.ID)
	case event.SyncBarrier:
		th.stats.onBarrier(ev.ID)
		g.joinBarrier(ev.ID, th.tid)
	case event.SyncSpawn:
		g.spawns = append(g.spawns, spawn{parent: th.tid, child: ev.ID})
	}
	return nil
}

func (g *Generator) joinBarrier(id uint64, tid uint32) {
	i := slices.IndexFunc(g.barriers, func(b barrier) bool { return b.id == id })
	if i < 0 {
		g.barriers = append(g.barriers, barrier{id: id, threads: []uint32{tid}})
		return
	}
	b := &g.barriers[i]
	if j, found := slices.BinarySearch(b.threads, tid); !found {
		b.threads = slices.Insert(b.threads, j, tid)
	}
}

// OnCxt implements event.Handler. Only instruction markers matter.
func (g *Generator) OnCxt(ev event.Cxt) error {
	if ev.Kind != event.CxtInstr {
		return nil
	}
	th, err := g.current()
	if err != nil {
		return err
	}
	return th.instr()
}

// Threads returns the traced thread ids in first-seen order.
func (g *Generator) Threads() []uint32 {
	return slices.Clone(g.order)
}

// Stats returns the statistics of thread tid.
func (g *Generator) Stats(tid uint32) (ThreadStats, bool) {
	th, ok := g.threads[tid]
	if !ok {
		return ThreadStats{}, false
	}
	return th.stats, true
}

// Close flushes every thread, closes the traces and writes the thread tree
// and the statistics. Calling it again is a no-op.
func (g *Generator) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.cur = nil

	var err error
	for _, tid := range g.order {
		th := g.threads[tid]
		err = errors.Join(err, th.flushAll(), th.out.Close())
	}
	err = errors.Join(err, g.writePthread(), g.writeStats())
	if err != nil {
		return err
	}
	log.Debugf("synchrotrace: wrote %d thread traces to %s (shadow %d + %d bytes)",
		len(g.order), g.dir, g.owners.Footprint(), g.stores.Footprint())
	return nil
}
