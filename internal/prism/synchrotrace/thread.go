package synchrotrace

import (
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// InstrMarker is the number of instructions between two "! N" marker lines.
const InstrMarker = 1 << 12

// maxEID is the largest event id; ids are kept in shadow memory next to
// entity ids and must stay clear of entity.Undef.
const maxEID = uint32(entity.Undef) - 1

// compEvent aggregates local work: compute operations and memory accesses
// that did not read another thread's data.
type compEvent struct {
	iops, flops   uint64
	reads, writes uint64
	readAddrs     AddrSet
	writeAddrs    AddrSet
}

func (c *compEvent) active() bool {
	return c.iops+c.flops+c.reads+c.writes > 0
}

func (c *compEvent) reset() {
	c.iops, c.flops, c.reads, c.writes = 0, 0, 0, 0
	c.readAddrs.Reset()
	c.writeAddrs.Reset()
}

// commEdge is data read from one event of a producer thread.
type commEdge struct {
	tid   uint32
	eid   uint32
	addrs AddrSet
}

// commEvent aggregates consecutive reads of other threads' data.
type commEvent struct {
	edges []commEdge
}

func (c *commEvent) active() bool { return len(c.edges) > 0 }

func (c *commEvent) add(tid, eid uint32, addr uint64) {
	for i := range c.edges {
		if e := &c.edges[i]; e.tid == tid && e.eid == eid {
			e.addrs.Insert(addr, addr)
			return
		}
	}
	e := commEdge{tid: tid, eid: eid}
	e.addrs.Insert(addr, addr)
	c.edges = append(c.edges, e)
}

// thread is the trace state of one thread. Every record written takes the
// next event id.
type thread struct {
	tid   uint32
	eid   uint32
	comp  compEvent
	comm  commEvent
	stats ThreadStats
	out   *traceFile
}

// advance moves past the event id just written.
func (th *thread) advance() error {
	if th.eid == maxEID {
		return fault.Exhausted("synchrotrace.thread", fault.ID("tid", uint64(th.tid)),
			"event id overflow after %d events", uint64(maxEID)+1)
	}
	th.eid++
	return nil
}

// eidTid starts a record line.
func (th *thread) eidTid() *traceFile {
	return th.out.dec(uint64(th.eid)).str(",").dec(uint64(th.tid))
}

// flushComp writes the pending compute record, if any:
//
//	eid,tid,iops,flops,reads,writes $ 0xfirst 0xlast ... * 0xfirst 0xlast ...
func (th *thread) flushComp() error {
	c := &th.comp
	if !c.active() {
		return nil
	}
	out := th.eidTid().str(",").dec(c.iops).str(",").dec(c.flops).
		str(",").dec(c.reads).str(",").dec(c.writes)
	for _, r := range c.writeAddrs.Ranges() {
		out.str(" $ ").hex(r.First).str(" ").hex(r.Last)
	}
	for _, r := range c.readAddrs.Ranges() {
		out.str(" * ").hex(r.First).str(" ").hex(r.Last)
	}
	if err := out.end(); err != nil {
		return err
	}
	c.reset()
	return th.advance()
}

// flushComm writes the pending communication record, if any:
//
//	eid,tid # producerTid producerEid 0xfirst 0xlast ...
func (th *thread) flushComm() error {
	c := &th.comm
	if !c.active() {
		return nil
	}
	out := th.eidTid()
	for _, e := range c.edges {
		for _, r := range e.addrs.Ranges() {
			out.str(" # ").dec(uint64(e.tid)).str(" ").dec(uint64(e.eid)).
				str(" ").hex(r.First).str(" ").hex(r.Last)
		}
	}
	if err := out.end(); err != nil {
		return err
	}
	c.edges = c.edges[:0]
	return th.advance()
}

func (th *thread) flushAll() error {
	if err := th.flushComp(); err != nil {
		return err
	}
	return th.flushComm()
}

// checkLimit flushes the compute record once it holds limit reads or
// writes.
func (th *thread) checkLimit(limit uint64) error {
	if th.comp.reads >= limit || th.comp.writes >= limit {
		return th.flushComp()
	}
	return nil
}

// sync writes a synchronization record:
//
//	eid,tid,pth_ty:type^0xarg[&0xarg]
func (th *thread) sync(ty uint8, args ...uint64) error {
	out := th.eidTid().str(",pth_ty:").dec(uint64(ty)).str("^").hex(args[0])
	for _, a := range args[1:] {
		out.str("&").hex(a)
	}
	if err := out.end(); err != nil {
		return err
	}
	return th.advance()
}

// instr counts an instruction and writes a marker line every InstrMarker
// instructions.
func (th *thread) instr() error {
	th.stats.instr()
	if th.stats.Instrs%InstrMarker != 0 {
		return nil
	}
	return th.out.str("! ").dec(InstrMarker).end()
}
