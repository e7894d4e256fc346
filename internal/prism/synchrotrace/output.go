package synchrotrace

import (
	"cmp"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
)

// writePthread writes the thread tree:
//
//	##<spawned id>,<tid>   one line per spawn by the first thread
//	**<barrier>,tid,...    participants of every barrier, in first-seen order
//
// Threads are matched to spawns in the order they were first swapped to;
// spawns made by other threads are left out, as trace consumers only model
// threads created by the initial one.
func (g *Generator) writePthread() error {
	out, err := createTrace(filepath.Join(g.dir, PthreadFile), false)
	if err != nil {
		return err
	}
	if len(g.order) > 0 {
		initial := g.order[0]
		for i, s := range g.spawns {
			if s.parent != initial {
				continue
			}
			tid := s.child
			if i+1 < len(g.order) {
				tid = uint64(g.order[i+1])
			}
			if err := out.str("##").dec(s.child).str(",").dec(tid).end(); err != nil {
				out.Close()
				return err
			}
		}
	}
	for _, b := range g.barriers {
		out.str("**").dec(b.id)
		for _, tid := range b.threads {
			out.str(",").dec(uint64(tid))
		}
		if err := out.end(); err != nil {
			out.Close()
			return err
		}
	}
	return out.Close()
}

// statsWriter collects the first error of a sequence of lines.
type statsWriter struct {
	out *traceFile
	err error
}

func (w *statsWriter) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	w.out.line = fmt.Appendf(w.out.line, format, args...)
	w.err = w.out.end()
}

// writeStats writes the totals and regions of every thread in thread id
// order, then the barrier regions merged over all threads.
func (g *Generator) writeStats() error {
	out, err := createTrace(filepath.Join(g.dir, StatsFile), false)
	if err != nil {
		return err
	}
	w := &statsWriter{out: out}

	var (
		merged      []Barrier
		totalInstrs uint64
	)
	for _, tid := range slices.SortedFunc(maps.Keys(g.threads), cmp.Compare[uint32]) {
		st := g.threads[tid].stats
		w.printf("thread : %d", tid)
		w.printf("\tIOPS  : %d", st.Iops)
		w.printf("\tFLOPS : %d", st.Flops)
		w.printf("\tReads : %d", st.Reads)
		w.printf("\tWrites: %d", st.Writes)
		totalInstrs += st.Instrs

		for _, b := range st.Barriers {
			w.printf("\tBarrier: %d", b.ID)
			writeRegion(w, "\t\t", b.Region, true)
		}
		for _, l := range st.Locks {
			w.printf("\tLock: %d", l.ID)
			writeRegion(w, "\t\t", l.Region, false)
		}
		merged = MergeBarriers(merged, st.Barriers)
	}

	w.printf("Barrier statistics for all threads:")
	for _, b := range merged {
		w.printf("Barrier: %d", b.ID)
		writeRegion(w, "\t", b.Region, true)
	}
	w.printf("Total instructions for all threads: %d", totalInstrs)

	if w.err != nil {
		out.Close()
		return w.err
	}
	return out.Close()
}

func writeRegion(w *statsWriter, indent string, r Region, barrier bool) {
	w.printf("%sIOPs: %d", indent, r.Iops)
	w.printf("%sFLOPs: %d", indent, r.Flops)
	w.printf("%sInstrs: %d", indent, r.Instrs)
	w.printf("%sMemAccesses: %d", indent, r.MemAccesses)
	w.printf("%sCommunication: %d", indent, r.Comm)
	if !barrier {
		return
	}
	w.printf("%slocks: %d", indent, r.Locks)
	w.printf("%sIOPs/Mem: %f", indent, r.IopsPerMem())
	w.printf("%sFLOPs/Mem: %f", indent, r.FlopsPerMem())
	w.printf("%slocks/OPs: %f", indent, r.LocksPerOp())
}
