package main

import (
	"flag"
	"fmt"
	"math/rand/v2"

	"github.com/VANDAL/prism/prism"
)

// workload is a reproducible synthetic trace: a random walk over a call
// tree that loads, stores and computes on a fixed address span, optionally
// hopping between threads.
type workload struct {
	seed    uint64
	events  int
	funcs   int
	depth   int
	span    uint64
	threads int
	block   bool
}

func (w workload) validate() error {
	switch {
	case w.events < 0:
		return fmt.Errorf("events must not be negative, got %d", w.events)
	case w.funcs < 1:
		return fmt.Errorf("funcs must be at least 1, got %d", w.funcs)
	case w.depth < 1:
		return fmt.Errorf("depth must be at least 1, got %d", w.depth)
	case w.span < maxAccess:
		return fmt.Errorf("span must be at least %d bytes, got %d", maxAccess, w.span)
	case w.threads < 1:
		return fmt.Errorf("threads must be at least 1, got %d", w.threads)
	}
	return nil
}

const maxAccess = 64

// walker emits the workload, remembering the call stack of every thread so
// the trace always ends balanced.
type walker struct {
	workload
	p      *prism.Producer
	r      *rand.Rand
	stacks  [][]string
	spawned []bool
	tid     int
}

// run emits the whole workload into p. It does not call Finish.
func (w workload) run(p *prism.Producer) error {
	wk := &walker{
		workload: w,
		p:        p,
		r:        rand.New(rand.NewPCG(w.seed, w.seed^0x9e3779b97f4a7c15)),
		stacks:   make([][]string, w.threads),
		spawned:  make([]bool, w.threads),
	}
	if w.block {
		return wk.blocks()
	}

	if err := wk.enter("main"); err != nil {
		return err
	}
	for range w.events {
		if err := wk.step(); err != nil {
			return err
		}
	}
	return wk.unwind()
}

func (wk *walker) step() error {
	addr := wk.r.Uint64N(wk.span - maxAccess)
	size := 1 + wk.r.IntN(maxAccess)

	switch n := wk.r.IntN(100); {
	case n < 35:
		return wk.p.Load(addr, size)
	case n < 60:
		return wk.p.Store(addr, size)
	case n < 75:
		return wk.p.IntOps(1 + wk.r.IntN(4))
	case n < 85:
		return wk.p.FloatOps(1 + wk.r.IntN(4))
	case n < 93:
		if len(wk.stacks[wk.tid]) >= wk.depth {
			return nil
		}
		return wk.enter(fmt.Sprintf("fn%d", wk.r.IntN(wk.funcs)))
	case n < 98:
		// Thread entry functions stay live until unwind.
		if len(wk.stacks[wk.tid]) < 2 {
			return nil
		}
		return wk.exit()
	default:
		return wk.swap(wk.r.IntN(wk.threads))
	}
}

func (wk *walker) enter(name string) error {
	wk.stacks[wk.tid] = append(wk.stacks[wk.tid], name)
	return wk.p.EnterFunc(name)
}

func (wk *walker) exit() error {
	s := wk.stacks[wk.tid]
	name := s[len(s)-1]
	wk.stacks[wk.tid] = s[:len(s)-1]
	return wk.p.ExitFunc(name)
}

// swap moves to thread tid, spawning it with its own entry function on
// first use.
func (wk *walker) swap(tid int) error {
	if tid == wk.tid {
		return nil
	}
	fresh := len(wk.stacks[tid]) == 0
	if fresh && !wk.spawned[tid] && tid != 0 {
		if err := wk.p.Spawn(uint32(tid)); err != nil {
			return err
		}
		wk.spawned[tid] = true
	}
	if err := wk.p.SwapThread(uint32(tid)); err != nil {
		return err
	}
	wk.tid = tid
	if fresh {
		return wk.enter(fmt.Sprintf("thread%d", tid))
	}
	return nil
}

// unwind exits every live function, thread by thread, then joins the
// spawned threads from thread 0.
func (wk *walker) unwind() error {
	for tid := range wk.stacks {
		if len(wk.stacks[tid]) == 0 {
			continue
		}
		if err := wk.swapTo(tid); err != nil {
			return err
		}
		for len(wk.stacks[tid]) > 0 {
			if err := wk.exit(); err != nil {
				return err
			}
		}
	}
	if err := wk.swapTo(0); err != nil {
		return err
	}
	for tid, ok := range wk.spawned {
		if !ok {
			continue
		}
		if err := wk.p.Join(uint32(tid)); err != nil {
			return err
		}
	}
	return nil
}

func (wk *walker) swapTo(tid int) error {
	if tid == wk.tid {
		return nil
	}
	wk.tid = tid
	return wk.p.SwapThread(uint32(tid))
}

// blocks emits the workload at instruction-block granularity: every step
// enters one of funcs block addresses and touches memory.
func (wk *walker) blocks() error {
	for range wk.events {
		if err := wk.p.Block(0x400000 + 0x40*uint64(wk.r.IntN(wk.funcs))); err != nil {
			return err
		}
		addr := wk.r.Uint64N(wk.span - maxAccess)
		size := 1 + wk.r.IntN(maxAccess)
		var err error
		if wk.r.IntN(2) == 0 {
			err = wk.p.Load(addr, size)
		} else {
			err = wk.p.Store(addr, size)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// registerWorkload adds the workload flags to fs.
func registerWorkload(fs *flag.FlagSet) *workload {
	w := &workload{}
	fs.Uint64Var(&w.seed, "seed", 1, "Random seed; equal seeds produce equal traces.")
	fs.IntVar(&w.events, "events", 100000, "Number of random steps.")
	fs.IntVar(&w.funcs, "funcs", 16, "Number of distinct function (or block) names.")
	fs.IntVar(&w.depth, "depth", 8, "Maximum call depth per thread.")
	fs.Uint64Var(&w.span, "span", 1<<20, "Size of the traced address span in bytes.")
	fs.IntVar(&w.threads, "threads", 1, "Number of traced threads.")
	return w
}
