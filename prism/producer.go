package prism

import (
	"context"
	"math"
	"time"

	"github.com/VANDAL/prism/internal/prism/channel"
	"github.com/VANDAL/prism/internal/prism/event"
)

// Producer emits the events of a traced program. Events are processed in
// the order they are emitted; switching threads is itself an event.
//
// A Producer is not safe for concurrent use, except for Heartbeat and
// KeepAlive.
type Producer struct {
	p *channel.Producer
}

// EnterFunc records entry into a function. The analysis starts a new
// entity named name on the current thread.
//
// Example:
//
//	p.EnterFunc("matmul")
//	defer p.ExitFunc("matmul")
func (p *Producer) EnterFunc(name string) error {
	return p.p.Emit(event.EnterEvent(name))
}

// ExitFunc records the return from the innermost function of the current
// thread. Exiting with no function entered is a protocol violation.
func (p *Producer) ExitFunc(name string) error {
	return p.p.Emit(event.ExitEvent(name))
}

// Load records a read of size bytes at addr.
//
// Parameters:
//   - addr: the first byte read, below 2^Options.AddrBits
//   - size: number of bytes; zero records nothing
//
// The current entity communicates with the last writer of every byte it
// has not read or written before.
func (p *Producer) Load(addr uint64, size int) error {
	return p.mem(event.Load, addr, size)
}

// Store records a write of size bytes at addr. The current entity becomes
// the writer of every byte.
func (p *Producer) Store(addr uint64, size int) error {
	return p.mem(event.Store, addr, size)
}

func (p *Producer) mem(kind event.MemKind, addr uint64, size int) error {
	for size > 0 {
		n := min(size, math.MaxUint16)
		if err := p.p.Emit(event.MemEvent(kind, addr, uint16(n))); err != nil {
			return err
		}
		addr += uint64(n)
		size -= n
	}
	return nil
}

// IntOps records n integer operations.
func (p *Producer) IntOps(n int) error {
	return p.compute(event.IOP, n)
}

// FloatOps records n floating-point operations.
func (p *Producer) FloatOps(n int) error {
	return p.compute(event.FLOP, n)
}

func (p *Producer) compute(kind event.CompKind, n int) error {
	for range n {
		if err := p.p.Emit(event.CompEvent(kind, event.Binary, event.OpAdd, 8)); err != nil {
			return err
		}
	}
	return nil
}

// Instr records one executed instruction at addr.
func (p *Producer) Instr(addr uint64) error {
	return p.p.Emit(event.InstrEvent(addr))
}

// Block records entry into the instruction block at addr. With block
// granularity every new block address starts a new entity.
func (p *Producer) Block(addr uint64) error {
	return p.p.Emit(event.BlockEvent(addr))
}

// SwapThread makes tid the thread subsequent events belong to.
func (p *Producer) SwapThread(tid uint32) error {
	return p.sync(event.SyncSwap, uint64(tid))
}

// Spawn records that the current thread created thread tid.
func (p *Producer) Spawn(tid uint32) error {
	return p.sync(event.SyncSpawn, uint64(tid))
}

// Join records that the current thread waited for thread tid.
func (p *Producer) Join(tid uint32) error {
	return p.sync(event.SyncJoin, uint64(tid))
}

// Lock records the acquisition of the lock identified by id.
func (p *Producer) Lock(id uint64) error {
	return p.sync(event.SyncLock, id)
}

// Unlock records the release of the lock identified by id.
func (p *Producer) Unlock(id uint64) error {
	return p.sync(event.SyncUnlock, id)
}

// Barrier records arrival at the barrier identified by id.
func (p *Producer) Barrier(id uint64) error {
	return p.sync(event.SyncBarrier, id)
}

func (p *Producer) sync(kind event.SyncKind, id uint64) error {
	return p.p.Emit(event.SyncEvent(kind, id))
}

// Heartbeat tells the analysis that the producer is alive while it emits
// nothing. It never blocks.
func (p *Producer) Heartbeat() error {
	return p.p.Heartbeat()
}

// KeepAlive sends a heartbeat every interval until ctx is done.
func (p *Producer) KeepAlive(ctx context.Context, interval time.Duration) error {
	return p.p.KeepAlive(ctx, interval)
}

// Finish flushes the pending events, tells the analysis that the trace is
// complete and waits for it to disconnect.
func (p *Producer) Finish(ctx context.Context) error {
	return p.p.Finish(ctx)
}

// Close abandons the trace. The analysis reports a transport failure.
func (p *Producer) Close() error {
	return p.p.Close()
}
