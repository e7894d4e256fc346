// Package readerpool stores per-byte reader chains in an index-based arena.
//
// Every shadow byte that has been read since its last write owns a singly
// linked chain of reader nodes. Reads can create billions of nodes, so nodes
// are not individually heap allocated: the pool hands out fixed-size nodes
// addressed by stable 32-bit handles, keeps released nodes on an intrusive
// free list and grows geometrically when both the free list and the bump
// region are exhausted.
//
// # Layout
//
// Capacity lives in chunks. Chunk k holds initial<<k nodes and starts at
// handle initial*(2^k-1), so a handle maps to its chunk with one bits.Len64
// and growth appends a chunk without moving the ones before it. A handle
// issued before a growth stays valid after it.
//
// # Limits
//
// The pool never exceeds its configured maximum node count. Reaching it is a
// ResourceExhaustion error; nothing is evicted. An optional charge hook lets
// the owner account every chunk against a wider memory budget before the
// chunk is allocated.
//
// # Thread Safety
//
// None. The pool is owned by one ShadowMemory, which is driven by one
// dispatch loop.
package readerpool

import (
	"math/bits"
	"unsafe"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// Handle addresses one node. Nil terminates a chain.
type Handle uint32

// Nil is the empty chain.
const Nil Handle = 1<<32 - 1

// HardMax is the largest node count any pool supports.
const HardMax = uint32(Nil) - 1

type node struct {
	reader entity.ID
	next   Handle
}

// NodeSize is the size in bytes of one pool node.
const NodeSize = uint64(unsafe.Sizeof(node{}))

// ChargeFunc is called with the byte size of a chunk before it is allocated.
// Returning an error aborts the growth.
type ChargeFunc func(bytes uint64) error

// Stats describes pool usage.
type Stats struct {
	Capacity uint64 // Nodes backed by chunks.
	InUse    uint64 // Nodes currently linked into some chain.
	Peak     uint64 // Highest InUse observed.
	Chunks   int    // Number of chunks.
	Allocs   uint64 // Total node allocations.
	Frees    uint64 // Total node releases.
}

// Pool is the reader-node arena.
type Pool struct {
	initial uint64
	max     uint64
	charge  ChargeFunc

	chunks   [][]node
	capacity uint64
	bump     uint64 // first never-issued handle
	free     Handle // free-list head

	stats Stats
}

// New creates an empty pool. No memory is allocated until the first Push.
//
// Parameters:
//   - initial: node count of the first chunk (> 0)
//   - max: node count ceiling, at most HardMax
//   - charge: optional budget hook, may be nil
func New(initial, max uint32, charge ChargeFunc) *Pool {
	if initial == 0 {
		initial = 1
	}
	if max == 0 || max > HardMax {
		max = HardMax
	}
	if initial > max {
		initial = max
	}
	return &Pool{
		initial: uint64(initial),
		max:     uint64(max),
		charge:  charge,
		free:    Nil,
	}
}

// locate maps a handle to its chunk and offset.
func (p *Pool) locate(h Handle) (chunk int, off uint64) {
	idx := uint64(h)
	chunk = bits.Len64(idx/p.initial+1) - 1
	off = idx - p.initial*(1<<uint(chunk)-1)
	return chunk, off
}

func (p *Pool) at(h Handle) *node {
	c, off := p.locate(h)
	return &p.chunks[c][off]
}

// grow appends the next chunk.
func (p *Pool) grow() error {
	if p.capacity >= p.max {
		return fault.Exhausted("readerpool.Pool.grow", "",
			"reader pool hard capacity of %d nodes exceeded", p.max)
	}

	size := p.initial << uint(len(p.chunks))
	if p.capacity+size > p.max {
		size = p.max - p.capacity
	}

	if p.charge != nil {
		if err := p.charge(size * NodeSize); err != nil {
			return err
		}
	}

	p.chunks = append(p.chunks, make([]node, size))
	p.capacity += size
	p.stats.Chunks = len(p.chunks)
	p.stats.Capacity = p.capacity
	return nil
}

// alloc returns a fresh node handle.
//
// Order: free list first, then the bump region, then a new chunk.
func (p *Pool) alloc() (Handle, error) {
	if p.free != Nil {
		h := p.free
		p.free = p.at(h).next
		return h, nil
	}
	if p.bump == p.capacity {
		if err := p.grow(); err != nil {
			return Nil, err
		}
	}
	h := Handle(p.bump)
	p.bump++
	return h, nil
}

// Push prepends reader to the chain starting at head and returns the new
// head. The caller is expected to have checked Contains first.
func (p *Pool) Push(head Handle, reader entity.ID) (Handle, error) {
	h, err := p.alloc()
	if err != nil {
		return head, err
	}
	n := p.at(h)
	n.reader = reader
	n.next = head

	p.stats.Allocs++
	p.stats.InUse++
	if p.stats.InUse > p.stats.Peak {
		p.stats.Peak = p.stats.InUse
	}
	return h, nil
}

// Contains reports whether reader is linked in the chain starting at head.
func (p *Pool) Contains(head Handle, reader entity.ID) bool {
	for h := head; h != Nil; {
		n := p.at(h)
		if n.reader == reader {
			return true
		}
		h = n.next
	}
	return false
}

// Len returns the chain length.
func (p *Pool) Len(head Handle) int {
	count := 0
	for h := head; h != Nil; h = p.at(h).next {
		count++
	}
	return count
}

// Readers returns the chain contents, most recent reader first.
func (p *Pool) Readers(head Handle) []entity.ID {
	var out []entity.ID
	for h := head; h != Nil; {
		n := p.at(h)
		out = append(out, n.reader)
		h = n.next
	}
	return out
}

// Release returns every node of the chain to the free list and reports how
// many were freed. The chain handle must not be used afterwards.
func (p *Pool) Release(head Handle) int {
	count := 0
	for h := head; h != Nil; {
		n := p.at(h)
		next := n.next
		n.next = p.free
		n.reader = entity.Undef
		p.free = h
		h = next
		count++
	}
	p.stats.Frees += uint64(count)
	p.stats.InUse -= uint64(count)
	return count
}

// Bytes returns the memory held by chunks.
func (p *Pool) Bytes() uint64 {
	return p.capacity * NodeSize
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	return p.stats
}
