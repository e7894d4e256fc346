// Package threadctx holds the per-thread attribution state.
//
// The observed program interleaves threads arbitrarily: a function activation
// can be interrupted by a context switch before it returns and must resume
// with its own call stack afterwards. Every thread therefore owns a Context
// with its call stack and the records of its live entities, and the tracker
// switches between Contexts by thread id.
package threadctx

import (
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// Context is the attribution state of one observed thread.
//
// Layout:
//   - TID: observed thread id
//   - stack: live entity ids, innermost last
//   - table: records of the live entities
//
// Invariant: every id on stack has a record in table, and the caller of each
// record is the id directly below it on the stack (Undef for the bottom).
type Context struct {
	TID uint32

	stack []entity.ID
	table map[entity.ID]*entity.Record

	// blockTop is set when the innermost entity is an instruction block
	// started by the block-granularity mode.
	blockTop bool
	lastAddr uint64
}

// New creates the context of a thread seen for the first time.
func New(tid uint32) *Context {
	return &Context{
		TID:   tid,
		stack: make([]entity.ID, 0, 16),
		table: make(map[entity.ID]*entity.Record),
	}
}

// Current returns the innermost live entity, or entity.Undef.
func (c *Context) Current() entity.ID {
	if len(c.stack) == 0 {
		return entity.Undef
	}
	return c.stack[len(c.stack)-1]
}

// CurrentRecord returns the record of the innermost live entity, or nil.
func (c *Context) CurrentRecord() *entity.Record {
	if len(c.stack) == 0 {
		return nil
	}
	return c.table[c.stack[len(c.stack)-1]]
}

// Depth returns the call-stack depth.
func (c *Context) Depth() int {
	return len(c.stack)
}

// Push enters a new entity with the given name. Its caller is the current
// innermost entity.
func (c *Context) Push(id entity.ID, name string) *entity.Record {
	rec := entity.NewRecord(id, name, c.Current(), c.TID)
	c.stack = append(c.stack, id)
	c.table[id] = rec
	c.blockTop = false
	return rec
}

// Pop leaves the innermost entity and returns its record, removed from the
// table. Popping an empty stack is a ProtocolViolation.
func (c *Context) Pop() (*entity.Record, error) {
	if len(c.stack) == 0 {
		return nil, fault.Violation("threadctx.Context.Pop", fault.ID("tid", uint64(c.TID)),
			"entity exit with an empty call stack")
	}
	id := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	rec := c.table[id]
	delete(c.table, id)
	c.blockTop = false
	return rec, nil
}

// Record returns the record of a live entity of this thread.
func (c *Context) Record(id entity.ID) (*entity.Record, bool) {
	rec, ok := c.table[id]
	return rec, ok
}

// Stack returns a copy of the call stack, outermost first.
func (c *Context) Stack() []entity.ID {
	out := make([]entity.ID, len(c.stack))
	copy(out, c.stack)
	return out
}

// BlockTop reports whether the innermost entity is an instruction block and
// the address it was started at.
func (c *Context) BlockTop() (bool, uint64) {
	return c.blockTop, c.lastAddr
}

// MarkBlock flags the innermost entity as an instruction block at addr.
func (c *Context) MarkBlock(addr uint64) {
	c.blockTop = len(c.stack) > 0
	c.lastAddr = addr
}

// Retire pops every live entity, innermost first, and returns their
// records in that order. The context is empty afterwards.
func (c *Context) Retire() []*entity.Record {
	out := make([]*entity.Record, 0, len(c.stack))
	for len(c.stack) > 0 {
		rec, _ := c.Pop()
		out = append(out, rec)
	}
	return out
}
