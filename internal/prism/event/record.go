package event

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// RecordSize is the size of one encoded event.
//
// Layout (little endian):
//
//	0      tag
//	1      kind
//	Mem:   2-3 size        8-15 addr
//	Comp:  2 arity  3 op   4-5 width
//	Sync:  8-15 id         16-23 aux
//	Cxt:   2-3 name length 4-7 name offset  8-15 addr
const RecordSize = 24

// MaxNameLen is the longest name a record can reference.
const MaxNameLen = math.MaxUint16

// ErrArenaFull is returned by Encode when the name does not fit in the
// remaining arena space. The producer flushes the slot and retries.
var ErrArenaFull = errors.New("name arena full")

// Encode writes ev into rec and, for named context events, appends the name
// to arena at offset used.
//
// Parameters:
//   - rec: destination record, at least RecordSize bytes
//   - ev: event to encode
//   - arena: the slot's name arena
//   - used: bytes of arena already taken
//
// Returns the new arena fill level. ErrArenaFull means nothing was written;
// a name that could never fit is a ProtocolViolation.
func Encode(rec []byte, ev Event, arena []byte, used int) (int, error) {
	const op = "event.Encode"
	rec = rec[:RecordSize]

	switch ev.Tag {
	case TagMem:
		clear(rec)
		rec[0] = byte(TagMem)
		rec[1] = byte(ev.Mem.Kind)
		binary.LittleEndian.PutUint16(rec[2:], ev.Mem.Size)
		binary.LittleEndian.PutUint64(rec[8:], ev.Mem.Addr)
	case TagComp:
		clear(rec)
		rec[0] = byte(TagComp)
		rec[1] = byte(ev.Comp.Kind)
		rec[2] = byte(ev.Comp.Arity)
		rec[3] = byte(ev.Comp.Op)
		binary.LittleEndian.PutUint16(rec[4:], ev.Comp.Width)
	case TagSync:
		clear(rec)
		rec[0] = byte(TagSync)
		rec[1] = byte(ev.Sync.Kind)
		binary.LittleEndian.PutUint64(rec[8:], ev.Sync.ID)
		binary.LittleEndian.PutUint64(rec[16:], ev.Sync.Aux)
	case TagCxt:
		name := ev.Cxt.Name
		if len(name) > MaxNameLen || len(name) > len(arena) {
			return used, fault.Violation(op, "", "context name of %d bytes can never fit", len(name))
		}
		if used+len(name) > len(arena) {
			return used, ErrArenaFull
		}
		clear(rec)
		rec[0] = byte(TagCxt)
		rec[1] = byte(ev.Cxt.Kind)
		binary.LittleEndian.PutUint16(rec[2:], uint16(len(name)))
		binary.LittleEndian.PutUint32(rec[4:], uint32(used))
		binary.LittleEndian.PutUint64(rec[8:], ev.Cxt.Addr)
		used += copy(arena[used:], name)
	default:
		return used, fault.Violation(op, "", "unrecognized event tag %d", uint8(ev.Tag))
	}
	return used, nil
}

// Decode parses rec. Context names alias arena.
//
// Returns a ProtocolViolation for an unknown tag, an unknown kind or a name
// reference outside the arena.
func Decode(rec []byte, arena []byte) (Event, error) {
	const op = "event.Decode"
	if len(rec) < RecordSize {
		return Event{}, fault.Violation(op, "", "short record of %d bytes", len(rec))
	}

	var ev Event
	ev.Tag = Tag(rec[0])
	kind := rec[1]

	switch ev.Tag {
	case TagMem:
		ev.Mem = Mem{
			Kind: MemKind(kind),
			Size: binary.LittleEndian.Uint16(rec[2:]),
			Addr: binary.LittleEndian.Uint64(rec[8:]),
		}
		if ev.Mem.Kind != Load && ev.Mem.Kind != Store {
			return ev, fault.Violation(op, fault.Addr(ev.Mem.Addr), "unknown memory kind %d", kind)
		}
	case TagComp:
		ev.Comp = Comp{
			Kind:  CompKind(kind),
			Arity: Arity(rec[2]),
			Op:    Op(rec[3]),
			Width: binary.LittleEndian.Uint16(rec[4:]),
		}
		if ev.Comp.Kind != IOP && ev.Comp.Kind != FLOP {
			return ev, fault.Violation(op, "", "unknown compute kind %d", kind)
		}
		if ev.Comp.Arity > Quaternary || ev.Comp.Op > OpMov {
			return ev, fault.Violation(op, "", "compute arity %d op %d out of range",
				ev.Comp.Arity, ev.Comp.Op)
		}
	case TagSync:
		ev.Sync = Sync{
			Kind: SyncKind(kind),
			ID:   binary.LittleEndian.Uint64(rec[8:]),
			Aux:  binary.LittleEndian.Uint64(rec[16:]),
		}
		if ev.Sync.Kind == SyncUndef || ev.Sync.Kind >= NumSyncKinds {
			return ev, fault.Violation(op, fault.ID("sync", ev.Sync.ID), "unknown sync kind %d", kind)
		}
	case TagCxt:
		ev.Cxt = Cxt{
			Kind: CxtKind(kind),
			Addr: binary.LittleEndian.Uint64(rec[8:]),
		}
		if ev.Cxt.Kind == CxtUndef || ev.Cxt.Kind > CxtThread {
			return ev, fault.Violation(op, "", "unknown context kind %d", kind)
		}
		n := uint64(binary.LittleEndian.Uint16(rec[2:]))
		off := uint64(binary.LittleEndian.Uint32(rec[4:]))
		if off+n > uint64(len(arena)) {
			return ev, fault.Violation(op, "", "name [%d, %d) outside arena of %d bytes",
				off, off+n, len(arena))
		}
		if n > 0 {
			ev.Cxt.Name = arena[off : off+n : off+n]
		}
	default:
		return ev, fault.Violation(op, "", "unrecognized event tag %d", rec[0])
	}
	return ev, nil
}
