// Package event defines the wire event taxonomy and its record codec.
//
// Events are tag-discriminated. Each event travels as one fixed-size record
// in a channel slot; names carried by context events live in the slot's name
// arena and are referenced by offset and length.
//
// # Tags
//
//	Mem  = 1  load/store of [addr, addr+size)
//	Comp = 2  integer or floating-point operation
//	CF   = 3  control flow, reserved and rejected
//	Cxt  = 4  instruction, block, function enter/exit, thread markers
//	Sync = 5  thread swap, spawn, join, locks, barriers, conditions
package event

import "fmt"

// Tag discriminates a record.
type Tag uint8

const (
	TagUndef Tag = iota
	TagMem
	TagComp
	TagCF
	TagCxt
	TagSync
)

func (t Tag) String() string {
	switch t {
	case TagMem:
		return "mem"
	case TagComp:
		return "comp"
	case TagCF:
		return "cf"
	case TagCxt:
		return "cxt"
	case TagSync:
		return "sync"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// MemKind distinguishes loads and stores.
type MemKind uint8

const (
	MemUndef MemKind = iota
	Load
	Store
)

// Mem is a memory access.
type Mem struct {
	Kind MemKind
	Addr uint64
	Size uint16
}

// IsStore reports whether the access is a store.
func (m Mem) IsStore() bool { return m.Kind == Store }

// CompKind distinguishes integer and floating-point operations.
type CompKind uint8

const (
	CompUndef CompKind = iota
	IOP
	FLOP
)

// Arity is the operand count of a compute event.
type Arity uint8

const (
	Nullary Arity = iota
	Unary
	Binary
	Ternary
	Quaternary
)

// Op is the compute operation class.
type Op uint8

const (
	OpUndef Op = iota
	OpAdd
	OpSub
	OpMult
	OpDiv
	OpShft
	OpMov
)

// Comp is a compute operation.
type Comp struct {
	Kind  CompKind
	Arity Arity
	Op    Op
	Width uint16
}

// IsFloat reports whether the operation is floating point.
func (c Comp) IsFloat() bool { return c.Kind == FLOP }

// SyncKind is the synchronization operation.
type SyncKind uint8

const (
	SyncUndef SyncKind = iota
	SyncSpawn
	SyncJoin
	SyncBarrier
	SyncSync
	SyncSwap
	SyncLock
	SyncUnlock
	SyncCondWait
	SyncCondSignal
	SyncCondBroadcast
	SyncSpinLock
	SyncSpinUnlock

	// NumSyncKinds sizes per-kind counter arrays.
	NumSyncKinds
)

var syncNames = [NumSyncKinds]string{
	"undef", "spawn", "join", "barrier", "sync", "swap", "lock", "unlock",
	"condwait", "condsig", "condbroad", "spinlock", "spinunlock",
}

func (k SyncKind) String() string {
	if k < NumSyncKinds {
		return syncNames[k]
	}
	return fmt.Sprintf("sync(%d)", uint8(k))
}

// Sync is a synchronization event. ID names the thread, lock, barrier or
// condition; Aux carries a second object (the mutex of a condition wait).
type Sync struct {
	Kind SyncKind
	ID   uint64
	Aux  uint64
}

// CxtKind is the context marker kind.
type CxtKind uint8

const (
	CxtUndef CxtKind = iota
	CxtInstr
	CxtBB
	CxtFuncEnter
	CxtFuncExit
	CxtThread
)

func (k CxtKind) String() string {
	switch k {
	case CxtInstr:
		return "instr"
	case CxtBB:
		return "bb"
	case CxtFuncEnter:
		return "enter"
	case CxtFuncExit:
		return "exit"
	case CxtThread:
		return "thread"
	default:
		return fmt.Sprintf("cxt(%d)", uint8(k))
	}
}

// hasName reports whether kind carries a name rather than an address.
func (k CxtKind) hasName() bool {
	return k == CxtFuncEnter || k == CxtFuncExit || k == CxtThread
}

// Cxt is a context marker. Function and thread markers carry Name;
// instruction and block markers carry Addr. Name aliases slot memory when
// decoded and is only valid until the slot is released.
type Cxt struct {
	Kind CxtKind
	Name []byte
	Addr uint64
}

// Event is one decoded record. Exactly the field matching Tag is meaningful.
type Event struct {
	Tag  Tag
	Mem  Mem
	Comp Comp
	Sync Sync
	Cxt  Cxt
}

// MemEvent builds a memory event.
func MemEvent(kind MemKind, addr uint64, size uint16) Event {
	return Event{Tag: TagMem, Mem: Mem{Kind: kind, Addr: addr, Size: size}}
}

// CompEvent builds a compute event.
func CompEvent(kind CompKind, arity Arity, op Op, width uint16) Event {
	return Event{Tag: TagComp, Comp: Comp{Kind: kind, Arity: arity, Op: op, Width: width}}
}

// SyncEvent builds a synchronization event.
func SyncEvent(kind SyncKind, id uint64) Event {
	return Event{Tag: TagSync, Sync: Sync{Kind: kind, ID: id}}
}

// EnterEvent builds a function-enter marker.
func EnterEvent(name string) Event {
	return Event{Tag: TagCxt, Cxt: Cxt{Kind: CxtFuncEnter, Name: []byte(name)}}
}

// ExitEvent builds a function-exit marker.
func ExitEvent(name string) Event {
	return Event{Tag: TagCxt, Cxt: Cxt{Kind: CxtFuncExit, Name: []byte(name)}}
}

// InstrEvent builds an instruction marker.
func InstrEvent(addr uint64) Event {
	return Event{Tag: TagCxt, Cxt: Cxt{Kind: CxtInstr, Addr: addr}}
}

// BlockEvent builds a basic-block marker.
func BlockEvent(addr uint64) Event {
	return Event{Tag: TagCxt, Cxt: Cxt{Kind: CxtBB, Addr: addr}}
}

// String renders an event for logs and test failures.
func (e Event) String() string {
	switch e.Tag {
	case TagMem:
		kind := "load"
		if e.Mem.IsStore() {
			kind = "store"
		}
		return fmt.Sprintf("%s %#x+%d", kind, e.Mem.Addr, e.Mem.Size)
	case TagComp:
		kind := "iop"
		if e.Comp.IsFloat() {
			kind = "flop"
		}
		return fmt.Sprintf("%s op=%d arity=%d width=%d", kind, e.Comp.Op, e.Comp.Arity, e.Comp.Width)
	case TagSync:
		return fmt.Sprintf("sync %s %d", e.Sync.Kind, e.Sync.ID)
	case TagCxt:
		if e.Cxt.Kind.hasName() {
			return fmt.Sprintf("%s %q", e.Cxt.Kind, e.Cxt.Name)
		}
		return fmt.Sprintf("%s %#x", e.Cxt.Kind, e.Cxt.Addr)
	default:
		return e.Tag.String()
	}
}
