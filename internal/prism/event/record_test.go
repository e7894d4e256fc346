package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/fault"
)

func TestEncodeDecode(t *testing.T) {
	tests := map[string]Event{
		"load":       MemEvent(Load, 0x3fffffffff, 8),
		"store":      MemEvent(Store, 0x1000, 4),
		"iop":        CompEvent(IOP, Binary, OpAdd, 32),
		"flop":       CompEvent(FLOP, Quaternary, OpMov, 64),
		"spawn":      SyncEvent(SyncSpawn, 3),
		"swap":       SyncEvent(SyncSwap, 1),
		"condwait":   {Tag: TagSync, Sync: Sync{Kind: SyncCondWait, ID: 0xabc, Aux: 0xdef}},
		"enter":      EnterEvent("main"),
		"exit":       ExitEvent("main"),
		"instr":      InstrEvent(0x401000),
		"bb":         BlockEvent(0x401010),
		"empty name": {Tag: TagCxt, Cxt: Cxt{Kind: CxtThread}},
	}

	for name, ev := range tests {
		t.Run(name, func(t *testing.T) {
			rec := make([]byte, RecordSize)
			arena := make([]byte, 64)
			used, err := Encode(rec, ev, arena, 10)
			require.NoError(t, err)
			assert.Equal(t, 10+len(ev.Cxt.Name), used)

			got, err := Decode(rec, arena)
			require.NoError(t, err)
			assert.Equal(t, ev, got)
		})
	}
}

func TestEncodeClearsStaleBytes(t *testing.T) {
	rec := make([]byte, RecordSize)
	for i := range rec {
		rec[i] = 0xff
	}
	_, err := Encode(rec, CompEvent(IOP, Unary, OpSub, 8), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, RecordSize-6), rec[6:])
}

func TestEncodeArena(t *testing.T) {
	rec := make([]byte, RecordSize)
	arena := make([]byte, 8)

	used, err := Encode(rec, EnterEvent("abcde"), arena, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, used)

	_, err = Encode(rec, EnterEvent("fghij"), arena, used)
	assert.True(t, errors.Is(err, ErrArenaFull))

	_, err = Encode(rec, EnterEvent("much too long"), arena, 0)
	assert.True(t, fault.Is(err, fault.ProtocolViolation))
}

func TestDecodeRejects(t *testing.T) {
	rec := func(b ...byte) []byte {
		r := make([]byte, RecordSize)
		copy(r, b)
		return r
	}
	tests := map[string][]byte{
		"short":          make([]byte, RecordSize-1),
		"undef tag":      rec(0),
		"control flow":   rec(byte(TagCF), 1),
		"unknown tag":    rec(9),
		"mem kind":       rec(byte(TagMem), 3),
		"comp kind":      rec(byte(TagComp), 0),
		"comp arity":     rec(byte(TagComp), byte(IOP), 5),
		"comp op":        rec(byte(TagComp), byte(IOP), 1, 7),
		"sync undef":     rec(byte(TagSync), 0),
		"sync unknown":   rec(byte(TagSync), byte(NumSyncKinds)),
		"cxt kind":       rec(byte(TagCxt), 6),
		"name off arena": rec(byte(TagCxt), byte(CxtFuncEnter), 4, 0, 62, 0, 0, 0),
	}

	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(r, make([]byte, 64))
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.ProtocolViolation), "got %v", err)
		})
	}
}

func TestEncodeUnknownTag(t *testing.T) {
	_, err := Encode(make([]byte, RecordSize), Event{Tag: TagCF}, nil, 0)
	assert.True(t, fault.Is(err, fault.ProtocolViolation))
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "store 0x1000+4", MemEvent(Store, 0x1000, 4).String())
	assert.Equal(t, `enter "main"`, EnterEvent("main").String())
	assert.Equal(t, "bb 0x40", BlockEvent(0x40).String())
	assert.Equal(t, "sync condsig 2", SyncEvent(SyncCondSignal, 2).String())
}
