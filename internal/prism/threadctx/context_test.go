package threadctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

func TestNewContextIsEmpty(t *testing.T) {
	c := New(4)
	assert.Equal(t, uint32(4), c.TID)
	assert.Equal(t, entity.Undef, c.Current())
	assert.Nil(t, c.CurrentRecord())
	assert.Equal(t, 0, c.Depth())
}

func TestPushPopCallers(t *testing.T) {
	c := New(0)

	main := c.Push(0, "main")
	assert.Equal(t, entity.Undef, main.Caller)
	helper := c.Push(1, "helper")
	assert.Equal(t, entity.ID(0), helper.Caller)
	leaf := c.Push(2, "leaf")
	assert.Equal(t, entity.ID(1), leaf.Caller)

	assert.Equal(t, []entity.ID{0, 1, 2}, c.Stack())
	assert.Same(t, leaf, c.CurrentRecord())

	rec, err := c.Pop()
	require.NoError(t, err)
	assert.Same(t, leaf, rec)
	assert.Equal(t, entity.ID(1), c.Current())

	_, ok := c.Record(2)
	assert.False(t, ok, "popped entity leaves the table")
	got, ok := c.Record(0)
	assert.True(t, ok)
	assert.Same(t, main, got)
}

func TestPopEmptyIsViolation(t *testing.T) {
	c := New(9)
	for range 2 {
		rec, err := c.Pop()
		require.Error(t, err)
		assert.Nil(t, rec)
		assert.True(t, fault.Is(err, fault.ProtocolViolation))
		assert.Contains(t, err.Error(), "tid 9")
	}
}

func TestRetire(t *testing.T) {
	c := New(1)
	c.Push(0, "a")
	c.Push(1, "b")
	c.Push(2, "c")

	recs := c.Retire()
	require.Len(t, recs, 3)
	assert.Equal(t, entity.ID(2), recs[0].ID)
	assert.Equal(t, entity.ID(0), recs[2].ID)
	assert.Equal(t, 0, c.Depth())
	assert.Empty(t, c.Retire())
}

func TestBlockMarker(t *testing.T) {
	c := New(0)
	c.MarkBlock(0x40)
	isBlock, _ := c.BlockTop()
	assert.False(t, isBlock, "no live entity to mark")

	c.Push(0, "0x40")
	c.MarkBlock(0x40)
	isBlock, addr := c.BlockTop()
	assert.True(t, isBlock)
	assert.Equal(t, uint64(0x40), addr)

	c.Push(1, "callee")
	isBlock, _ = c.BlockTop()
	assert.False(t, isBlock)
}
