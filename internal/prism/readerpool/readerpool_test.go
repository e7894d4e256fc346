package readerpool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

func TestLazyAllocation(t *testing.T) {
	p := New(4, 100, nil)
	assert.Equal(t, uint64(0), p.Bytes())
	assert.Equal(t, 0, p.Stats().Chunks)
	assert.False(t, p.Contains(Nil, 1))
	assert.Equal(t, 0, p.Len(Nil))
}

func TestChainOperations(t *testing.T) {
	p := New(4, 100, nil)

	head := Nil
	var err error
	for _, r := range []entity.ID{1, 2, 3} {
		head, err = p.Push(head, r)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, p.Len(head))
	assert.Equal(t, []entity.ID{3, 2, 1}, p.Readers(head))
	assert.True(t, p.Contains(head, 2))
	assert.False(t, p.Contains(head, 4))

	assert.Equal(t, 3, p.Release(head))
	st := p.Stats()
	assert.Equal(t, uint64(0), st.InUse)
	assert.Equal(t, uint64(3), st.Peak)
	assert.Equal(t, uint64(3), st.Frees)
}

func TestFreeListReuse(t *testing.T) {
	p := New(4, 100, nil)

	a, err := p.Push(Nil, 1)
	require.NoError(t, err)
	p.Release(a)

	b, err := p.Push(Nil, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b, "released node should be reused first")
	assert.Equal(t, 1, p.Stats().Chunks)
}

func TestGrowthKeepsHandlesStable(t *testing.T) {
	p := New(2, 1000, nil)

	// One chain per reader so every handle is checked independently.
	heads := make([]Handle, 0, 100)
	for i := range 100 {
		h, err := p.Push(Nil, entity.ID(i))
		require.NoError(t, err)
		heads = append(heads, h)
	}

	// 2+4+8+16+32+64 = 126 >= 100
	st := p.Stats()
	assert.Equal(t, 6, st.Chunks)
	assert.Equal(t, uint64(126), st.Capacity)
	assert.Equal(t, 126*NodeSize, p.Bytes())

	for i, h := range heads {
		assert.Equal(t, []entity.ID{entity.ID(i)}, p.Readers(h), "handle %d", h)
	}
}

func TestLocate(t *testing.T) {
	p := New(4, HardMax, nil)
	tests := []struct {
		h     Handle
		chunk int
		off   uint64
	}{
		{0, 0, 0},
		{3, 0, 3},
		{4, 1, 0},
		{11, 1, 7},
		{12, 2, 0},
		{27, 2, 15},
		{28, 3, 0},
	}
	for _, tc := range tests {
		c, off := p.locate(tc.h)
		assert.Equal(t, tc.chunk, c, "handle %d", tc.h)
		assert.Equal(t, tc.off, off, "handle %d", tc.h)
	}
}

func TestHardMaximum(t *testing.T) {
	p := New(2, 5, nil)

	head := Nil
	var err error
	for i := range 5 {
		head, err = p.Push(head, entity.ID(i))
		require.NoError(t, err)
	}
	// 2 + 3 (the second chunk is clipped to the maximum)
	assert.Equal(t, uint64(5), p.Stats().Capacity)

	_, err = p.Push(head, 99)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ResourceExhaustion))

	// Freed capacity is usable again.
	p.Release(head)
	_, err = p.Push(Nil, 99)
	require.NoError(t, err)
}

func TestChargeHook(t *testing.T) {
	var charged []uint64
	budget := errors.New("budget")
	p := New(2, 100, func(bytes uint64) error {
		if len(charged) == 2 {
			return budget
		}
		charged = append(charged, bytes)
		return nil
	})

	head := Nil
	var err error
	for i := range 6 {
		head, err = p.Push(head, entity.ID(i))
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{2 * NodeSize, 4 * NodeSize}, charged)

	_, err = p.Push(head, 7)
	require.ErrorIs(t, err, budget)
	assert.Equal(t, 2, p.Stats().Chunks)
}
