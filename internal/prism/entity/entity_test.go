package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/fault"
)

func TestAllocatorStartsAtZero(t *testing.T) {
	a := NewAllocator()
	for want := ID(0); want < 100; want++ {
		id, err := a.Next()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, uint64(100), a.Issued())
}

func TestAllocatorOverflowIsFatal(t *testing.T) {
	a := NewAllocatorAt(Undef - 2)

	id, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, Undef-2, id)

	id, err = a.Next()
	require.NoError(t, err)
	assert.Equal(t, Undef-1, id)

	for range 3 {
		id, err = a.Next()
		require.Error(t, err)
		assert.Equal(t, Undef, id)
		assert.True(t, fault.Is(err, fault.ResourceExhaustion))
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "42", ID(42).String())
	assert.Equal(t, "<undef>", Undef.String())
	assert.False(t, Undef.Valid())
	assert.True(t, ID(0).Valid())
}

func TestRecord(t *testing.T) {
	r := NewRecord(3, "helper", 1, 0)
	r.AddComm(1, 4)
	r.AddComm(1, 2)
	r.AddComm(Undef, 1)

	assert.Equal(t, uint64(6), r.CommEdges[1])
	assert.Equal(t, uint64(7), r.CommBytes())

	assert.False(t, r.Finalized())
	assert.True(t, r.Finalize())
	assert.False(t, r.Finalize())
	assert.True(t, r.Finalized())
}
