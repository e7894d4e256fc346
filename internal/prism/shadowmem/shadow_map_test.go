package shadowmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// smallConfig gives 256 secondary maps of 4096 objects each.
func smallConfig() config.Shadow {
	return config.Shadow{
		AddrBits:          20,
		PrimaryBits:       8,
		MaxShadowMB:       1,
		ReaderPoolInitial: 16,
		ReaderPoolMax:     1 << 20,
	}
}

func newSmall(t *testing.T) *ShadowMemory {
	t.Helper()
	sm, err := NewShadowMemory(smallConfig())
	require.NoError(t, err)
	return sm
}

func TestZeroValueIsSentinel(t *testing.T) {
	var o ShadowObject
	assert.Equal(t, entity.Undef, o.Writer())
	assert.False(t, o.hasReaders())
	assert.Equal(t, uint64(8), ObjectSize)
}

func TestUntouchedAddress(t *testing.T) {
	sm := newSmall(t)

	w, err := sm.WriterOf(0x1234)
	require.NoError(t, err)
	assert.Equal(t, entity.Undef, w)

	r, err := sm.IsReader(0x1234, 0)
	require.NoError(t, err)
	assert.False(t, r)

	assert.Equal(t, uint64(0), sm.Stats().SecondaryMaps, "queries must not allocate")
}

func TestWriteThenQuery(t *testing.T) {
	sm := newSmall(t)

	for _, addr := range []uint64{0, 1, 0x7ff, 0x1000, 0xfffff} {
		require.NoError(t, sm.UpdateWriter(addr, 1, 7))

		w, err := sm.WriterOf(addr)
		require.NoError(t, err)
		assert.Equal(t, entity.ID(7), w, "addr %#x", addr)

		for _, id := range []entity.ID{0, 7, 8, entity.Undef} {
			r, err := sm.IsReader(addr, id)
			require.NoError(t, err)
			assert.False(t, r, "addr %#x id %d", addr, id)
		}
	}
}

func TestWriteClearsReaders(t *testing.T) {
	sm := newSmall(t)

	require.NoError(t, sm.UpdateWriter(0x100, 4, 0))
	require.NoError(t, sm.UpdateReader(0x100, 4, 1))
	require.NoError(t, sm.UpdateReader(0x100, 4, 2))
	require.NoError(t, sm.UpdateReader(0x100, 4, 1))

	readers, err := sm.ReadersOf(0x102)
	require.NoError(t, err)
	assert.Equal(t, []entity.ID{2, 1}, readers, "duplicate reader must not be added twice")
	assert.Equal(t, uint64(8), sm.Stats().ReaderAdds)

	require.NoError(t, sm.UpdateWriter(0x100, 2, 3))

	for addr := uint64(0x100); addr < 0x102; addr++ {
		w, _ := sm.WriterOf(addr)
		assert.Equal(t, entity.ID(3), w)
		r, _ := sm.IsReader(addr, 1)
		assert.False(t, r)
	}
	// Bytes outside the write keep their readers.
	r, err := sm.IsReader(0x103, 2)
	require.NoError(t, err)
	assert.True(t, r)

	st := sm.Stats()
	assert.Equal(t, uint64(4), st.ReaderClears)
	assert.Equal(t, uint64(4), st.Readers.InUse)
}

func TestSecondaryBoundaryIsolation(t *testing.T) {
	sm := newSmall(t)
	s := sm.SecondaryMapSize()
	require.Equal(t, uint64(4096), s)

	require.NoError(t, sm.UpdateWriter(s-1, 1, 1))
	require.NoError(t, sm.UpdateWriter(s, 1, 2))
	require.NoError(t, sm.UpdateReader(s-1, 1, 5))

	w, _ := sm.WriterOf(s - 1)
	assert.Equal(t, entity.ID(1), w)
	w, _ = sm.WriterOf(s)
	assert.Equal(t, entity.ID(2), w)

	r, _ := sm.IsReader(s-1, 5)
	assert.True(t, r)
	r, _ = sm.IsReader(s, 5)
	assert.False(t, r)
	assert.Equal(t, uint64(2), sm.Stats().SecondaryMaps)

	// A single write spanning the boundary touches both maps.
	require.NoError(t, sm.UpdateWriter(s-2, 4, 9))
	for addr := s - 2; addr < s+2; addr++ {
		w, _ := sm.WriterOf(addr)
		assert.Equal(t, entity.ID(9), w, "addr %#x", addr)
	}
	r, _ = sm.IsReader(s-1, 5)
	assert.False(t, r)
}

func TestFootprintAccounting(t *testing.T) {
	sm := newSmall(t)
	s := sm.SecondaryMapSize()
	primary := sm.PrimaryFootprint()
	assert.Equal(t, uint64(256)*pointerSize, primary)
	assert.Equal(t, primary, sm.Footprint())

	for k := uint64(1); k <= 5; k++ {
		require.NoError(t, sm.UpdateWriter((k-1)*s, 1, 0))
		assert.Equal(t, primary+k*s*ObjectSize, sm.Footprint())
	}

	// Touching an allocated map again charges nothing.
	require.NoError(t, sm.UpdateWriter(10, 100, 0))
	assert.Equal(t, primary+5*s*ObjectSize, sm.Footprint())
}

func TestFootprintCapCrossing(t *testing.T) {
	sm := newSmall(t)
	s := sm.SecondaryMapSize()
	capBytes := smallConfig().MaxShadowBytes()
	fits := (capBytes - sm.PrimaryFootprint()) / (s * ObjectSize)
	require.Positive(t, fits)

	for k := range fits {
		require.NoError(t, sm.UpdateWriter(k*s, 1, 0), "map %d", k)
	}
	before := sm.Footprint()

	err := sm.UpdateWriter(fits*s, 1, 0)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ResourceExhaustion))
	assert.Contains(t, err.Error(), fault.Addr(fits*s))
	assert.Equal(t, before, sm.Footprint())
	assert.Equal(t, fits, sm.Stats().SecondaryMaps)

	// Allocated maps keep working.
	require.NoError(t, sm.UpdateWriter(0, 8, 1))
}

func TestInvalidAddress(t *testing.T) {
	sm := newSmall(t)
	limit := uint64(1) << 20

	tests := map[string]func() error{
		"write at limit":    func() error { return sm.UpdateWriter(limit, 1, 0) },
		"write across":      func() error { return sm.UpdateWriter(limit-2, 4, 0) },
		"read at limit":     func() error { return sm.UpdateReader(limit, 1, 0) },
		"writer beyond":     func() error { _, err := sm.WriterOf(limit + 5); return err },
		"is reader beyond":  func() error { _, err := sm.IsReader(1<<40, 0); return err },
		"wrapping range":    func() error { return sm.UpdateWriter(10, ^uint64(0), 0) },
		"check range wraps": func() error { return sm.CheckRange(^uint64(0), 2) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.ProtocolViolation), "got %v", err)
		})
	}

	require.NoError(t, sm.UpdateWriter(limit-1, 1, 0))
	require.NoError(t, sm.CheckRange(0, limit))
}

func TestPrimaryMapExceedsCap(t *testing.T) {
	cfg := config.Default().Shadow
	cfg.AddrBits = 62
	cfg.PrimaryBits = 30
	cfg.MaxShadowMB = 16

	_, err := NewShadowMemory(cfg)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ResourceExhaustion))
}

func TestInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.PrimaryBits = 20
	_, err := NewShadowMemory(cfg)
	assert.True(t, fault.Is(err, fault.Configuration))
}

func TestReaderPoolLimit(t *testing.T) {
	cfg := smallConfig()
	cfg.ReaderPoolInitial = 2
	cfg.ReaderPoolMax = 4
	sm, err := NewShadowMemory(cfg)
	require.NoError(t, err)

	require.NoError(t, sm.UpdateReader(0, 4, 1))
	err = sm.UpdateReader(4, 1, 1)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.ResourceExhaustion))

	// A write frees nodes for reuse.
	require.NoError(t, sm.UpdateWriter(0, 1, 0))
	require.NoError(t, sm.UpdateReader(4, 1, 1))
}

func TestReaderPoolChargedAgainstCap(t *testing.T) {
	cfg := smallConfig()
	sm, err := NewShadowMemory(cfg)
	require.NoError(t, err)

	require.NoError(t, sm.UpdateWriter(0, 1, 0))
	base := sm.Footprint()
	require.NoError(t, sm.UpdateReader(0, 1, 1))
	assert.Equal(t, base+16*8, sm.Footprint())
}
