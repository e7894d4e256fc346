package shadowmem

import (
	"unsafe"

	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
	"github.com/VANDAL/prism/internal/prism/readerpool"
)

// Stats describes shadow-memory usage.
type Stats struct {
	SecondaryMaps uint64 // Allocated secondary maps (K).
	Footprint     uint64 // Bytes charged against the cap.
	WrittenBytes  uint64 // Bytes passed to UpdateWriter.
	ReaderAdds    uint64 // New reader registrations.
	ReaderClears  uint64 // Reader nodes released by writes.
	Readers       readerpool.Stats
}

// ShadowMemory maps byte addresses to ShadowObjects.
//
// See the package documentation for the layout and the budget rules.
type ShadowMemory struct {
	cfg config.Shadow

	secBits uint
	secMask uint64
	limit   uint64 // 1 << addrBits

	primary  []*secondaryMap
	readers  *readerpool.Pool
	maxBytes uint64

	footprint uint64
	stats     Stats
}

// pointerSize is the size of one primary-map slot.
const pointerSize = uint64(unsafe.Sizeof((*secondaryMap)(nil)))

// NewShadowMemory creates a shadow memory with the given geometry.
//
// The primary map is allocated and charged immediately. Secondary maps and
// the reader pool are allocated on demand.
//
// Returns a Configuration error for an invalid geometry and a
// ResourceExhaustion error if the primary map alone exceeds the cap.
//
// Example:
//
//	sm, err := shadowmem.NewShadowMemory(config.Default().Shadow)
//	if err != nil {
//	    return err
//	}
//	_ = sm.UpdateWriter(0x1000, 4, 0)
//	w, _ := sm.WriterOf(0x1002) // 0
func NewShadowMemory(cfg config.Shadow) (*ShadowMemory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sm := &ShadowMemory{
		cfg:      cfg,
		secBits:  cfg.SecondaryBits(),
		secMask:  1<<cfg.SecondaryBits() - 1,
		limit:    1 << cfg.AddrBits,
		maxBytes: cfg.MaxShadowBytes(),
	}

	primaryBytes := (uint64(1) << cfg.PrimaryBits) * pointerSize
	if err := sm.charge("shadowmem.NewShadowMemory", "primary map", primaryBytes); err != nil {
		return nil, err
	}
	sm.primary = make([]*secondaryMap, 1<<cfg.PrimaryBits)

	sm.readers = readerpool.New(cfg.ReaderPoolInitial, cfg.ReaderPoolMax, func(bytes uint64) error {
		return sm.charge("shadowmem.UpdateReader", "reader pool", bytes)
	})
	return sm, nil
}

// charge adds bytes to the footprint or fails without changing it.
func (sm *ShadowMemory) charge(op, subject string, bytes uint64) error {
	if sm.footprint+bytes > sm.maxBytes {
		return fault.Exhausted(op, subject,
			"shadow memory footprint %d + %d exceeds cap %d",
			sm.footprint, bytes, sm.maxBytes).
			WithHint("raise -max-shadow-mb or narrow -addr-bits")
	}
	sm.footprint += bytes
	sm.stats.Footprint = sm.footprint
	return nil
}

// CheckRange validates [addr, addr+n) against the address width.
func (sm *ShadowMemory) CheckRange(addr, n uint64) error {
	return sm.checkRange("shadowmem.CheckRange", addr, n)
}

func (sm *ShadowMemory) checkRange(op string, addr, n uint64) error {
	end := addr + n
	if addr >= sm.limit || end < addr || end > sm.limit {
		return fault.Violation(op, fault.Addr(addr),
			"range of %d bytes beyond the %d-bit address space", n, sm.cfg.AddrBits)
	}
	return nil
}

// secondary returns the secondary map covering addr, allocating it when
// create is set. A nil map with a nil error means "untouched".
func (sm *ShadowMemory) secondary(op string, addr uint64, create bool) (*secondaryMap, error) {
	pm := addr >> sm.secBits
	if m := sm.primary[pm]; m != nil || !create {
		return m, nil
	}

	size := uint64(1) << sm.secBits
	if err := sm.charge(op, fault.Addr(addr), size*ObjectSize); err != nil {
		return nil, err
	}
	m := &secondaryMap{objs: make([]ShadowObject, size)}
	sm.primary[pm] = m
	sm.stats.SecondaryMaps++
	return m, nil
}

// object returns the shadow object of a checked address, or nil if its
// secondary map was never allocated.
func (sm *ShadowMemory) object(addr uint64) *ShadowObject {
	m := sm.primary[addr>>sm.secBits]
	if m == nil {
		return nil
	}
	return &m.objs[addr&sm.secMask]
}

// span walks [addr, addr+n) one secondary map at a time, allocating maps as
// needed, and calls fn for each contiguous run of objects.
func (sm *ShadowMemory) span(op string, addr, n uint64, fn func(objs []ShadowObject) error) error {
	for n > 0 {
		m, err := sm.secondary(op, addr, true)
		if err != nil {
			return err
		}
		off := addr & sm.secMask
		cnt := min(n, uint64(len(m.objs))-off)
		if err := fn(m.objs[off : off+cnt]); err != nil {
			return err
		}
		addr += cnt
		n -= cnt
	}
	return nil
}

// UpdateWriter records writer as the last writer of every byte in
// [addr, addr+n) and clears each byte's reader set.
//
// Parameters:
//   - addr: first byte
//   - n: byte count (0 is a no-op after the range check)
//   - writer: writing entity, entity.Undef for unattributed stores
//
// Returns a ProtocolViolation for an invalid range and a ResourceExhaustion
// error if a secondary map cannot be charged. Bytes before the failing
// secondary map are already updated.
func (sm *ShadowMemory) UpdateWriter(addr, n uint64, writer entity.ID) error {
	const op = "shadowmem.UpdateWriter"
	if err := sm.checkRange(op, addr, n); err != nil {
		return err
	}
	return sm.span(op, addr, n, func(objs []ShadowObject) error {
		for i := range objs {
			o := &objs[i]
			if o.hasReaders() {
				sm.stats.ReaderClears += uint64(sm.readers.Release(o.head()))
				o.readers = 0
			}
			o.setWriter(writer)
		}
		sm.stats.WrittenBytes += uint64(len(objs))
		return nil
	})
}

// UpdateReader adds reader to the reader set of every byte in [addr, addr+n)
// that does not already hold it.
func (sm *ShadowMemory) UpdateReader(addr, n uint64, reader entity.ID) error {
	const op = "shadowmem.UpdateReader"
	if err := sm.checkRange(op, addr, n); err != nil {
		return err
	}
	return sm.span(op, addr, n, func(objs []ShadowObject) error {
		for i := range objs {
			o := &objs[i]
			head := o.head()
			if sm.readers.Contains(head, reader) {
				continue
			}
			h, err := sm.readers.Push(head, reader)
			if err != nil {
				return err
			}
			o.setHead(h)
			sm.stats.ReaderAdds++
		}
		return nil
	})
}

// WriterOf returns the last writer of addr, or entity.Undef if the byte was
// never written. Querying never allocates.
func (sm *ShadowMemory) WriterOf(addr uint64) (entity.ID, error) {
	if err := sm.checkRange("shadowmem.WriterOf", addr, 1); err != nil {
		return entity.Undef, err
	}
	o := sm.object(addr)
	if o == nil {
		return entity.Undef, nil
	}
	return o.Writer(), nil
}

// IsReader reports whether id has read addr since its last write.
func (sm *ShadowMemory) IsReader(addr uint64, id entity.ID) (bool, error) {
	if err := sm.checkRange("shadowmem.IsReader", addr, 1); err != nil {
		return false, err
	}
	o := sm.object(addr)
	if o == nil || !o.hasReaders() {
		return false, nil
	}
	return sm.readers.Contains(o.head(), id), nil
}

// ReadersOf returns the reader set of addr, most recent first.
func (sm *ShadowMemory) ReadersOf(addr uint64) ([]entity.ID, error) {
	if err := sm.checkRange("shadowmem.ReadersOf", addr, 1); err != nil {
		return nil, err
	}
	o := sm.object(addr)
	if o == nil || !o.hasReaders() {
		return nil, nil
	}
	return sm.readers.Readers(o.head()), nil
}

// Footprint returns the bytes currently charged against the cap.
func (sm *ShadowMemory) Footprint() uint64 {
	return sm.footprint
}

// PrimaryFootprint returns the size of the primary map.
func (sm *ShadowMemory) PrimaryFootprint() uint64 {
	return uint64(len(sm.primary)) * pointerSize
}

// SecondaryMapSize returns S, the object count of one secondary map.
func (sm *ShadowMemory) SecondaryMapSize() uint64 {
	return uint64(1) << sm.secBits
}

// Config returns the geometry the shadow memory was built with.
func (sm *ShadowMemory) Config() config.Shadow {
	return sm.cfg
}

// Stats returns a usage snapshot.
func (sm *ShadowMemory) Stats() Stats {
	st := sm.stats
	st.Readers = sm.readers.Stats()
	return st
}
