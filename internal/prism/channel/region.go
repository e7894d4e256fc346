package channel

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/mod/semver"

	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// Region header layout:
//
//	0-7    magic "PRSMSHM\0"
//	8-39   protocol version, NUL padded
//	40-43  slot count
//	44-47  records per slot
//	48-51  name arena bytes per slot
//
// Each slot starts with a 16 byte header (record count at 0-3, arena fill at
// 4-7), followed by the records and the name arena.
const (
	regionHeaderSize = 64
	slotHeaderSize   = 16
	versionOffset    = 8
	versionLen       = 32
	geometryOffset   = versionOffset + versionLen
)

var magic = [8]byte{'P', 'R', 'S', 'M', 'S', 'H', 'M', 0}

// Layout is the slot geometry of a region.
type Layout struct {
	Slots     int // Number of slots.
	Records   int // Records per slot.
	NameBytes int // Name arena bytes per slot.
}

// LayoutFrom extracts the slot geometry from a channel configuration.
func LayoutFrom(cfg config.Channel) Layout {
	return Layout{Slots: cfg.Slots, Records: cfg.SlotRecords, NameBytes: cfg.SlotNameBytes}
}

func (l Layout) validate(op string) error {
	switch {
	case l.Slots < 1 || l.Slots > config.MaxSlots:
		return fault.Violation(op, "", "slot count %d out of range [1, %d]", l.Slots, config.MaxSlots)
	case l.Records < 1:
		return fault.Violation(op, "", "slot holds no records")
	case l.NameBytes < 0:
		return fault.Violation(op, "", "negative name arena")
	}
	return nil
}

// SlotSize returns the bytes occupied by one slot, 8 byte aligned.
func (l Layout) SlotSize() int {
	n := slotHeaderSize + l.Records*event.RecordSize + l.NameBytes
	return (n + 7) &^ 7
}

// Size returns the bytes occupied by the whole region.
func (l Layout) Size() int {
	return regionHeaderSize + l.Slots*l.SlotSize()
}

// Region is the data plane shared by one producer and one consumer. Its
// memory is either a heap buffer or a shared mapping.
type Region struct {
	buf     []byte
	layout  Layout
	version string
}

// NewRegion formats buf as a region with the given geometry.
func NewRegion(buf []byte, layout Layout, version string) (*Region, error) {
	const op = "channel.NewRegion"
	if err := layout.validate(op); err != nil {
		return nil, err
	}
	if !semver.IsValid(version) || len(version) > versionLen {
		return nil, fault.Configf(op, "invalid protocol version %q", version)
	}
	if len(buf) < layout.Size() {
		return nil, fault.Exhausted(op, "", "buffer of %d bytes cannot hold %d", len(buf), layout.Size())
	}

	clear(buf[:regionHeaderSize])
	copy(buf, magic[:])
	copy(buf[versionOffset:], version)
	binary.LittleEndian.PutUint32(buf[geometryOffset:], uint32(layout.Slots))
	binary.LittleEndian.PutUint32(buf[geometryOffset+4:], uint32(layout.Records))
	binary.LittleEndian.PutUint32(buf[geometryOffset+8:], uint32(layout.NameBytes))

	r := &Region{buf: buf, layout: layout, version: version}
	for i := range layout.Slots {
		r.slot(i).reset()
	}
	return r, nil
}

// OpenRegion attaches to a region formatted by the other side. The header
// must carry the magic and a protocol version with the same major as
// version.
func OpenRegion(buf []byte, version string) (*Region, error) {
	const op = "channel.OpenRegion"
	if len(buf) < regionHeaderSize || !bytes.Equal(buf[:len(magic)], magic[:]) {
		return nil, fault.Violation(op, "", "not a prism event region")
	}

	peer := string(bytes.TrimRight(buf[versionOffset:versionOffset+versionLen], "\x00"))
	if !semver.IsValid(peer) {
		return nil, fault.Violation(op, "", "peer protocol version %q is not semver", peer)
	}
	if semver.Major(peer) != semver.Major(version) {
		return nil, fault.Violation(op, "", "peer speaks protocol %s, this side %s", peer, version).
			WithHint("Rebuild the instrumentation against a matching prism release.")
	}

	layout := Layout{
		Slots:     int(binary.LittleEndian.Uint32(buf[geometryOffset:])),
		Records:   int(binary.LittleEndian.Uint32(buf[geometryOffset+4:])),
		NameBytes: int(binary.LittleEndian.Uint32(buf[geometryOffset+8:])),
	}
	if err := layout.validate(op); err != nil {
		return nil, err
	}
	if len(buf) < layout.Size() {
		return nil, fault.Violation(op, "", "region of %d bytes is shorter than its geometry (%d)",
			len(buf), layout.Size())
	}
	return &Region{buf: buf, layout: layout, version: peer}, nil
}

// Layout returns the slot geometry.
func (r *Region) Layout() Layout { return r.layout }

// Version returns the protocol version written in the header.
func (r *Region) Version() string { return r.version }

func (r *Region) slot(i int) slotView {
	size := r.layout.SlotSize()
	off := regionHeaderSize + i*size
	b := r.buf[off : off+size]
	recEnd := slotHeaderSize + r.layout.Records*event.RecordSize
	return slotView{
		hdr:   b[:slotHeaderSize],
		recs:  b[slotHeaderSize:recEnd],
		arena: b[recEnd : recEnd+r.layout.NameBytes],
	}
}

// slotView is a window over one slot of a region.
type slotView struct {
	hdr   []byte
	recs  []byte
	arena []byte
}

func (s slotView) used() int      { return int(binary.LittleEndian.Uint32(s.hdr)) }
func (s slotView) namesUsed() int { return int(binary.LittleEndian.Uint32(s.hdr[4:])) }

func (s slotView) setUsed(records, names int) {
	binary.LittleEndian.PutUint32(s.hdr, uint32(records))
	binary.LittleEndian.PutUint32(s.hdr[4:], uint32(names))
}

func (s slotView) reset() { s.setUsed(0, 0) }

func (s slotView) capacity() int { return len(s.recs) / event.RecordSize }

func (s slotView) record(i int) []byte {
	return s.recs[i*event.RecordSize : (i+1)*event.RecordSize]
}
