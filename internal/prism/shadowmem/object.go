package shadowmem

import (
	"unsafe"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/readerpool"
)

// ShadowObject is the shadow state of one byte.
//
// Layout (8 bytes):
//   - writer: last writer id + 1 (0 = no writer)
//   - readers: reader chain handle + 1 (0 = no readers)
//
// Both fields are stored off by one so that the zero value is the sentinel
// state. entity.Undef and readerpool.Nil are both 0xFFFFFFFF and wrap to 0.
type ShadowObject struct {
	writer  uint32
	readers uint32
}

// ObjectSize is sizeof(ShadowObject).
const ObjectSize = uint64(unsafe.Sizeof(ShadowObject{}))

// Writer returns the last writer, or entity.Undef.
func (o *ShadowObject) Writer() entity.ID {
	return entity.ID(o.writer - 1)
}

func (o *ShadowObject) setWriter(id entity.ID) {
	o.writer = uint32(id) + 1
}

func (o *ShadowObject) head() readerpool.Handle {
	return readerpool.Handle(o.readers - 1)
}

func (o *ShadowObject) setHead(h readerpool.Handle) {
	o.readers = uint32(h) + 1
}

// hasReaders reports whether the reader chain is non-empty.
func (o *ShadowObject) hasReaders() bool {
	return o.readers != 0
}

// secondaryMap is the dense block behind one primary slot.
type secondaryMap struct {
	objs []ShadowObject
}
