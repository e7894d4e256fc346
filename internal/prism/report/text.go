package report

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/VANDAL/prism/internal/prism/entity"
)

// TextSink writes one block per entity and the summary at the end:
//
//	entity 1 "helper" caller 0 thread 0: iops 0 flops 0 instrs 0 local 0 stored 0 comm 4
//	  <- 0 "main": 4
//
// Producers are listed by id. A producer's name is known once its own
// record went by; until then only the id is printed.
type TextSink struct {
	w     io.Writer
	names map[entity.ID]string
}

// NewTextSink returns a sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w, names: make(map[entity.ID]string)}
}

func (s *TextSink) Entity(rec *entity.Record) error {
	s.names[rec.ID] = rec.Name
	_, err := fmt.Fprintf(s.w, "entity %s %q caller %s thread %d: iops %d flops %d instrs %d local %d stored %d comm %d\n",
		rec.ID, rec.Name, rec.Caller, rec.Thread,
		rec.Iops, rec.Flops, rec.Instrs, rec.LocalBytes, rec.StoreBytes, rec.CommBytes())
	if err != nil {
		return err
	}

	producers := slices.SortedFunc(maps.Keys(rec.CommEdges), cmp.Compare[entity.ID])
	for _, p := range producers {
		if name, ok := s.names[p]; ok {
			_, err = fmt.Fprintf(s.w, "  <- %s %q: %d\n", p, name, rec.CommEdges[p])
		} else {
			_, err = fmt.Fprintf(s.w, "  <- %s: %d\n", p, rec.CommEdges[p])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *TextSink) Finish(sum Summary) error {
	return sum.Format(s.w)
}
