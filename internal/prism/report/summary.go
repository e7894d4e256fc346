// Package report renders the results of an analysis session.
//
// A Sink receives every finalized entity record as it is produced and one
// Summary when the session ends. TextSink writes a line-oriented report,
// FileSink puts it in a file (optionally zstd compressed) and MemorySink keeps
// everything for tests and embedders.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/VANDAL/prism/internal/prism/channel"
	"github.com/VANDAL/prism/internal/prism/depgraph"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/namedepot"
	"github.com/VANDAL/prism/internal/prism/shadowmem"
	"github.com/VANDAL/prism/internal/prism/syncshadow"
	"github.com/VANDAL/prism/internal/prism/tracker"
)

// Sink consumes analysis results.
type Sink interface {
	// Entity is called once per finalized record, in finalization order.
	Entity(rec *entity.Record) error
	// Finish is called once after the last record.
	Finish(s Summary) error
}

// MaxEdges caps the name edges printed by Summary.Format.
const MaxEdges = 25

// Summary aggregates a session.
type Summary struct {
	Tracker tracker.Stats
	Shadow  shadowmem.Stats
	Names   namedepot.Stats
	Events  event.Counts
	Channel channel.ConsumerStats

	// Edges is the communication graph folded by entity name, heaviest
	// first.
	Edges []depgraph.NamedEdge
	Syncs []*syncshadow.SyncVar

	Elapsed time.Duration
}

// Format writes the summary in human-readable form. It stops at the first
// write error and returns it.
func (s Summary) Format(w io.Writer) error {
	out := &errWriter{w: w}
	out.printf("==================\n")
	out.printf("PRISM SUMMARY (%s)\n", s.Elapsed.Round(time.Millisecond))
	out.printf("==================\n")

	e := s.Events
	out.printf("events: %d total\n", e.Total())
	out.printf("  loads %d (%d bytes), stores %d (%d bytes)\n",
		e.Loads, e.LoadBytes, e.Stores, e.StoreBytes)
	out.printf("  iops %d, flops %d, instrs %d, blocks %d\n", e.Iops, e.Flops, e.Instrs, e.Blocks)
	out.printf("  enters %d, exits %d\n", e.Enters, e.Exits)
	for k := event.SyncKind(1); k < event.NumSyncKinds; k++ {
		if n := e.Sync[k]; n > 0 {
			out.printf("  %s %d\n", k, n)
		}
	}

	t := s.Tracker
	out.printf("entities: %d entered, %d finalized, %d threads, max depth %d\n",
		t.Entities, t.Finalized, t.Threads, t.MaxDepth)
	out.printf("attribution: %d local bytes, %d communicated bytes (%.1f%% local)\n",
		t.LocalBytes, t.CommBytes, 100*t.LocalRatio())
	if u := t.Unattributed; u != (tracker.Unattributed{}) {
		out.printf("unattributed: iops %d, flops %d, instrs %d, load bytes %d, store bytes %d\n",
			u.Iops, u.Flops, u.Instrs, u.LoadBytes, u.StoreBytes)
	}

	if len(s.Edges) > 0 {
		out.printf("edges (consumer <- producer):\n")
		for i, edge := range s.Edges {
			if i == MaxEdges {
				out.printf("  ... %d more\n", len(s.Edges)-MaxEdges)
				break
			}
			out.printf("  %s <- %s: %d bytes\n", edge.Consumer, edge.Producer, edge.Bytes)
		}
	}

	if len(s.Syncs) > 0 {
		out.printf("sync objects:\n")
		for _, sv := range s.Syncs {
			out.printf("  %#x: %d ops by %d threads", sv.ID, sv.Total(), len(sv.Threads()))
			if sv.Unbalanced > 0 {
				out.printf(", %d unbalanced releases", sv.Unbalanced)
			}
			out.printf("\n")
		}
	}

	sh := s.Shadow
	out.printf("shadow memory: %d secondary maps, %s footprint, %d reader nodes in use (peak %d)\n",
		sh.SecondaryMaps, formatBytes(sh.Footprint), sh.Readers.InUse, sh.Readers.Peak)
	out.printf("names: %d distinct (%s)\n", s.Names.Names, formatBytes(s.Names.Bytes))
	if s.Channel.Slots > 0 {
		out.printf("channel: %d slots, %d records, %d heartbeats\n",
			s.Channel.Slots, s.Channel.Records, s.Channel.Heartbeats)
	}
	return out.err
}

// String returns the formatted summary.
func (s Summary) String() string {
	var b strings.Builder
	_ = s.Format(&b)
	return b.String()
}

// errWriter remembers the first write error and turns later writes into
// no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
