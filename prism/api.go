package prism

import (
	"context"

	"github.com/VANDAL/prism/internal/prism/channel"
	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
	"github.com/VANDAL/prism/internal/prism/report"
	"github.com/VANDAL/prism/internal/prism/session"
)

// Run traces fn in the current process and returns the analysis.
//
// fn runs on its own goroutine and emits events through p; the analysis
// runs concurrently on another one. Run returns once fn has returned and
// every event has been processed. If fn fails, Run returns its error.
//
// Example:
//
//	rep, err := prism.Run(ctx, prism.DefaultOptions(), func(p *prism.Producer) error {
//		p.EnterFunc("main")
//		p.Store(0x1000, 8)
//		return p.ExitFunc("main")
//	})
func Run(ctx context.Context, opts Options, fn func(p *Producer) error) (*Report, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}

	mem := &report.MemorySink{}
	sink, done, err := outputs(mem, opts)
	if err != nil {
		return nil, err
	}
	defer done()

	_, err = session.RunInProcess(ctx, cfg, sink, func(_ context.Context, p *channel.Producer) error {
		return fn(&Producer{p: p})
	})
	return newReport(mem), err
}

// outputs builds the sink chain for opts. done releases a report file left
// open by a failed analysis.
func outputs(mem *report.MemorySink, opts Options) (report.Sink, func(), error) {
	var text report.Sink
	if opts.Report != nil {
		text = report.NewTextSink(opts.Report)
	}
	if opts.ReportFile == "" {
		return report.Tee(mem, text), func() {}, nil
	}

	f, err := report.NewFileSink(opts.ReportFile, false)
	if err != nil {
		return nil, nil, err
	}
	return report.Tee(mem, text, f), func() { _ = f.Close() }, nil
}

// Listener is the analysis end of a cross-process trace.
type Listener struct {
	c    *channel.Consumer
	cfg  config.Config
	opts Options
}

// Listen creates a trace session in dir. A producer in another process
// attaches with Dial(dir, l.Session(), opts). Only available on unix
// systems.
func Listen(dir string, opts Options) (*Listener, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	c, err := channel.Listen(dir, channel.OptionsFrom(cfg.Channel))
	if err != nil {
		return nil, err
	}
	return &Listener{c: c, cfg: cfg, opts: opts}, nil
}

// Session returns the id a producer passes to Dial.
func (l *Listener) Session() string {
	return l.c.Session()
}

// Serve analyzes the trace until the producer finishes, then releases the
// session's files. A producer that stays silent longer than the liveness
// timeout, or disappears without finishing, ends Serve with a transport
// failure; the partial report is still returned.
func (l *Listener) Serve(ctx context.Context) (*Report, error) {
	mem := &report.MemorySink{}
	sink, done, err := outputs(mem, l.opts)
	if err != nil {
		return nil, err
	}
	defer done()

	s, err := session.New(l.cfg, sink)
	if err != nil {
		return nil, err
	}
	_, err = s.Serve(ctx, l.c)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return newReport(mem), err
}

// Close releases the session without serving it.
func (l *Listener) Close() error {
	return l.c.Close()
}

// Dial attaches a producer to the session created by Listen in another
// process. Attaching is retried briefly while the session is being set up.
func Dial(dir, id string, opts Options) (*Producer, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	p, err := channel.Dial(dir, id, channel.OptionsFrom(cfg.Channel))
	if err != nil {
		return nil, err
	}
	return &Producer{p: p}, nil
}

// IsFatal reports whether err ended an analysis because of the trace or
// the transport, as opposed to a configuration or I/O problem.
func IsFatal(err error) bool {
	return fault.Fatal(err)
}

// Entity is the analysis result for one entity.
type Entity struct {
	ID     uint32
	Name   string
	Caller uint32 // Undef when the entity had no caller.
	Thread uint32

	Iops       uint64
	Flops      uint64
	Instrs     uint64
	LocalBytes uint64 // Bytes loaded that the entity wrote or read before.
	StoreBytes uint64

	// Inputs maps producer entity ids to the bytes this entity loaded from
	// them. Bytes nobody wrote are attributed to Undef.
	Inputs map[uint32]uint64
}

// Edge is the communication between two entity names, summed over all
// their activations.
type Edge struct {
	Consumer string
	Producer string
	Bytes    uint64
}

// Report is the result of an analysis.
type Report struct {
	Entities []Entity // In finalization order.
	Edges    []Edge   // Heaviest first.

	Events     uint64
	LocalBytes uint64
	CommBytes  uint64

	summary report.Summary
}

func newReport(mem *report.MemorySink) *Report {
	r := &Report{}
	for _, rec := range mem.Records() {
		e := Entity{
			ID:         uint32(rec.ID),
			Name:       rec.Name,
			Caller:     uint32(rec.Caller),
			Thread:     rec.Thread,
			Iops:       rec.Iops,
			Flops:      rec.Flops,
			Instrs:     rec.Instrs,
			LocalBytes: rec.LocalBytes,
			StoreBytes: rec.StoreBytes,
			Inputs:     make(map[uint32]uint64, len(rec.CommEdges)),
		}
		for id, n := range rec.CommEdges {
			e.Inputs[uint32(id)] = n
		}
		r.Entities = append(r.Entities, e)
	}

	if sum := mem.Summary(); sum != nil {
		r.summary = *sum
		r.Events = sum.Events.Total()
		r.LocalBytes = sum.Tracker.LocalBytes
		r.CommBytes = sum.Tracker.CommBytes
		for _, e := range sum.Edges {
			r.Edges = append(r.Edges, Edge{Consumer: e.Consumer, Producer: e.Producer, Bytes: e.Bytes})
		}
	}
	return r
}

// Lookup returns the first entity called name, or nil.
func (r *Report) Lookup(name string) *Entity {
	for i := range r.Entities {
		if r.Entities[i].Name == name {
			return &r.Entities[i]
		}
	}
	return nil
}

// Undef is the id standing for "no entity" in Entity.Caller and
// Entity.Inputs.
const Undef = uint32(entity.Undef)

// String returns the text summary.
func (r *Report) String() string {
	return r.summary.String()
}
