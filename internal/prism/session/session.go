// Package session drives one analysis: it drains an event channel, feeds
// the events to the entity tracker and hands the results to a report sink.
//
// A Session is single-threaded. Consume runs the dispatch loop on the
// caller's goroutine; shadow memory and the tracker are never shared.
package session

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/VANDAL/prism/internal/prism/channel"
	"github.com/VANDAL/prism/internal/prism/config"
	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
	"github.com/VANDAL/prism/internal/prism/report"
	"github.com/VANDAL/prism/internal/prism/shadowmem"
	"github.com/VANDAL/prism/internal/prism/synchrotrace"
	"github.com/VANDAL/prism/internal/prism/tracker"
)

// Result describes what a Consume call processed.
type Result struct {
	Slots  uint64
	Events uint64
}

// Session is one analysis run.
type Session struct {
	cfg     config.Config
	sink    report.Sink
	shadow  *shadowmem.ShadowMemory
	tracker *tracker.Tracker
	trace   *synchrotrace.Generator
	counter event.Counter
	handler event.Handler

	names   map[entity.ID]string
	channel channel.ConsumerStats
	start   time.Time
	closed  bool
}

// New validates cfg and builds the shadow memory and tracker. sink
// receives records as entities finish and the summary on Close.
func New(cfg config.Config, sink report.Sink) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shadow, err := shadowmem.NewShadowMemory(cfg.Shadow)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:   cfg,
		sink:  sink,
		names: make(map[entity.ID]string),
		start: time.Now(),
	}
	s.shadow = shadow
	s.tracker, err = tracker.New(shadow, s, cfg.Tracker)
	if err != nil {
		return nil, err
	}
	handlers := event.Multi{&s.counter, s.tracker}
	if cfg.Trace.Enabled() {
		s.trace, err = synchrotrace.New(cfg.Trace, cfg.Shadow)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, s.trace)
	}
	s.handler = handlers

	log.Debugf("session: %d-bit addresses, %s granularity, shadow cap %d MB",
		cfg.Shadow.AddrBits, cfg.Tracker.Granularity, cfg.Shadow.MaxShadowMB)
	return s, nil
}

// Entity implements tracker.RecordSink. Names are kept so that the summary
// can fold the dependency graph by name.
func (s *Session) Entity(rec *entity.Record) error {
	s.names[rec.ID] = rec.Name
	if s.sink == nil {
		return nil
	}
	return s.sink.Entity(rec)
}

// Consume processes slots from c until the producer finishes. The first
// error ends the loop: the slot it happened in is not released, so the
// producer stalls until the consumer is closed.
func (s *Session) Consume(ctx context.Context, c *channel.Consumer) (Result, error) {
	var res Result
	defer func() { s.channel = c.Stats() }()

	for {
		slot, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}

		res.Slots++
		err = slot.Each(func(ev event.Event) error {
			res.Events++
			return event.Dispatch(s.handler, ev)
		})
		if err != nil {
			return res, err
		}
		if err := c.Release(slot); err != nil {
			return res, err
		}
	}
}

// Serve runs Consume and then disconnects c. A failure to disconnect is
// logged and never replaces the outcome of Consume.
func (s *Session) Serve(ctx context.Context, c *channel.Consumer) (Result, error) {
	res, err := s.Consume(ctx, c)
	if cerr := c.Close(); cerr != nil {
		log.Warnf("session: closing channel: %v", cerr)
	}
	if err != nil && fault.Fatal(err) {
		log.Debugf("session: aborted after %d slots: %v", res.Slots, err)
	}
	return res, err
}

// Summary assembles the current statistics.
func (s *Session) Summary() report.Summary {
	return report.Summary{
		Tracker: s.tracker.Stats(),
		Shadow:  s.shadow.Stats(),
		Names:   s.tracker.Names().Stats(),
		Events:  s.counter.Counts,
		Channel: s.channel,
		Edges: s.tracker.Graph().ByName(func(id entity.ID) (string, bool) {
			name, ok := s.names[id]
			return name, ok
		}),
		Syncs:   s.tracker.Syncs().Vars(),
		Elapsed: time.Since(s.start),
	}
}

// Close finalizes every live entity, completes the thread traces if enabled
// and sends the summary to the sink.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.tracker.Close(); err != nil {
		return err
	}
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			return err
		}
		log.Debugf("session: %d thread traces written to %s",
			len(s.trace.Threads()), s.cfg.Trace.Dir)
	}
	if s.sink == nil {
		return nil
	}
	return s.sink.Finish(s.Summary())
}

// Trace returns the thread-trace generator, nil unless traces are enabled.
func (s *Session) Trace() *synchrotrace.Generator { return s.trace }

// Tracker returns the session's tracker.
func (s *Session) Tracker() *tracker.Tracker { return s.tracker }

// ProduceFunc generates events into a producer. It must not call Finish.
type ProduceFunc func(ctx context.Context, p *channel.Producer) error

// RunInProcess runs produce and a session over an in-process pipe, each on
// its own goroutine, then closes the session. The producer heartbeats while
// produce runs, so a producer that is busy between events is never taken
// for a dead one. When one side fails, the other
// usually sees the pipe break; the returned error is the one that is not a
// transport failure.
func RunInProcess(ctx context.Context, cfg config.Config, sink report.Sink, produce ProduceFunc) (Result, error) {
	s, err := New(cfg, sink)
	if err != nil {
		return Result{}, err
	}
	p, c, err := channel.Pipe(channel.OptionsFrom(cfg.Channel))
	if err != nil {
		return Result{}, err
	}

	var (
		res                    Result
		produceErr, consumeErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stop := keepAlive(gctx, p, cfg.Channel.LivenessTimeout)
		produceErr = produce(gctx, p)
		stop()
		if produceErr != nil {
			if cerr := p.Close(); cerr != nil {
				log.Warnf("session: closing producer: %v", cerr)
			}
			return produceErr
		}
		produceErr = p.Finish(gctx)
		return produceErr
	})
	g.Go(func() error {
		res, consumeErr = s.Serve(gctx, c)
		return consumeErr
	})

	err = g.Wait()
	switch {
	case consumeErr != nil && !knockOn(consumeErr):
		err = consumeErr
	case produceErr != nil && !knockOn(produceErr):
		err = produceErr
	}

	if cerr := s.Close(); cerr != nil {
		if err != nil {
			log.Warnf("session: closing after failure: %v", cerr)
		} else {
			err = cerr
		}
	}
	return res, err
}

// keepAlive heartbeats p on its own goroutine so that a producer busy
// between events is not mistaken for a dead one. The returned function
// stops the heartbeats and waits for the goroutine; it must run before
// Finish or Close.
func keepAlive(ctx context.Context, p *channel.Producer, timeout time.Duration) (stop func()) {
	if timeout <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.KeepAlive(ctx, timeout/3); err != nil {
			log.Debugf("session: heartbeat: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// knockOn reports whether err is what one side sees after the other failed.
func knockOn(err error) bool {
	return fault.Is(err, fault.TransportFailure) || errors.Is(err, context.Canceled)
}
