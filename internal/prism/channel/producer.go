package channel

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// ProducerStats counts producer activity.
type ProducerStats struct {
	Events     uint64 // Events encoded.
	Slots      uint64 // Slots handed to the consumer.
	Stalls     uint64 // Times Emit blocked waiting for a drained slot.
	Heartbeats uint64 // Heartbeats delivered.
}

// Producer fills region slots in circular order and hands them to the
// consumer. A Producer is not safe for concurrent use, except for Heartbeat.
type Producer struct {
	region  *Region
	full    Signaler
	empty   Waiter
	release func() error

	idx      int
	cur      slotView
	used     int
	names    int
	inFlight int
	finished bool
	closed   bool

	stats      ProducerStats
	heartbeats atomic.Uint64
}

func newProducer(region *Region, full Signaler, empty Waiter, release func() error) *Producer {
	return &Producer{
		region:  region,
		full:    full,
		empty:   empty,
		release: release,
		cur:     region.slot(0),
	}
}

// Emit appends ev to the active slot. A full slot is handed over first; if
// every slot is with the consumer, Emit blocks until the oldest one comes
// back.
func (p *Producer) Emit(ev event.Event) error {
	const op = "channel.Producer.Emit"
	if p.finished {
		return fault.Violation(op, "", "emit after finish")
	}

	for {
		if p.used == p.cur.capacity() {
			if err := p.flush(op); err != nil {
				return err
			}
			continue
		}
		names, err := event.Encode(p.cur.record(p.used), ev, p.cur.arena, p.names)
		if errors.Is(err, event.ErrArenaFull) {
			if err := p.flush(op); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		p.names = names
		p.used++
		p.stats.Events++
		return nil
	}
}

// flush hands the active slot to the consumer and moves to the next one.
func (p *Producer) flush(op string) error {
	if err := p.handOver(op); err != nil {
		return err
	}
	p.idx = (p.idx + 1) % p.region.layout.Slots
	p.cur = p.region.slot(p.idx)
	if p.inFlight < p.region.layout.Slots {
		return nil
	}

	// The slot about to be reused is the oldest one in flight, and the
	// consumer releases slots in order.
	p.stats.Stalls++
	v, err := p.empty.Wait(context.Background(), 0)
	switch {
	case errors.Is(err, io.EOF):
		return fault.Transport(op, "consumer", io.ErrUnexpectedEOF)
	case err != nil:
		return fault.Transport(op, "consumer", err)
	case v != uint32(p.idx):
		return fault.Violation(op, fault.ID("slot", uint64(v)), "released out of order, expected %d", p.idx)
	}
	p.inFlight--
	return nil
}

func (p *Producer) handOver(op string) error {
	p.cur.setUsed(p.used, p.names)
	if err := p.full.Signal(uint32(p.idx)); err != nil {
		return fault.Transport(op, fault.ID("slot", uint64(p.idx)), err)
	}
	p.inFlight++
	p.stats.Slots++
	p.used, p.names = 0, 0
	return nil
}

// Heartbeat tells the consumer the producer is alive. It never blocks; a
// heartbeat that does not fit is dropped because the consumer has pending
// slots to read anyway.
func (p *Producer) Heartbeat() error {
	ok, err := p.full.TrySignal(Heartbeat)
	if err != nil {
		return fault.Transport("channel.Producer.Heartbeat", "consumer", err)
	}
	if ok {
		p.heartbeats.Add(1)
	}
	return nil
}

// KeepAlive sends a heartbeat every interval until ctx is done or a
// heartbeat fails. It is meant to run on its own goroutine while the
// producer is idle or busy outside Emit.
func (p *Producer) KeepAlive(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Heartbeat(); err != nil {
				return err
			}
		}
	}
}

// Finish hands over the partial active slot, sends the finished sentinel
// and waits for the consumer to disconnect before releasing the transport.
func (p *Producer) Finish(ctx context.Context) error {
	const op = "channel.Producer.Finish"
	if p.finished {
		return nil
	}
	p.finished = true

	if p.used > 0 {
		if err := p.handOver(op); err != nil {
			p.Close()
			return err
		}
	}
	if err := p.full.Signal(Finished); err != nil {
		p.Close()
		return fault.Transport(op, "consumer", err)
	}

	for {
		_, err := p.empty.Wait(ctx, 0)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.Close()
			return fault.Transport(op, "consumer", err)
		}
	}
	log.Debugf("channel: producer finished after %d events in %d slots",
		p.stats.Events, p.stats.Slots)
	return p.Close()
}

// Close releases the transport without the finish handshake. The consumer
// sees the producer disappear.
func (p *Producer) Close() error {
	p.finished = true
	if p.closed {
		return nil
	}
	p.closed = true
	err := errors.Join(p.full.Close(), p.empty.Close())
	if p.release != nil {
		err = errors.Join(err, p.release())
		p.release = nil
	}
	return err
}

// Layout returns the slot geometry.
func (p *Producer) Layout() Layout { return p.region.layout }

// Stats returns a snapshot of producer activity.
func (p *Producer) Stats() ProducerStats {
	st := p.stats
	st.Heartbeats = p.heartbeats.Load()
	return st
}
