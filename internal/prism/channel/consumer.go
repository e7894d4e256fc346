package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// ConsumerStats counts consumer activity.
type ConsumerStats struct {
	Slots      uint64 // Slots received.
	Records    uint64 // Records in received slots.
	Heartbeats uint64 // Heartbeats received.
}

// Consumer drains slots in the order the producer filled them.
type Consumer struct {
	region  *Region
	full    Waiter
	empty   Signaler
	timeout time.Duration
	release func() error
	session string

	next   int
	done   bool
	closed bool

	stats ConsumerStats
}

func newConsumer(region *Region, full Waiter, empty Signaler, timeout time.Duration,
	release func() error) *Consumer {
	return &Consumer{
		region:  region,
		full:    full,
		empty:   empty,
		timeout: timeout,
		release: release,
	}
}

// Slot is a filled slot on loan to the consumer until Release.
type Slot struct {
	Index int
	view  slotView
	used  int
	names int
}

// Len returns the number of records in the slot.
func (s *Slot) Len() int { return s.used }

// Each decodes the records in order and passes them to fn. Context names in
// the events alias slot memory and are only valid until fn returns.
func (s *Slot) Each(fn func(event.Event) error) error {
	arena := s.view.arena[:s.names]
	for i := range s.used {
		ev, err := event.Decode(s.view.record(i), arena)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// Next waits for the next filled slot. It returns io.EOF after the finished
// sentinel. No control value within the liveness timeout, or the producer
// hanging up without finishing, is a TransportFailure.
func (c *Consumer) Next(ctx context.Context) (*Slot, error) {
	const op = "channel.Consumer.Next"
	if c.done {
		return nil, io.EOF
	}

	for {
		v, err := c.full.Wait(ctx, c.timeout)
		switch {
		case errors.Is(err, io.EOF):
			return nil, fault.Transport(op, "producer", io.ErrUnexpectedEOF)
		case errors.Is(err, os.ErrDeadlineExceeded):
			return nil, fault.Transport(op, "producer",
				fmt.Errorf("no signal within liveness timeout of %s", c.timeout))
		case err != nil:
			return nil, err
		}

		switch {
		case v == Heartbeat:
			c.stats.Heartbeats++
			continue
		case v == Finished:
			c.done = true
			log.Debugf("channel: consumer saw finish after %d slots", c.stats.Slots)
			return nil, io.EOF
		case v != uint32(c.next):
			return nil, fault.Violation(op, fault.ID("slot", uint64(v)),
				"signaled out of order, expected %d", c.next)
		}

		view := c.region.slot(c.next)
		used, names := view.used(), view.namesUsed()
		if used > view.capacity() || names > len(view.arena) {
			return nil, fault.Violation(op, fault.ID("slot", uint64(v)),
				"header claims %d records and %d name bytes", used, names)
		}
		slot := &Slot{Index: c.next, view: view, used: used, names: names}
		c.next = (c.next + 1) % c.region.layout.Slots
		c.stats.Slots++
		c.stats.Records += uint64(used)
		return slot, nil
	}
}

// Release hands a drained slot back to the producer.
func (c *Consumer) Release(s *Slot) error {
	s.view.reset()
	if err := c.empty.Signal(uint32(s.Index)); err != nil {
		return fault.Transport("channel.Consumer.Release", fault.ID("slot", uint64(s.Index)), err)
	}
	return nil
}

// Close disconnects from the producer, which unblocks its Finish.
func (c *Consumer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := errors.Join(c.empty.Close(), c.full.Close())
	if c.release != nil {
		err = errors.Join(err, c.release())
		c.release = nil
	}
	return err
}

// Session returns the session id of an IPC consumer, or "" in process.
func (c *Consumer) Session() string { return c.session }

// Layout returns the slot geometry.
func (c *Consumer) Layout() Layout { return c.region.layout }

// Stats returns a snapshot of consumer activity.
func (c *Consumer) Stats() ConsumerStats { return c.stats }
