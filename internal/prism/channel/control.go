package channel

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// Control values. Anything below Heartbeat is a slot index.
const (
	// Finished tells the consumer that no more slots follow.
	Finished uint32 = 0xFFFFFFFF
	// Heartbeat resets the consumer's liveness timer and is otherwise
	// ignored. Only the producer sends it.
	Heartbeat uint32 = 0xFFFFFFFE
)

// controlSize is the wire size of a control value.
const controlSize = 4

// Signaler is the sending end of a control line.
type Signaler interface {
	// Signal sends v, blocking while the line is full.
	Signal(v uint32) error
	// TrySignal sends v unless the line is full.
	TrySignal(v uint32) (bool, error)
	Close() error
}

// Waiter is the receiving end of a control line.
//
// Wait returns io.EOF once the peer hung up and every sent value was read,
// and os.ErrDeadlineExceeded when timeout (if positive) expires first.
type Waiter interface {
	Wait(ctx context.Context, timeout time.Duration) (uint32, error)
	Close() error
}

// line is an in-process control line backed by a buffered Go channel.
type line struct {
	ch chan uint32

	wonce   sync.Once
	written chan struct{} // closed when the sender hangs up
	ronce   sync.Once
	read    chan struct{} // closed when the receiver hangs up
}

func newLine(capacity int) *line {
	return &line{
		ch:      make(chan uint32, capacity),
		written: make(chan struct{}),
		read:    make(chan struct{}),
	}
}

type lineSender struct{ *line }

type lineReceiver struct{ *line }

var errPeerGone = fault.Transport("channel.line", "peer", io.ErrClosedPipe)

func (s lineSender) Signal(v uint32) error {
	select {
	case <-s.read:
		return errPeerGone
	default:
	}
	select {
	case s.ch <- v:
		return nil
	case <-s.read:
		return errPeerGone
	}
}

func (s lineSender) TrySignal(v uint32) (bool, error) {
	select {
	case <-s.read:
		return false, errPeerGone
	default:
	}
	select {
	case s.ch <- v:
		return true, nil
	default:
		return false, nil
	}
}

func (s lineSender) Close() error {
	s.wonce.Do(func() { close(s.written) })
	return nil
}

func (r lineReceiver) Wait(ctx context.Context, timeout time.Duration) (uint32, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case v := <-r.ch:
		return v, nil
	case <-r.written:
		select {
		case v := <-r.ch:
			return v, nil
		default:
			return 0, io.EOF
		}
	case <-expired:
		return 0, os.ErrDeadlineExceeded
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r lineReceiver) Close() error {
	r.ronce.Do(func() { close(r.read) })
	return nil
}

// Pipe connects a producer and a consumer inside one process over a heap
// region. Both control lines hold one value per slot plus the finished
// sentinel, so neither side ever blocks on a line the protocol keeps within
// bounds.
func Pipe(opts Options) (*Producer, *Consumer, error) {
	opts = opts.withDefaults()
	region, err := NewRegion(make([]byte, opts.Layout.Size()), opts.Layout, opts.Version)
	if err != nil {
		return nil, nil, err
	}

	full := newLine(opts.Layout.Slots + 1)
	empty := newLine(opts.Layout.Slots)

	p := newProducer(region, lineSender{full}, lineReceiver{empty}, nil)
	c := newConsumer(region, lineReceiver{full}, lineSender{empty}, opts.LivenessTimeout, nil)
	return p, c, nil
}
