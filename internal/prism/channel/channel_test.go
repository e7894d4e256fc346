package channel

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/internal/prism/event"
	"github.com/VANDAL/prism/internal/prism/fault"
)

func pipe(t *testing.T, layout Layout, timeout time.Duration) (*Producer, *Consumer) {
	t.Helper()
	p, c, err := Pipe(Options{Layout: layout, LivenessTimeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		c.Close()
	})
	return p, c
}

func store(addr uint64) event.Event { return event.MemEvent(event.Store, addr, 8) }

// drain reads slots until the finished sentinel and returns their indices
// and the decoded events.
func drain(t *testing.T, c *Consumer) ([]int, []event.Event) {
	t.Helper()
	var idx []int
	var evs []event.Event
	for {
		s, err := c.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return idx, evs
		}
		require.NoError(t, err)
		idx = append(idx, s.Index)
		require.NoError(t, s.Each(func(ev event.Event) error {
			if ev.Tag == event.TagCxt {
				ev.Cxt.Name = append([]byte(nil), ev.Cxt.Name...)
			}
			evs = append(evs, ev)
			return nil
		}))
		require.NoError(t, c.Release(s))
	}
}

func TestLayoutSize(t *testing.T) {
	l := Layout{Slots: 3, Records: 4, NameBytes: 5}
	// 16 header + 96 records + 5 names, rounded up to 8.
	assert.Equal(t, 120, l.SlotSize())
	assert.Equal(t, regionHeaderSize+3*120, l.Size())
}

func TestRegionHeader(t *testing.T) {
	l := Layout{Slots: 2, Records: 4, NameBytes: 16}
	buf := make([]byte, l.Size())
	_, err := NewRegion(buf, l, "v1.0.3")
	require.NoError(t, err)

	garble := func(b []byte) {
		b[geometryOffset] = 0
		b[geometryOffset+1] = 0
	}
	tests := map[string]struct {
		version string
		mangle  func([]byte)
		wantErr bool
	}{
		"same version":     {version: "v1.0.3"},
		"newer minor":      {version: "v1.4.0"},
		"other major":      {version: "v2.0.0", wantErr: true},
		"bad magic":        {version: "v1.0.3", mangle: func(b []byte) { b[0] = 'X' }, wantErr: true},
		"garbled geometry": {version: "v1.0.3", mangle: garble, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b := append([]byte(nil), buf...)
			if tc.mangle != nil {
				tc.mangle(b)
			}
			r, err := OpenRegion(b, tc.version)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, fault.Is(err, fault.ProtocolViolation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, l, r.Layout())
			assert.Equal(t, "v1.0.3", r.Version())
		})
	}

	_, err = OpenRegion(buf[:l.Size()-8], "v1.0.0")
	assert.True(t, fault.Is(err, fault.ProtocolViolation))
	_, err = NewRegion(buf, l, "1.0")
	assert.True(t, fault.Is(err, fault.Configuration))
}

func TestRoundTripPreservesOrder(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 3, Records: 4, NameBytes: 64}, time.Second)

	var sent []event.Event
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for i := range 50 {
			var ev event.Event
			switch i % 5 {
			case 0:
				ev = event.EnterEvent("fn")
			case 4:
				ev = event.ExitEvent("fn")
			case 2:
				ev = event.CompEvent(event.FLOP, event.Binary, event.OpMult, 8)
			default:
				ev = store(uint64(i))
			}
			sent = append(sent, ev)
			if err := p.Emit(ev); err != nil {
				errc <- err
				return
			}
		}
		errc <- p.Finish(context.Background())
	}()

	idx, got := drain(t, c)
	require.NoError(t, c.Close())
	require.NoError(t, <-errc)

	require.Len(t, got, 50)
	assert.Equal(t, sent, got)
	for i, x := range idx {
		assert.Equal(t, i%3, x)
	}
	assert.Equal(t, uint64(50), c.Stats().Records)
}

func TestBackpressure(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 3, Records: 2, NameBytes: 0}, time.Second)

	done := make(chan error, 1)
	go func() {
		// The seventh event needs slot 0 back.
		for i := range 7 {
			if err := p.Emit(store(uint64(i))); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	assert.Never(t, func() bool { return len(done) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	s, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 2, s.Len())
	require.NoError(t, c.Release(s))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after release")
	}
	assert.Equal(t, uint64(1), p.Stats().Stalls)
	assert.Equal(t, uint64(3), p.Stats().Slots)

	finished := make(chan error, 1)
	go func() { finished <- p.Finish(context.Background()) }()

	// Slots 1 and 2 were filled before the stall and are untouched by the
	// refill of slot 0, which now holds only the seventh event.
	idx, evs := drain(t, c)
	assert.Equal(t, []int{1, 2, 0}, idx)
	require.Len(t, evs, 5)
	for i, ev := range evs {
		assert.Equal(t, store(uint64(i+2)), ev)
	}
	require.NoError(t, c.Close())
	require.NoError(t, <-finished)
}

func TestArenaFullFlushesSlot(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 2, Records: 8, NameBytes: 8}, time.Second)

	errc := make(chan error, 1)
	go func() {
		for _, name := range []string{"abcdef", "xyz", "12345678"} {
			if err := p.Emit(event.EnterEvent(name)); err != nil {
				errc <- err
				return
			}
		}
		errc <- p.Finish(context.Background())
	}()

	idx, got := drain(t, c)
	require.NoError(t, c.Close())
	require.NoError(t, <-errc)
	assert.Equal(t, []int{0, 1, 0}, idx)
	require.Len(t, got, 3)
	assert.Equal(t, "abcdef", string(got[0].Cxt.Name))
	assert.Equal(t, "xyz", string(got[1].Cxt.Name))
	assert.Equal(t, "12345678", string(got[2].Cxt.Name))
}

func TestOversizedNameRejected(t *testing.T) {
	p, _ := pipe(t, Layout{Slots: 1, Records: 8, NameBytes: 4}, time.Second)
	err := p.Emit(event.EnterEvent("too long"))
	assert.True(t, fault.Is(err, fault.ProtocolViolation))
}

func TestEmitAfterFinish(t *testing.T) {
	p, _ := pipe(t, Layout{Slots: 1, Records: 1, NameBytes: 0}, time.Second)
	require.NoError(t, p.Close())

	err := p.Emit(store(0))
	assert.True(t, fault.Is(err, fault.ProtocolViolation))
}

func TestLivenessTimeout(t *testing.T) {
	_, c := pipe(t, Layout{Slots: 1, Records: 1, NameBytes: 0}, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Next(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.TransportFailure))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestHeartbeatKeepsConsumerWaiting(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 2, Records: 4, NameBytes: 0}, 80*time.Millisecond)

	errc := make(chan error, 1)
	go func() {
		for range 6 {
			time.Sleep(25 * time.Millisecond)
			if err := p.Heartbeat(); err != nil {
				errc <- err
				return
			}
		}
		if err := p.Emit(store(0x10)); err != nil {
			errc <- err
			return
		}
		errc <- p.Finish(context.Background())
	}()

	_, got := drain(t, c)
	require.NoError(t, c.Close())
	require.NoError(t, <-errc)
	assert.Equal(t, []event.Event{store(0x10)}, got)
	assert.Positive(t, c.Stats().Heartbeats)
}

func TestProducerVanishing(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 2, Records: 1, NameBytes: 0}, time.Second)
	require.NoError(t, p.Emit(store(1)))
	require.NoError(t, p.Emit(store(2)))
	require.NoError(t, p.Close())

	s, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Index)

	_, err = c.Next(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.TransportFailure))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestConsumerVanishingUnblocksProducer(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 1, Records: 1, NameBytes: 0}, time.Second)
	require.NoError(t, p.Emit(store(1)))

	done := make(chan error, 1)
	go func() { done <- p.Emit(store(2)) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.True(t, fault.Is(err, fault.TransportFailure))
	case <-time.After(time.Second):
		t.Fatal("producer not released")
	}
}

func TestFinishWaitsForDisconnect(t *testing.T) {
	p, c := pipe(t, Layout{Slots: 2, Records: 4, NameBytes: 0}, time.Second)
	require.NoError(t, p.Emit(store(1)))

	finished := make(chan error, 1)
	go func() { finished <- p.Finish(context.Background()) }()

	_, got := drain(t, c)
	assert.Len(t, got, 1)
	assert.Never(t, func() bool { return len(finished) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, c.Close())
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("finish did not return after disconnect")
	}

	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestOutOfOrderSignals(t *testing.T) {
	l := Layout{Slots: 3, Records: 1, NameBytes: 0}
	region, err := NewRegion(make([]byte, l.Size()), l, ProtocolVersion)
	require.NoError(t, err)

	t.Run("consumer", func(t *testing.T) {
		full, empty := newLine(4), newLine(4)
		c := newConsumer(region, lineReceiver{full}, lineSender{empty}, time.Second, nil)
		require.NoError(t, lineSender{full}.Signal(1))
		_, err := c.Next(context.Background())
		assert.True(t, fault.Is(err, fault.ProtocolViolation))
	})

	t.Run("producer", func(t *testing.T) {
		full, empty := newLine(4), newLine(4)
		p := newProducer(region, lineSender{full}, lineReceiver{empty}, nil)
		require.NoError(t, lineSender{empty}.Signal(2))
		var err error
		for i := 0; i < 4 && err == nil; i++ {
			err = p.Emit(store(uint64(i)))
		}
		assert.True(t, fault.Is(err, fault.ProtocolViolation))
	})

	t.Run("corrupt header", func(t *testing.T) {
		full, empty := newLine(4), newLine(4)
		c := newConsumer(region, lineReceiver{full}, lineSender{empty}, time.Second, nil)
		region.slot(0).setUsed(5, 0)
		require.NoError(t, lineSender{full}.Signal(0))
		_, err := c.Next(context.Background())
		assert.True(t, fault.Is(err, fault.ProtocolViolation))
	})
}

func TestNextHonorsContext(t *testing.T) {
	_, c := pipe(t, Layout{Slots: 1, Records: 1, NameBytes: 0}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
