//go:build unix

package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// pollInterval bounds how long a FIFO read sleeps between checks of ctx and
// of a peer that has not opened its end yet.
const pollInterval = 50 * time.Millisecond

// Paths returns the shared-memory file and the two FIFOs of a session.
func Paths(dir, session string) (shm, full, empty string) {
	base := filepath.Join(dir, "prism-"+session)
	return base + "-shmem", base + "-full", base + "-empty"
}

// Listen creates an IPC session in dir and returns its consumer end. The
// session id for Dial is available from Consumer.Session.
func Listen(dir string, opts Options) (c *Consumer, err error) {
	const op = "channel.Listen"
	opts = opts.withDefaults()
	if err := opts.Layout.validate(op); err != nil {
		return nil, err
	}

	session := uuid.NewString()
	shmPath, fullPath, emptyPath := Paths(dir, session)
	var cleanup []func() error
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				_ = cleanup[i]()
			}
		}
	}()

	size := opts.Layout.Size()
	mem, err := createMapping(shmPath, size)
	if err != nil {
		return nil, fault.Transport(op, shmPath, err)
	}
	cleanup = append(cleanup,
		func() error { return os.Remove(shmPath) },
		func() error { return unix.Munmap(mem) })

	region, err := NewRegion(mem, opts.Layout, opts.Version)
	if err != nil {
		return nil, err
	}

	for _, path := range []string{fullPath, emptyPath} {
		if err := unix.Mkfifo(path, 0o600); err != nil {
			return nil, fault.Transport(op, path, err)
		}
		cleanup = append(cleanup, func() error { return os.Remove(path) })
	}

	fullR, emptyW, err := openControl(fullPath, emptyPath)
	if err != nil {
		return nil, fault.Transport(op, dir, err)
	}

	release := func() error {
		return errors.Join(unix.Munmap(mem),
			os.Remove(shmPath), os.Remove(fullPath), os.Remove(emptyPath))
	}
	c = newConsumer(region, &fifoWaiter{f: fullR, awaitPeer: true}, &fifoSignaler{f: emptyW},
		opts.LivenessTimeout, release)
	c.session = session
	log.Debugf("channel: listening on session %s in %s (%d slots, %d bytes)",
		session, dir, opts.Layout.Slots, size)
	return c, nil
}

// Dial attaches a producer to the session created by Listen. Attaching is
// retried opts.ConnectRetries times, opts.ConnectDelay apart, while the
// session's files are missing or nobody reads the full FIFO.
func Dial(dir, session string, opts Options) (*Producer, error) {
	const op = "channel.Dial"
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.ConnectRetries; attempt++ {
		p, err := dial(dir, session, opts.Version)
		if err == nil {
			return p, nil
		}
		if !retryable(err) {
			if fault.KindOf(err) == fault.Unknown {
				err = fault.Transport(op, "session "+session, err)
			}
			return nil, err
		}
		lastErr = err
		log.Debugf("channel: dial attempt %d/%d for session %s: %v",
			attempt, opts.ConnectRetries, session, err)
		if attempt < opts.ConnectRetries {
			time.Sleep(opts.ConnectDelay)
		}
	}
	return nil, fault.Transport(op, "session "+session,
		fmt.Errorf("giving up after %d attempts: %w", opts.ConnectRetries, lastErr))
}

func retryable(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, unix.ENXIO)
}

func dial(dir, session, version string) (p *Producer, err error) {
	shmPath, fullPath, emptyPath := Paths(dir, session)

	// Listen makes the FIFOs only after formatting the region.
	emptyR, err := openFIFO(emptyPath, unix.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			emptyR.Close()
		}
	}()

	mem, err := openMapping(shmPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = unix.Munmap(mem)
		}
	}()

	region, err := OpenRegion(mem, version)
	if err != nil {
		return nil, err
	}

	// ENXIO here means the consumer has no reader on the full FIFO yet.
	fullW, err := openFIFO(fullPath, unix.O_WRONLY)
	if err != nil {
		return nil, err
	}

	log.Debugf("channel: producer attached to session %s (protocol %s)", session, region.Version())
	return newProducer(region, &fifoSignaler{f: fullW}, &fifoWaiter{f: emptyR},
		func() error { return unix.Munmap(mem) }), nil
}

func createMapping(path string, size int) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return mem, nil
}

func openMapping(path string) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < regionHeaderSize {
		// Listen has created the file but not sized it yet.
		return nil, os.ErrNotExist
	}
	return unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// openControl opens the consumer ends of both FIFOs. The empty FIFO is
// opened read-write first: it then always has a writer, and a producer that
// attaches as soon as the full FIFO has a reader never reads a spurious EOF
// from it. Reads of the full FIFO see EOF until the producer connects.
func openControl(fullPath, emptyPath string) (fullR, emptyW *os.File, err error) {
	emptyW, err = openFIFO(emptyPath, unix.O_RDWR)
	if err != nil {
		return nil, nil, err
	}
	fullR, err = openFIFO(fullPath, unix.O_RDONLY)
	if err != nil {
		emptyW.Close()
		return nil, nil, err
	}
	return fullR, emptyW, nil
}

// openFIFO opens a FIFO in non-blocking mode so that the returned file goes
// through the runtime poller and honors deadlines.
func openFIFO(path string, mode int) (*os.File, error) {
	fd, err := unix.Open(path, mode|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}

// fifoSignaler serializes writers so that a heartbeat's short deadline never
// leaks into a blocking Signal.
type fifoSignaler struct {
	mu sync.Mutex
	f  *os.File
}

func (s *fifoSignaler) write(v uint32) error {
	var buf [controlSize]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	n, err := s.f.Write(buf[:])
	if err != nil {
		return err
	}
	if n != controlSize {
		return fault.Violation("channel.fifo", s.f.Name(), "short control write of %d bytes", n)
	}
	return nil
}

func (s *fifoSignaler) Signal(v uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.SetWriteDeadline(time.Time{}); err != nil {
		return err
	}
	return s.write(v)
}

func (s *fifoSignaler) TrySignal(v uint32) (bool, error) {
	if !s.mu.TryLock() {
		return false, nil
	}
	defer s.mu.Unlock()
	if err := s.f.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false, err
	}
	err := s.write(v)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false, nil
	}
	return err == nil, err
}

func (s *fifoSignaler) Close() error { return s.f.Close() }

// fifoWaiter reads control values from a FIFO. With awaitPeer set, EOF
// before the first value means the writer has not opened the FIFO yet and
// is waited out like silence.
type fifoWaiter struct {
	f         *os.File
	awaitPeer bool
	connected bool
}

func (w *fifoWaiter) Wait(ctx context.Context, timeout time.Duration) (uint32, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var buf [controlSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		slice := time.Now().Add(pollInterval)
		if !deadline.IsZero() && deadline.Before(slice) {
			slice = deadline
		}
		if err := w.f.SetReadDeadline(slice); err != nil {
			return 0, err
		}

		n, err := io.ReadFull(w.f, buf[:])
		switch {
		case err == nil:
			w.connected = true
			return binary.LittleEndian.Uint32(buf[:]), nil
		case n > 0:
			return 0, fault.Violation("channel.fifo", w.f.Name(), "short control read of %d bytes", n)
		case errors.Is(err, os.ErrDeadlineExceeded):
		case errors.Is(err, io.EOF) && w.awaitPeer && !w.connected:
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Until(slice)):
			}
		case errors.Is(err, io.EOF):
			return 0, io.EOF
		default:
			return 0, err
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, os.ErrDeadlineExceeded
		}
	}
}

func (w *fifoWaiter) Close() error { return w.f.Close() }
