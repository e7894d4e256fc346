package synchrotrace

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// traceFile is one line-oriented output file, zstd compressed when asked.
// Lines are assembled in line and written by end.
type traceFile struct {
	path string
	f    *os.File
	zw   *zstd.Encoder
	w    *bufio.Writer
	line []byte
}

func createTrace(path string, compress bool) (*traceFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "synchrotrace.create", path, err)
	}
	t := &traceFile{path: path, f: f}
	var w io.Writer = f
	if compress {
		// One encoder per thread: keep each to a single goroutine and a
		// small window.
		t.zw, err = zstd.NewWriter(f,
			zstd.WithEncoderConcurrency(1),
			zstd.WithWindowSize(1<<20))
		if err != nil {
			f.Close()
			return nil, fault.Wrap(fault.Configuration, "synchrotrace.create", path, err)
		}
		w = t.zw
	}
	t.w = bufio.NewWriterSize(w, 1<<16)
	return t, nil
}

func (t *traceFile) str(s string) *traceFile {
	t.line = append(t.line, s...)
	return t
}

func (t *traceFile) dec(v uint64) *traceFile {
	t.line = strconv.AppendUint(t.line, v, 10)
	return t
}

func (t *traceFile) hex(v uint64) *traceFile {
	t.line = append(t.line, "0x"...)
	t.line = strconv.AppendUint(t.line, v, 16)
	return t
}

// end terminates and writes the current line.
func (t *traceFile) end() error {
	t.line = append(t.line, '\n')
	_, err := t.w.Write(t.line)
	t.line = t.line[:0]
	if err != nil {
		return fault.Wrap(fault.ResourceExhaustion, "synchrotrace.write", t.path, err)
	}
	return nil
}

func (t *traceFile) Close() error {
	err := t.w.Flush()
	if t.zw != nil {
		err = errors.Join(err, t.zw.Close())
	}
	err = errors.Join(err, t.f.Close())
	if err != nil {
		return fault.Wrap(fault.ResourceExhaustion, "synchrotrace.close", t.path, err)
	}
	return nil
}
