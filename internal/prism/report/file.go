package report

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/fault"
)

// FileSink is a TextSink writing to a file. The file is complete once
// Finish returns.
type FileSink struct {
	*TextSink
	path string
	f    *os.File
	buf  *bufio.Writer
	zw   *zstd.Encoder
}

// NewFileSink creates path and returns a sink writing to it. The report is
// zstd compressed when compress is set or path ends in ".zst".
func NewFileSink(path string, compress bool) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fault.Wrap(fault.Configuration, "report.NewFileSink", path, err)
	}

	s := &FileSink{path: path, f: f}
	var w io.Writer = f
	if compress || strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fault.Wrap(fault.Configuration, "report.NewFileSink", path, err)
		}
		s.zw = zw
		w = zw
	}
	s.buf = bufio.NewWriter(w)
	s.TextSink = NewTextSink(s.buf)
	return s, nil
}

func (s *FileSink) Entity(rec *entity.Record) error {
	if s.f == nil {
		return fault.Violation("report.FileSink.Entity", s.path, "sink already finished")
	}
	return s.TextSink.Entity(rec)
}

// Finish writes the summary, then flushes and closes the file.
func (s *FileSink) Finish(sum Summary) error {
	if s.f == nil {
		return nil
	}
	if err := s.TextSink.Finish(sum); err != nil {
		s.Close()
		return err
	}
	return s.Close()
}

// Close flushes and closes the file without writing a summary.
func (s *FileSink) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.buf.Flush()
	if s.zw != nil {
		err = errors.Join(err, s.zw.Close())
	}
	err = errors.Join(err, s.f.Close())
	s.f = nil
	if err != nil {
		return fault.Wrap(fault.Unknown, "report.FileSink.Close", s.path, err)
	}
	log.Debugf("report: wrote %s", s.path)
	return nil
}
