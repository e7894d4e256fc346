package report

import "github.com/VANDAL/prism/internal/prism/entity"

type tee []Sink

// Tee returns a sink that forwards to every non-nil sink in order. The
// first error stops the forwarding of that call.
func Tee(sinks ...Sink) Sink {
	var t tee
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}

func (t tee) Entity(rec *entity.Record) error {
	for _, s := range t {
		if err := s.Entity(rec); err != nil {
			return err
		}
	}
	return nil
}

func (t tee) Finish(sum Summary) error {
	for _, s := range t {
		if err := s.Finish(sum); err != nil {
			return err
		}
	}
	return nil
}
