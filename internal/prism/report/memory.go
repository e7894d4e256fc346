package report

import (
	"sync"

	"github.com/VANDAL/prism/internal/prism/entity"
)

// MemorySink keeps every record and the summary.
type MemorySink struct {
	mu      sync.Mutex
	records []*entity.Record
	summary *Summary
}

func (m *MemorySink) Entity(rec *entity.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemorySink) Finish(s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = &s
	return nil
}

// Records returns the records received so far, in finalization order.
func (m *MemorySink) Records() []*entity.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.Record(nil), m.records...)
}

// Lookup returns the first record with the given name.
func (m *MemorySink) Lookup(name string) *entity.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Name == name {
			return rec
		}
	}
	return nil
}

// Summary returns the summary, or nil before Finish.
func (m *MemorySink) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}
