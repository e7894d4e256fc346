// Package namedepot interns entity names.
//
// A profiled program enters the same few thousand functions millions of
// times. The depot stores each distinct name once and hands back the shared
// string, so EntityRecords of repeated activations do not each hold a copy of
// a name decoded from the event stream.
//
// Design:
//   - xxh3 64-bit hash of the name bytes as the bucket key
//   - collision chains compare full bytes, never trust the hash alone
//   - Intern takes []byte so the decoder can pass slot memory directly; the
//     bytes are copied only for a name seen for the first time
//
// Not safe for concurrent use.
package namedepot

import (
	"github.com/zeebo/xxh3"
)

// Stats describes depot usage.
type Stats struct {
	Names   int    // Distinct names stored.
	Bytes   uint64 // Total bytes of distinct names.
	Lookups uint64 // Intern calls.
	Hits    uint64 // Intern calls that found an existing name.
}

// Depot is the name store.
type Depot struct {
	buckets map[uint64][]string
	stats   Stats
}

// New creates an empty depot.
func New() *Depot {
	return &Depot{buckets: make(map[uint64][]string)}
}

// Intern returns the canonical string for name.
func (d *Depot) Intern(name []byte) string {
	d.stats.Lookups++

	h := xxh3.Hash(name)
	for _, s := range d.buckets[h] {
		if s == string(name) {
			d.stats.Hits++
			return s
		}
	}

	s := string(name)
	d.buckets[h] = append(d.buckets[h], s)
	d.stats.Names++
	d.stats.Bytes += uint64(len(s))
	return s
}

// InternString is Intern for a name that is already a string.
func (d *Depot) InternString(name string) string {
	d.stats.Lookups++

	h := xxh3.HashString(name)
	for _, s := range d.buckets[h] {
		if s == name {
			d.stats.Hits++
			return s
		}
	}

	d.buckets[h] = append(d.buckets[h], name)
	d.stats.Names++
	d.stats.Bytes += uint64(len(name))
	return name
}

// Len returns the number of distinct names.
func (d *Depot) Len() int {
	return d.stats.Names
}

// Stats returns a usage snapshot.
func (d *Depot) Stats() Stats {
	return d.stats
}
