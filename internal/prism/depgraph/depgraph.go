// Package depgraph accumulates the entity communication graph.
//
// An edge (consumer, producer) counts the bytes the consumer loaded whose
// last writer was the producer. Edges only grow. The tracker merges each
// entity's edges when the entity is finalized, so at any time the graph is
// the sum of all finalized EntityRecords.
package depgraph

import (
	"cmp"
	"slices"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/entityset"
)

// Edge is one aggregated dependency.
type Edge struct {
	Consumer entity.ID
	Producer entity.ID
	Bytes    uint64
}

type key struct {
	consumer entity.ID
	producer entity.ID
}

// Graph is the byte-weighted consumer→producer graph.
//
// Not safe for concurrent use.
type Graph struct {
	edges map[key]uint64
	total uint64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{edges: make(map[key]uint64)}
}

// Add adds bytes to the edge (consumer → producer). Zero bytes are ignored.
func (g *Graph) Add(consumer, producer entity.ID, bytes uint64) {
	if bytes == 0 {
		return
	}
	g.edges[key{consumer, producer}] += bytes
	g.total += bytes
}

// Merge adds every edge of a record's producer map.
func (g *Graph) Merge(consumer entity.ID, producers map[entity.ID]uint64) {
	for p, n := range producers {
		g.Add(consumer, p, n)
	}
}

// Bytes returns the weight of (consumer → producer).
func (g *Graph) Bytes(consumer, producer entity.ID) uint64 {
	return g.edges[key{consumer, producer}]
}

// Len returns the number of distinct edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Total returns the sum of all edge weights.
func (g *Graph) Total() uint64 {
	return g.total
}

// Edges returns every edge ordered by consumer, then producer.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for k, n := range g.edges {
		out = append(out, Edge{Consumer: k.consumer, Producer: k.producer, Bytes: n})
	}
	slices.SortFunc(out, func(a, b Edge) int {
		if c := cmp.Compare(a.Consumer, b.Consumer); c != 0 {
			return c
		}
		return cmp.Compare(a.Producer, b.Producer)
	})
	return out
}

// Producers returns the distinct producers the consumer depends on.
func (g *Graph) Producers(consumer entity.ID) entityset.Set {
	var s entityset.Set
	for k := range g.edges {
		if k.consumer == consumer {
			s.Add(k.producer)
		}
	}
	return s
}

// Consumers returns the distinct consumers depending on producer.
func (g *Graph) Consumers(producer entity.ID) entityset.Set {
	var s entityset.Set
	for k := range g.edges {
		if k.producer == producer {
			s.Add(k.consumer)
		}
	}
	return s
}

// NamedEdge is an edge aggregated over every activation of two names.
type NamedEdge struct {
	Consumer string
	Producer string
	Bytes    uint64
}

// ByName folds entity edges into name edges. Unknown ids resolve to
// entity.Undef's string form.
func (g *Graph) ByName(name func(entity.ID) (string, bool)) []NamedEdge {
	resolve := func(id entity.ID) string {
		if s, ok := name(id); ok {
			return s
		}
		return entity.Undef.String()
	}

	folded := make(map[[2]string]uint64)
	for k, n := range g.edges {
		folded[[2]string{resolve(k.consumer), resolve(k.producer)}] += n
	}

	out := make([]NamedEdge, 0, len(folded))
	for k, n := range folded {
		out = append(out, NamedEdge{Consumer: k[0], Producer: k[1], Bytes: n})
	}
	slices.SortFunc(out, func(a, b NamedEdge) int {
		if c := cmp.Compare(b.Bytes, a.Bytes); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Consumer, b.Consumer); c != 0 {
			return c
		}
		return cmp.Compare(a.Producer, b.Producer)
	})
	return out
}
