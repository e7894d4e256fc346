package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/VANDAL/prism/internal/prism/entity"
	"github.com/VANDAL/prism/internal/prism/entityset"
)

func TestAddAndQuery(t *testing.T) {
	g := New()
	g.Add(1, 0, 4)
	g.Add(1, 0, 2)
	g.Add(2, 0, 1)
	g.Add(2, 1, 8)
	g.Add(3, entity.Undef, 5)
	g.Add(3, 1, 0)

	assert.Equal(t, uint64(6), g.Bytes(1, 0))
	assert.Equal(t, uint64(0), g.Bytes(0, 1))
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, uint64(20), g.Total())

	assert.Equal(t, []Edge{
		{Consumer: 1, Producer: 0, Bytes: 6},
		{Consumer: 2, Producer: 0, Bytes: 1},
		{Consumer: 2, Producer: 1, Bytes: 8},
		{Consumer: 3, Producer: entity.Undef, Bytes: 5},
	}, g.Edges())

	assert.True(t, entityset.Of(0, 1).Equal(g.Producers(2)))
	assert.True(t, entityset.Of(1, 2).Equal(g.Consumers(0)))
	assert.Equal(t, 0, g.Consumers(9).Len())
}

func TestMerge(t *testing.T) {
	g := New()
	g.Merge(5, map[entity.ID]uint64{1: 3, 2: 4})
	g.Merge(5, map[entity.ID]uint64{1: 1})

	assert.Equal(t, uint64(4), g.Bytes(5, 1))
	assert.Equal(t, uint64(4), g.Bytes(5, 2))
	assert.Equal(t, uint64(8), g.Total())
}

func TestByName(t *testing.T) {
	names := map[entity.ID]string{0: "main", 1: "work", 2: "work", 3: "main"}
	g := New()
	g.Add(1, 0, 4)
	g.Add(2, 0, 6)
	g.Add(3, 2, 1)
	g.Add(3, 7, 2) // Producer without a name.

	got := g.ByName(func(id entity.ID) (string, bool) {
		s, ok := names[id]
		return s, ok
	})
	assert.Equal(t, []NamedEdge{
		{Consumer: "work", Producer: "main", Bytes: 10},
		{Consumer: "main", Producer: "<undef>", Bytes: 2},
		{Consumer: "main", Producer: "work", Bytes: 1},
	}, got)
}
