package synchrotrace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddrSetInsert(t *testing.T) {
	tests := map[string]struct {
		inserts []Range
		want    []Range
	}{
		"single": {
			inserts: []Range{{0x10, 0x1f}},
			want:    []Range{{0x10, 0x1f}},
		},
		"disjoint out of order": {
			inserts: []Range{{0x40, 0x4f}, {0x10, 0x1f}, {0x28, 0x28}},
			want:    []Range{{0x10, 0x1f}, {0x28, 0x28}, {0x40, 0x4f}},
		},
		"touching after": {
			inserts: []Range{{0x10, 0x1f}, {0x20, 0x2f}},
			want:    []Range{{0x10, 0x2f}},
		},
		"touching before": {
			inserts: []Range{{0x20, 0x2f}, {0x10, 0x1f}},
			want:    []Range{{0x10, 0x2f}},
		},
		"overlap": {
			inserts: []Range{{0x10, 0x1f}, {0x18, 0x27}},
			want:    []Range{{0x10, 0x27}},
		},
		"contained": {
			inserts: []Range{{0x10, 0x1f}, {0x12, 0x14}},
			want:    []Range{{0x10, 0x1f}},
		},
		"bridge": {
			inserts: []Range{{0, 1}, {4, 5}, {2, 3}},
			want:    []Range{{0, 5}},
		},
		"swallow several": {
			inserts: []Range{{1, 1}, {3, 3}, {5, 5}, {20, 20}, {0, 10}},
			want:    []Range{{0, 10}, {20, 20}},
		},
		"bytes one by one": {
			inserts: []Range{{3, 3}, {1, 1}, {2, 2}, {0, 0}},
			want:    []Range{{0, 3}},
		},
		"address space ends": {
			inserts: []Range{{math.MaxUint64 - 1, math.MaxUint64}, {0, 0}, {math.MaxUint64 - 2, math.MaxUint64 - 2}},
			want:    []Range{{0, 0}, {math.MaxUint64 - 2, math.MaxUint64}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var s AddrSet
			for _, r := range tc.inserts {
				s.Insert(r.First, r.Last)
			}
			assert.Equal(t, tc.want, s.Ranges())
			assert.Equal(t, len(tc.want), s.Len())
		})
	}
}

func TestAddrSetReset(t *testing.T) {
	var s AddrSet
	s.Insert(1, 2)
	s.Reset()
	assert.Zero(t, s.Len())
	s.Insert(8, 9)
	assert.Equal(t, []Range{{8, 9}}, s.Ranges())
}
