package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
)

func TestBalancedSplit(t *testing.T) {
	testCases := []struct {
		name        string
		dim, parts  int
		wantsRanges []Range
	}{
		{"even", 6, 3, []Range{{0, 2}, {2, 4}, {4, 6}}},
		{"remainder goes first", 7, 3, []Range{{0, 3}, {3, 5}, {5, 7}}},
		{"more parts than elements", 2, 3, []Range{{0, 1}, {1, 2}, {2, 2}}},
		{"single part", 5, 1, []Range{{0, 5}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantsRanges, BalancedSplit(tc.dim, tc.parts))
		})
	}
}

func TestSliceView(t *testing.T) {
	full := FullView(Make(dtypes.Float32, 4, 6))
	assert.Equal(t, "[0:4, 0:6]", full.String())
	assert.Equal(t, 24, full.Size())

	rows := full.WithRange(0, Range{1, 3})
	cols := full.WithRange(1, Range{4, 6})
	both := rows.Intersect(cols)
	assert.Equal(t, []int{2, 2}, both.Dimensions())
	assert.True(t, both.Shape(dtypes.Float32).Equal(Make(dtypes.Float32, 2, 2)))
	assert.False(t, both.IsEmpty())
	assert.True(t, both.Equal(SliceView{Ranges: []Range{{1, 3}, {4, 6}}}))

	disjoint := full.WithRange(0, Range{0, 1}).Intersect(rows)
	assert.True(t, disjoint.IsEmpty())
	assert.Equal(t, 0, disjoint.Size())

	scalar := FullView(Make(dtypes.Float32))
	assert.False(t, scalar.IsEmpty())
	assert.Equal(t, 1, scalar.Size())
}
