package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Range is the half-open interval [Begin, End) of indices along one axis.
type Range struct {
	Begin, End int
}

// Size of the range, 0 if empty.
func (r Range) Size() int {
	return max(0, r.End-r.Begin)
}

// Intersect returns the intersection of both ranges. It may be empty.
func (r Range) Intersect(r2 Range) Range {
	return Range{Begin: max(r.Begin, r2.Begin), End: min(r.End, r2.End)}
}

// BalancedSplit splits dim elements into parts contiguous ranges.
// The first dim%parts ranges get one element more than the others.
func BalancedSplit(dim, parts int) []Range {
	ranges := make([]Range, parts)
	base, remainder := dim/parts, dim%parts
	begin := 0
	for i := range ranges {
		size := base
		if i < remainder {
			size++
		}
		ranges[i] = Range{Begin: begin, End: begin + size}
		begin += size
	}
	return ranges
}

// SliceView is the region of a logical blob held by one physical shard: one Range per logical axis.
type SliceView struct {
	Ranges []Range
}

// FullView returns the view covering the whole shape.
func FullView(shape Shape) SliceView {
	ranges := make([]Range, shape.Rank())
	for axis, dim := range shape.Dimensions {
		ranges[axis] = Range{End: dim}
	}
	return SliceView{Ranges: ranges}
}

// Rank of the view.
func (v SliceView) Rank() int { return len(v.Ranges) }

// WithRange returns a copy of the view with the range of the given axis replaced.
func (v SliceView) WithRange(axis int, r Range) SliceView {
	ranges := slices.Clone(v.Ranges)
	ranges[axis] = r
	return SliceView{Ranges: ranges}
}

// Intersect returns the intersection of two views of the same rank. It may be empty.
func (v SliceView) Intersect(v2 SliceView) SliceView {
	ranges := make([]Range, len(v.Ranges))
	for axis := range ranges {
		ranges[axis] = v.Ranges[axis].Intersect(v2.Ranges[axis])
	}
	return SliceView{Ranges: ranges}
}

// IsEmpty returns whether the view holds no elements.
// A rank-0 view (scalar) is never empty.
func (v SliceView) IsEmpty() bool {
	for _, r := range v.Ranges {
		if r.Size() == 0 {
			return true
		}
	}
	return false
}

// Dimensions of the shard described by the view.
func (v SliceView) Dimensions() []int {
	dims := make([]int, len(v.Ranges))
	for axis, r := range v.Ranges {
		dims[axis] = r.Size()
	}
	return dims
}

// Shape of the shard described by the view, for the given dtype.
func (v SliceView) Shape(dtype dtypes.DType) Shape {
	return Shape{DType: dtype, Dimensions: v.Dimensions()}
}

// Size is the number of elements in the view.
func (v SliceView) Size() int {
	size := 1
	for _, r := range v.Ranges {
		size *= r.Size()
	}
	return size
}

// Equal returns whether both views cover the same region.
func (v SliceView) Equal(v2 SliceView) bool {
	return slices.Equal(v.Ranges, v2.Ranges)
}

// String implements fmt.Stringer. E.g.: "[0:2, 0:8]".
func (v SliceView) String() string {
	parts := make([]string, len(v.Ranges))
	for axis, r := range v.Ranges {
		parts[axis] = fmt.Sprintf("%d:%d", r.Begin, r.End)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
