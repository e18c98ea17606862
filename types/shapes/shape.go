// Package shapes defines Shape, the logical shape (dtype and dimensions) of a blob, and SliceView, the
// region of a logical blob held by one device.
//
// A Shape with a rank of 0 is a scalar. Dimensions can be 0: a split of an axis into more parts than
// the axis has elements leaves some devices holding empty slices.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/boxing/internal/utils"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Shape of a logical blob or of one of its physical shards.
//
// Use Make to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
//
// It panics if any dimension is negative.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension < 0", s)
		}
	}
	return s
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the number of bytes used to store a blob of the given shape.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// WithDim returns a copy of the shape with the dimension of axis replaced.
func (s Shape) WithDim(axis, dim int) Shape {
	s2 := s.Clone()
	s2.Dimensions[axis] = dim
	return s2
}

// ToStableHLO returns the StableHLO tensor type of the shape, e.g. "tensor<2x3xf32>".
func (s Shape) ToStableHLO() string {
	var sb strings.Builder
	sb.WriteString("tensor<")
	for _, dim := range s.Dimensions {
		_, _ = fmt.Fprintf(&sb, "%dx", dim)
	}
	sb.WriteString(utils.DTypeToStableHLO(s.DType))
	sb.WriteString(">")
	return sb.String()
}
