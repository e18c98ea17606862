// Package shapeinference calculates the shape resulting from the operations of a boxing task graph and validates
// its inputs.
//
// Strategies use it to check a plan before adding nodes to the graph, and kernels to check the blobs they are
// given at execution time.
package shapeinference

import (
	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// AdjustAxisToRank returns a positive axis, adjusting negative numbers to the correct rank.
func AdjustAxisToRank(axis, rank int) (int, error) {
	if axis < -rank || axis >= rank {
		return -1, errors.Errorf("axis %d is out of range for the rank %d", axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	return axis, nil
}

// Slice calculates the output shape for a Slice operation.
// It checks that starts, limits, and strides have the correct length (matching operand rank),
// and that the slice parameters are valid for the operand's dimensions.
// Strides must be positive. Empty slices (start == limit) are valid.
func Slice(operand shapes.Shape, starts, limits, strides []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	opName := "Slice"
	if operand.DType == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("%s: invalid operand shape %s", opName, operand)
	}
	if len(starts) != rank {
		return shapes.Invalid(), errors.Errorf("%s: len(starts)=%d, but operand rank is %d", opName, len(starts), rank)
	}
	if len(limits) != rank {
		return shapes.Invalid(), errors.Errorf("%s: len(limits)=%d, but operand rank is %d", opName, len(limits), rank)
	}
	if len(strides) != rank {
		return shapes.Invalid(), errors.Errorf("%s: len(strides)=%d, but operand rank is %d", opName, len(strides), rank)
	}

	output = shapes.Shape{
		DType:      operand.DType,
		Dimensions: make([]int, rank),
	}
	for axis := 0; axis < rank; axis++ {
		start, limit, stride := starts[axis], limits[axis], strides[axis]
		dimSize := operand.Dimensions[axis]
		if stride <= 0 {
			return shapes.Invalid(), errors.Errorf("%s: stride must be positive, but got stride[%d]=%d for operand shape %s",
				opName, axis, stride, operand)
		}
		if start < 0 || start > dimSize {
			return shapes.Invalid(), errors.Errorf("%s: start index %d is out of bounds for axis %d with size %d (operand shape %s)",
				opName, start, axis, dimSize, operand)
		}
		if limit < start || limit > dimSize {
			return shapes.Invalid(), errors.Errorf("%s: limit index %d is out of bounds for axis %d (start=%d, size=%d, operand shape %s)",
				opName, limit, axis, start, dimSize, operand)
		}
		// The first one is always taken, so we use the ceiling of the division.
		output.Dimensions[axis] = (limit - start + (stride - 1)) / stride
	}
	return output, nil
}

// SliceView returns the shape of the region sub of a blob holding the region view.
// sub must be contained in view, and operand must have the dimensions of view.
func SliceView(operand shapes.Shape, view, sub shapes.SliceView) (output shapes.Shape, err error) {
	if err = checkView(operand, view); err != nil {
		return shapes.Invalid(), errors.WithMessage(err, "SliceView")
	}
	if sub.Rank() != view.Rank() {
		return shapes.Invalid(), errors.Errorf("SliceView: sub-view %s has rank %d, but view %s has rank %d",
			sub, sub.Rank(), view, view.Rank())
	}
	starts := make([]int, view.Rank())
	limits := make([]int, view.Rank())
	strides := make([]int, view.Rank())
	for axis, r := range sub.Ranges {
		outer := view.Ranges[axis]
		if r.Size() == 0 {
			starts[axis], limits[axis], strides[axis] = 0, 0, 1
			continue
		}
		if r.Begin < outer.Begin || r.End > outer.End {
			return shapes.Invalid(), errors.Errorf("SliceView: sub-view %s is not contained in view %s", sub, view)
		}
		starts[axis], limits[axis], strides[axis] = r.Begin-outer.Begin, r.End-outer.Begin, 1
	}
	return Slice(operand, starts, limits, strides)
}

// SliceBoxing validates the inputs of a SliceBoxingCopy or SliceBoxingAdd operation, where each input i holds
// the region inViews[i] of the logical blob, and returns the shape of the region outView it assembles.
func SliceBoxing(inputs []shapes.Shape, inViews []shapes.SliceView, outView shapes.SliceView) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), errors.New("SliceBoxing requires at least one input")
	}
	if len(inputs) != len(inViews) {
		return shapes.Invalid(), errors.Errorf("SliceBoxing: %d inputs given, but %d views", len(inputs), len(inViews))
	}
	dtype := inputs[0].DType
	for i, input := range inputs {
		if input.DType != dtype {
			return shapes.Invalid(), errors.Errorf("SliceBoxing: mismatched DTypes, input #0 has %s, input #%d has %s",
				dtype, i, input.DType)
		}
		if err = checkView(input, inViews[i]); err != nil {
			return shapes.Invalid(), errors.WithMessagef(err, "SliceBoxing input #%d", i)
		}
		if inViews[i].Rank() != outView.Rank() {
			return shapes.Invalid(), errors.Errorf("SliceBoxing: input #%d view %s has rank %d, but output view %s has rank %d",
				i, inViews[i], inViews[i].Rank(), outView, outView.Rank())
		}
	}
	return outView.Shape(dtype), nil
}

func checkView(operand shapes.Shape, view shapes.SliceView) error {
	if !operand.Ok() {
		return errors.Errorf("invalid operand shape %s", operand)
	}
	if operand.Rank() != view.Rank() {
		return errors.Errorf("operand shape %s has rank %d, but its view %s has rank %d",
			operand, operand.Rank(), view, view.Rank())
	}
	for axis, dim := range view.Dimensions() {
		if operand.Dimensions[axis] != dim {
			return errors.Errorf("operand shape %s doesn't match the dimensions of its view %s", operand, view)
		}
	}
	return nil
}

// Concatenate calculates the output shape of a Concatenate operation.
// It takes a slice of input shapes and the dimension along which to concatenate.
func Concatenate(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), errors.Errorf("Concatenate requires at least one input shape")
	}
	firstShape := inputs[0]
	dtype := firstShape.DType
	rank := firstShape.Rank()
	output = firstShape.Clone()
	if dtype == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("invalid shape %s for first input of Concatenate", firstShape)
	}
	if len(inputs) == 1 {
		return firstShape, nil
	}
	if axis < 0 || axis >= rank {
		return shapes.Invalid(), errors.Errorf("invalid concatenation axis %d for shapes with rank %d", axis, rank)
	}
	for i := 1; i < len(inputs); i++ {
		currentShape := inputs[i]
		if currentShape.DType != dtype {
			return shapes.Invalid(), errors.Errorf("mismatched DTypes for Concatenate: input #0 has %s, input #%d has %s",
				dtype, i, currentShape.DType)
		}
		if currentShape.Rank() != rank {
			return shapes.Invalid(), errors.Errorf("mismatched ranks for Concatenate: input #0 has rank %d, input #%d has rank %d",
				rank, i, currentShape.Rank())
		}
		for d := 0; d < rank; d++ {
			if d == axis {
				output.Dimensions[d] += currentShape.Dimensions[d]
			} else if currentShape.Dimensions[d] != output.Dimensions[d] {
				return shapes.Invalid(), errors.Errorf("mismatched dimensions for Concatenate at axis %d (non-concatenation axis): input #0 has %d, input #%d has %d",
					d, output.Dimensions[d], i, currentShape.Dimensions[d])
			}
		}
	}
	return output, nil
}

func checkReplicaGroups(opName string, operand shapes.Shape, replicaGroups [][]int) error {
	if !operand.Ok() {
		return errors.Errorf("%s: invalid operand shape %s", opName, operand)
	}
	if len(replicaGroups) == 0 {
		return errors.Errorf("%s: replica_groups cannot be empty", opName)
	}
	size := len(replicaGroups[0])
	for i, group := range replicaGroups {
		if len(group) != size || size == 0 {
			return errors.Errorf("%s: replica group #%d has %d members, expected %d", opName, i, len(group), size)
		}
	}
	return nil
}

// AllGather returns the output shape for an all_gather operation.
func AllGather(operand shapes.Shape, replicaGroups [][]int, allGatherDim int) (output shapes.Shape, err error) {
	if err = checkReplicaGroups("AllGather", operand, replicaGroups); err != nil {
		return shapes.Invalid(), err
	}
	if allGatherDim < 0 || allGatherDim >= operand.Rank() {
		return shapes.Invalid(), errors.Errorf("AllGather: all_gather_dim %d is out of bounds for operand rank %d", allGatherDim, operand.Rank())
	}
	output = operand.Clone()
	output.Dimensions[allGatherDim] *= len(replicaGroups[0])
	return output, nil
}

// ReduceScatter returns the output shape for a reduce_scatter operation: the dimension scatterDim of the operand
// must be divisible by the size of the replica groups.
func ReduceScatter(operand shapes.Shape, replicaGroups [][]int, scatterDim int) (output shapes.Shape, err error) {
	if err = checkReplicaGroups("ReduceScatter", operand, replicaGroups); err != nil {
		return shapes.Invalid(), err
	}
	if scatterDim < 0 || scatterDim >= operand.Rank() {
		return shapes.Invalid(), errors.Errorf("ReduceScatter: scatter_dimension %d is out of bounds for operand rank %d", scatterDim, operand.Rank())
	}
	groupSize := len(replicaGroups[0])
	if operand.Dimensions[scatterDim]%groupSize != 0 {
		return shapes.Invalid(), errors.Errorf("ReduceScatter: scatter_dimension size %d is not divisible by the replica group size %d",
			operand.Dimensions[scatterDim], groupSize)
	}
	output = operand.Clone()
	output.Dimensions[scatterDim] /= groupSize
	return output, nil
}

// AllToAll returns the output shape for an all_to_all operation.
func AllToAll(operand shapes.Shape, replicaGroups [][]int, splitDimension, concatDimension, splitCount int) (output shapes.Shape, err error) {
	if err = checkReplicaGroups("AllToAll", operand, replicaGroups); err != nil {
		return shapes.Invalid(), err
	}
	if splitDimension < 0 || splitDimension >= operand.Rank() {
		return shapes.Invalid(), errors.Errorf("AllToAll: split_dimension %d is out of bounds for operand rank %d", splitDimension, operand.Rank())
	}
	if concatDimension < 0 || concatDimension >= operand.Rank() {
		return shapes.Invalid(), errors.Errorf("AllToAll: concat_dimension %d is out of bounds for operand rank %d", concatDimension, operand.Rank())
	}
	if splitCount <= 0 {
		return shapes.Invalid(), errors.Errorf("AllToAll: split_count %d must be positive", splitCount)
	}
	if operand.Dimensions[splitDimension]%splitCount != 0 {
		return shapes.Invalid(), errors.Errorf("AllToAll: split_dimension size %d is not divisible by split_count %d", operand.Dimensions[splitDimension], splitCount)
	}
	output = operand.Clone()
	output.Dimensions[splitDimension] /= splitCount
	output.Dimensions[concatDimension] *= splitCount
	return output, nil
}

// AllReduce returns the output shape for an all_reduce operation, always a sum in boxing.
// The output shape is identical to the operand shape.
func AllReduce(operand shapes.Shape, replicaGroups [][]int) (output shapes.Shape, err error) {
	if err = checkReplicaGroups("AllReduce", operand, replicaGroups); err != nil {
		return shapes.Invalid(), err
	}
	if operand.DType == dtypes.Bool {
		return shapes.Invalid(), errors.Errorf("AllReduce: cannot sum operand of dtype %s", operand.DType)
	}
	return operand.Clone(), nil
}
