// Package buffers manipulates regions of row-major flat buffers, the memory layout of blobs.
package buffers

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Strides returns the row-major strides, in elements, of a buffer with the given dimensions.
func Strides(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= dims[axis]
	}
	return strides
}

// RowFn is called for each pair of contiguous rows (last axis of a region) of the destination and source.
type RowFn func(dstRow, srcRow []byte)

// ForEachRow calls fn for each row of the region of dimensions regionDims that starts at srcStart in src
// (a buffer with dimensions srcDims), and the corresponding row of the region starting at dstStart in dst.
// Elements are elemSize bytes long.
func ForEachRow(dst []byte, dstDims, dstStart []int, src []byte, srcDims, srcStart []int, regionDims []int, elemSize int, fn RowFn) {
	rank := len(regionDims)
	if rank == 0 {
		fn(dst[:elemSize], src[:elemSize])
		return
	}
	for _, dim := range regionDims {
		if dim == 0 {
			return
		}
	}
	srcStrides, dstStrides := Strides(srcDims), Strides(dstDims)
	rowBytes := regionDims[rank-1] * elemSize
	idx := make([]int, rank-1)
	for {
		srcOffset, dstOffset := srcStart[rank-1], dstStart[rank-1]
		for axis := range idx {
			srcOffset += (srcStart[axis] + idx[axis]) * srcStrides[axis]
			dstOffset += (dstStart[axis] + idx[axis]) * dstStrides[axis]
		}
		srcOffset *= elemSize
		dstOffset *= elemSize
		fn(dst[dstOffset:dstOffset+rowBytes], src[srcOffset:srcOffset+rowBytes])

		// Increment the index, last axis first.
		axis := rank - 2
		for ; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < regionDims[axis] {
				break
			}
			idx[axis] = 0
		}
		if axis < 0 {
			return
		}
	}
}

// CopyRegion copies a region of src to dst. See ForEachRow for the arguments.
func CopyRegion(dst []byte, dstDims, dstStart []int, src []byte, srcDims, srcStart []int, regionDims []int, elemSize int) {
	ForEachRow(dst, dstDims, dstStart, src, srcDims, srcStart, regionDims, elemSize, func(dstRow, srcRow []byte) {
		copy(dstRow, srcRow)
	})
}

// Split splits src, with dimensions dims, in n equal parts along axis.
func Split(src []byte, dims []int, axis, n, elemSize int) ([][]byte, error) {
	if axis < 0 || axis >= len(dims) {
		return nil, errors.Errorf("buffers.Split: axis %d out of range for dimensions %v", axis, dims)
	}
	if n <= 0 || dims[axis]%n != 0 {
		return nil, errors.Errorf("buffers.Split: dimension %d of axis %d is not divisible in %d parts", dims[axis], axis, n)
	}
	partDims := append([]int(nil), dims...)
	partDims[axis] /= n
	partSize := elemSize
	for _, dim := range partDims {
		partSize *= dim
	}
	zeros := make([]int, len(dims))
	parts := make([][]byte, n)
	for i := range parts {
		parts[i] = make([]byte, partSize)
		srcStart := make([]int, len(dims))
		srcStart[axis] = i * partDims[axis]
		CopyRegion(parts[i], partDims, zeros, src, dims, srcStart, partDims, elemSize)
	}
	return parts, nil
}

// Concat concatenates into dst the parts, all with dimensions partDims, along axis.
func Concat(dst []byte, parts [][]byte, partDims []int, axis, elemSize int) error {
	if axis < 0 || axis >= len(partDims) {
		return errors.Errorf("buffers.Concat: axis %d out of range for dimensions %v", axis, partDims)
	}
	dstDims := append([]int(nil), partDims...)
	dstDims[axis] *= len(parts)
	if want := Size(dstDims) * elemSize; len(dst) != want {
		return errors.Errorf("buffers.Concat: destination has %d bytes, %d expected", len(dst), want)
	}
	zeros := make([]int, len(partDims))
	for i, part := range parts {
		dstStart := make([]int, len(partDims))
		dstStart[axis] = i * partDims[axis]
		CopyRegion(dst, dstDims, dstStart, part, partDims, zeros, partDims, elemSize)
	}
	return nil
}

// Size returns the number of elements of a buffer with the given dimensions.
func Size(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}

// As reinterprets the bytes of b as a slice of T, without copying.
func As[T any](b []byte) []T {
	var dummy T
	n := len(b) / int(unsafe.Sizeof(dummy))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

// Bytes reinterprets the slice as bytes, without copying.
func Bytes[T any](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var dummy T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), uintptr(len(values))*unsafe.Sizeof(dummy))
}
