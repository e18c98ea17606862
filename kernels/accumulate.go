package kernels

import (
	"github.com/gomlx/boxing/collective"
	"github.com/gomlx/boxing/internal/buffers"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

type addable interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func addInto[T addable](dst, src []byte) {
	d, s := buffers.As[T](dst), buffers.As[T](src)
	for i := range d {
		d[i] += s[i]
	}
}

func addFloat16Into(dst, src []byte) {
	d, s := buffers.As[float16.Float16](dst), buffers.As[float16.Float16](src)
	for i := range d {
		d[i] = float16.Fromfloat32(d[i].Float32() + s[i].Float32())
	}
}

// Accumulate adds src into dst (dst += src), both flat buffers of dtype.
// It implements collective.ReduceFn.
func Accumulate(dtype dtypes.DType, dst, src []byte) error {
	if len(dst) != len(src) {
		return errors.Errorf("Accumulate(%s): buffers have different sizes (%d and %d bytes)", dtype, len(dst), len(src))
	}
	switch dtype {
	case dtypes.Float32:
		addInto[float32](dst, src)
	case dtypes.Float64:
		addInto[float64](dst, src)
	case dtypes.Float16:
		addFloat16Into(dst, src)
	case dtypes.Int8:
		addInto[int8](dst, src)
	case dtypes.Int16:
		addInto[int16](dst, src)
	case dtypes.Int32:
		addInto[int32](dst, src)
	case dtypes.Int64:
		addInto[int64](dst, src)
	case dtypes.Uint8:
		addInto[uint8](dst, src)
	case dtypes.Uint16:
		addInto[uint16](dst, src)
	case dtypes.Uint32:
		addInto[uint32](dst, src)
	case dtypes.Uint64:
		addInto[uint64](dst, src)
	default:
		return errors.Errorf("Accumulate: dtype %s not supported", dtype)
	}
	return nil
}

var _ collective.ReduceFn = Accumulate
