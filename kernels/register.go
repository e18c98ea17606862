package kernels

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/gomlx/boxing/actor"
	"github.com/gomlx/boxing/internal/buffers"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// HostRegister is an actor.Register on host memory, holding blobs by logical blob name.
type HostRegister struct {
	mu    sync.Mutex
	blobs map[string]*actor.Blob
}

var _ actor.Register = (*HostRegister)(nil)

// NewHostRegister returns an empty register.
func NewHostRegister() *HostRegister {
	return &HostRegister{blobs: make(map[string]*actor.Blob)}
}

// Alloc allocates a zeroed blob of the given shape for lbn, replacing any previous one.
func (r *HostRegister) Alloc(lbn string, shape shapes.Shape) *actor.Blob {
	blob := &actor.Blob{Shape: shape, Data: make([]byte, shape.Memory())}
	r.Set(lbn, blob)
	return blob
}

// Set the blob of lbn.
func (r *HostRegister) Set(lbn string, blob *actor.Blob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[lbn] = blob
}

// Blob implements actor.Register.
func (r *HostRegister) Blob(lbn string) *actor.Blob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs[lbn]
}

// BlobFromValue returns a blob holding a copy of v: a scalar or a (multi-level) slice with regular
// sub-slices, e.g. [][]float32.
func BlobFromValue(v any) (*actor.Blob, error) {
	shape, err := shapes.FromAnyValue(v)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	elemType := rv.Type()
	for elemType.Kind() == reflect.Slice {
		elemType = elemType.Elem()
	}
	flat := reflect.MakeSlice(reflect.SliceOf(elemType), 0, shape.Size())
	var flatten func(v reflect.Value)
	flatten = func(v reflect.Value) {
		if v.Kind() != reflect.Slice {
			flat = reflect.Append(flat, v)
			return
		}
		for i := range v.Len() {
			flatten(v.Index(i))
		}
	}
	flatten(rv)
	data := make([]byte, shape.Memory())
	if len(data) > 0 {
		copy(data, unsafe.Slice((*byte)(flat.UnsafePointer()), len(data)))
	}
	return &actor.Blob{Shape: shape, Data: data}, nil
}

// Values returns the contents of the blob as a flat slice of T, which must match the blob's dtype.
func Values[T any](blob *actor.Blob) ([]T, error) {
	var zero T
	if dtype := dtypes.FromGoType(reflect.TypeOf(zero)); dtype != blob.Shape.DType {
		return nil, errors.Errorf("Values[%T]: blob has dtype %s", zero, blob.Shape.DType)
	}
	values := make([]T, blob.Shape.Size())
	copy(buffers.Bytes(values), blob.Data)
	return values, nil
}

// Iota returns a blob of the given shape holding 0, 1, 2... in row-major order.
func Iota(shape shapes.Shape) (*actor.Blob, error) {
	n := shape.Size()
	if n == 0 {
		return &actor.Blob{Shape: shape, Data: []byte{}}, nil
	}
	var flat any
	switch shape.DType {
	case dtypes.Float16:
		values := make([]float16.Float16, n)
		for i := range values {
			values[i] = float16.Fromfloat32(float32(i))
		}
		flat = values
	case dtypes.Float32:
		flat = iotaOf[float32](n)
	case dtypes.Float64:
		flat = iotaOf[float64](n)
	case dtypes.Int8:
		flat = iotaOf[int8](n)
	case dtypes.Int16:
		flat = iotaOf[int16](n)
	case dtypes.Int32:
		flat = iotaOf[int32](n)
	case dtypes.Int64:
		flat = iotaOf[int64](n)
	case dtypes.Uint8:
		flat = iotaOf[uint8](n)
	case dtypes.Uint16:
		flat = iotaOf[uint16](n)
	case dtypes.Uint32:
		flat = iotaOf[uint32](n)
	case dtypes.Uint64:
		flat = iotaOf[uint64](n)
	default:
		return nil, errors.Errorf("Iota: dtype %s not supported", shape.DType)
	}
	blob, err := BlobFromValue(flat)
	if err != nil {
		return nil, err
	}
	blob.Shape = shape
	return blob, nil
}

// iotaOf wraps around for dtypes too narrow to hold n.
func iotaOf[T interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}](n int) []T {
	values := make([]T, n)
	for i := range values {
		values[i] = T(i)
	}
	return values
}

// Region returns a blob with a copy of the region view of blob, which holds the region full.
func Region(blob *actor.Blob, full, view shapes.SliceView) (*actor.Blob, error) {
	if view.Rank() != full.Rank() || !full.Intersect(view).Equal(view) {
		return nil, errors.Errorf("Region: %s is not within %s", view, full)
	}
	dims := view.Dimensions()
	shape := view.Shape(blob.Shape.DType)
	region := &actor.Blob{Shape: shape, Data: make([]byte, shape.Memory())}
	if shape.Size() > 0 {
		buffers.CopyRegion(region.Data, dims, make([]int, len(dims)),
			blob.Data, full.Dimensions(), offset(view, full), dims, blob.Shape.DType.Size())
	}
	return region, nil
}
