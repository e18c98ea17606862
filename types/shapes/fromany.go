package shapes

import (
	"reflect"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// FromAnyValue returns the shape of a Go value: a scalar of a supported dtype, or nested slices of them, one
// level per axis. Slices at the same level must all have the same length, and none can be empty.
//
// Example:
//
//	shape, _ := shapes.FromAnyValue([][]float32{{0, 0}}) // (Float32)[1 2]
func FromAnyValue(v any) (Shape, error) {
	if v == nil {
		return Invalid(), errors.New("FromAnyValue(nil)")
	}
	rv := reflect.ValueOf(v)
	var dims []int
	elem := rv
	for elem.Kind() == reflect.Slice {
		if elem.Len() == 0 {
			return Invalid(), errors.Errorf("FromAnyValue(%T): empty slice at axis %d", v, len(dims))
		}
		dims = append(dims, elem.Len())
		elem = elem.Index(0)
	}
	dtype := dtypes.FromGoType(elem.Type())
	if dtype == dtypes.InvalidDType {
		return Invalid(), errors.Errorf("FromAnyValue(%T): no dtype for Go type %s", v, elem.Type())
	}
	if err := checkRegular(rv, dims); err != nil {
		return Invalid(), errors.WithMessagef(err, "FromAnyValue(%T)", v)
	}
	return Make(dtype, dims...), nil
}

// checkRegular verifies every slice nested in v has the length of its axis in dims.
func checkRegular(v reflect.Value, dims []int) error {
	if len(dims) == 0 {
		return nil
	}
	if v.Len() != dims[0] {
		return errors.Errorf("irregular nested slices: found length %d where %d was expected", v.Len(), dims[0])
	}
	for i := range v.Len() {
		if err := checkRegular(v.Index(i), dims[1:]); err != nil {
			return err
		}
	}
	return nil
}
