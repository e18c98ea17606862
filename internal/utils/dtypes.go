package utils

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

var stableHLODTypes = map[dtypes.DType]string{
	dtypes.Float64:    "f64",
	dtypes.Float32:    "f32",
	dtypes.Float16:    "f16",
	dtypes.BFloat16:   "bf16",
	dtypes.Int64:      "i64",
	dtypes.Int32:      "i32",
	dtypes.Int16:      "i16",
	dtypes.Int8:       "i8",
	dtypes.Uint64:     "ui64",
	dtypes.Uint32:     "ui32",
	dtypes.Uint16:     "ui16",
	dtypes.Uint8:      "ui8",
	dtypes.Bool:       "i1",
	dtypes.Complex64:  "complex<f32>",
	dtypes.Complex128: "complex<f64>",
}

// DTypeToStableHLO returns the StableHLO element type of dtype.
func DTypeToStableHLO(dtype dtypes.DType) string {
	if name, found := stableHLODTypes[dtype]; found {
		return name
	}
	return fmt.Sprintf("unknown_dtype<%s>", dtype)
}
