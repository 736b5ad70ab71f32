// Package tensor provides the small host tensor runtime used by TBF: a typed,
// shaped, contiguous little-endian byte buffer plus the conversions needed to
// build one from Go slices and read it back.
package tensor

import "fmt"

// DType identifies the element type of a tensor.
type DType uint8

// Supported element types. The zero value is deliberately invalid.
const (
	Invalid DType = iota
	Float32
	Float64
	Float16
	BFloat16
	Int8
	Uint8
	Int16
	Int32
	Int64
	Bool
)

var dtypeNames = [...]string{
	Invalid:  "invalid",
	Float32:  "float32",
	Float64:  "float64",
	Float16:  "float16",
	BFloat16: "bfloat16",
	Int8:     "int8",
	Uint8:    "uint8",
	Int16:    "int16",
	Int32:    "int32",
	Int64:    "int64",
	Bool:     "bool",
}

// DTypes returns every valid dtype in declaration order.
func DTypes() []DType {
	return []DType{Float32, Float64, Float16, BFloat16, Int8, Uint8, Int16, Int32, Int64, Bool}
}

// Size returns the element width in bytes, or 0 for an invalid dtype.
func (dt DType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16, BFloat16, Int16:
		return 2
	case Int8, Uint8, Bool:
		return 1
	default:
		return 0
	}
}

// Valid reports whether dt is one of the supported element types.
func (dt DType) Valid() bool {
	return dt.Size() != 0
}

func (dt DType) String() string {
	if int(dt) < len(dtypeNames) {
		return dtypeNames[dt]
	}
	return fmt.Sprintf("dtype(%d)", uint8(dt))
}

// ParseDType resolves a dtype name as returned by DType.String.
// A few common aliases ("f32", "bf16", "u8", ...) are accepted too.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32", "f32":
		return Float32, nil
	case "float64", "f64":
		return Float64, nil
	case "float16", "f16", "half":
		return Float16, nil
	case "bfloat16", "bf16":
		return BFloat16, nil
	case "int8", "i8":
		return Int8, nil
	case "uint8", "u8":
		return Uint8, nil
	case "int16", "i16":
		return Int16, nil
	case "int32", "i32":
		return Int32, nil
	case "int64", "i64":
		return Int64, nil
	case "bool":
		return Bool, nil
	default:
		return Invalid, fmt.Errorf("%w: %q", ErrInvalidDType, s)
	}
}
