package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Element is the set of Go types that map one-to-one onto a DType.
type Element interface {
	float32 | float64 | Float16 | BFloat16 | int8 | uint8 | int16 | int32 | int64 | bool
}

// DTypeOf returns the DType stored for elements of type T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case Float16:
		return Float16
	case BFloat16:
		return BFloat16
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case bool:
		return Bool
	default:
		return Invalid
	}
}

// FromSlice builds an owning tensor from vals laid out row-major in shape.
func FromSlice[T Element](shape []int64, vals []T) (*Tensor, error) {
	dtype := DTypeOf[T]()
	t, err := Empty(dtype, shape)
	if err != nil {
		return nil, err
	}
	if t.NumElements() != int64(len(vals)) {
		return nil, fmt.Errorf("%w: shape %v holds %d elements, got %d values",
			ErrSizeMismatch, shape, t.NumElements(), len(vals))
	}
	if len(vals) == 0 {
		return t, nil
	}
	if _, err := binary.Encode(t.data, binary.LittleEndian, vals); err != nil {
		return nil, fmt.Errorf("tensor: encode %s: %w", dtype, err)
	}
	return t, nil
}

// Scalar builds a rank-0 tensor holding v.
func Scalar[T Element](v T) *Tensor {
	t, err := FromSlice([]int64{}, []T{v})
	if err != nil {
		// A rank-0 shape always holds exactly one element.
		panic(err)
	}
	return t
}

// Values decodes t into a freshly allocated slice. T must match t's dtype.
func Values[T Element](t *Tensor) ([]T, error) {
	want := DTypeOf[T]()
	if t.dtype != want {
		return nil, fmt.Errorf("%w: tensor is %s, requested %s", ErrInvalidDType, t.dtype, want)
	}
	out := make([]T, t.NumElements())
	if len(out) == 0 {
		return out, nil
	}
	if _, err := binary.Decode(t.data, binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("tensor: decode %s: %w", t.dtype, err)
	}
	return out, nil
}

// Float64s widens every element of t to float64. Booleans become 0 or 1.
// Int64 values beyond 2^53 lose precision.
func (t *Tensor) Float64s() []float64 {
	n := int(t.NumElements())
	out := make([]float64, n)
	b := t.data
	switch t.dtype {
	case Float32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
		}
	case Float64:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	case Float16:
		for i := range out {
			out[i] = float64(Float16(binary.LittleEndian.Uint16(b[i*2:])).Float32())
		}
	case BFloat16:
		for i := range out {
			out[i] = float64(BFloat16(binary.LittleEndian.Uint16(b[i*2:])).Float32())
		}
	case Int8:
		for i := range out {
			out[i] = float64(int8(b[i]))
		}
	case Uint8:
		for i := range out {
			out[i] = float64(b[i])
		}
	case Int16:
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(b[i*2:])))
		}
	case Int32:
		for i := range out {
			out[i] = float64(int32(binary.LittleEndian.Uint32(b[i*4:])))
		}
	case Int64:
		for i := range out {
			out[i] = float64(int64(binary.LittleEndian.Uint64(b[i*8:])))
		}
	case Bool:
		for i := range out {
			if b[i] != 0 {
				out[i] = 1
			}
		}
	}
	return out
}
