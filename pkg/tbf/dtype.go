package tbf

import (
	"fmt"

	"github.com/samcharles93/tbf/pkg/tensor"
)

// DTypeCode is the on-disk element type identifier.
// Keep these stable forever; add new values only.
type DTypeCode uint16

const (
	CodeFloat32  DTypeCode = 1
	CodeFloat64  DTypeCode = 2
	CodeFloat16  DTypeCode = 3
	CodeBFloat16 DTypeCode = 4
	CodeInt8     DTypeCode = 5
	CodeUint8    DTypeCode = 6
	CodeInt16    DTypeCode = 7
	CodeInt32    DTypeCode = 8
	CodeInt64    DTypeCode = 9
	CodeBool     DTypeCode = 10
)

// CodeOf maps a tensor dtype to its on-disk code.
func CodeOf(dt tensor.DType) (DTypeCode, bool) {
	switch dt {
	case tensor.Float32:
		return CodeFloat32, true
	case tensor.Float64:
		return CodeFloat64, true
	case tensor.Float16:
		return CodeFloat16, true
	case tensor.BFloat16:
		return CodeBFloat16, true
	case tensor.Int8:
		return CodeInt8, true
	case tensor.Uint8:
		return CodeUint8, true
	case tensor.Int16:
		return CodeInt16, true
	case tensor.Int32:
		return CodeInt32, true
	case tensor.Int64:
		return CodeInt64, true
	case tensor.Bool:
		return CodeBool, true
	default:
		return 0, false
	}
}

// DType maps c back to a tensor dtype.
func (c DTypeCode) DType() (tensor.DType, bool) {
	switch c {
	case CodeFloat32:
		return tensor.Float32, true
	case CodeFloat64:
		return tensor.Float64, true
	case CodeFloat16:
		return tensor.Float16, true
	case CodeBFloat16:
		return tensor.BFloat16, true
	case CodeInt8:
		return tensor.Int8, true
	case CodeUint8:
		return tensor.Uint8, true
	case CodeInt16:
		return tensor.Int16, true
	case CodeInt32:
		return tensor.Int32, true
	case CodeInt64:
		return tensor.Int64, true
	case CodeBool:
		return tensor.Bool, true
	default:
		return tensor.Invalid, false
	}
}

// ElementSize returns the element width in bytes for c.
func (c DTypeCode) ElementSize() (int, bool) {
	dt, ok := c.DType()
	if !ok {
		return 0, false
	}
	return dt.Size(), true
}

func (c DTypeCode) String() string {
	if dt, ok := c.DType(); ok {
		return dt.String()
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}
