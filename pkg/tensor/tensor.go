package tensor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrInvalidDType = errors.New("tensor: invalid dtype")
	ErrInvalidShape = errors.New("tensor: invalid shape")
	ErrSizeMismatch = errors.New("tensor: data size does not match shape")
)

// Tensor is a dense, row-major array whose elements are stored as
// little-endian bytes.
//
// A Tensor either owns its buffer (New, Empty, Clone, FromSlice) or borrows
// it (View). Borrowed tensors are only valid while the backing memory is;
// call Clone before handing one to code that may outlive it.
type Tensor struct {
	dtype DType
	shape []int64
	data  []byte
	owned bool
}

// NumElements returns the element count for shape. A rank-0 shape is a
// scalar and holds one element. Negative dims and overflow are rejected.
func NumElements(shape []int64) (int64, error) {
	n := int64(1)
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: dim %d is negative (%d)", ErrInvalidShape, i, d)
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, fmt.Errorf("%w: element count overflows", ErrInvalidShape)
		}
		n *= d
	}
	return n, nil
}

// ByteSize returns the payload size in bytes of a tensor with the given dtype and shape.
func ByteSize(dtype DType, shape []int64) (int64, error) {
	if !dtype.Valid() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDType, dtype)
	}
	n, err := NumElements(shape)
	if err != nil {
		return 0, err
	}
	size := int64(dtype.Size())
	if n > math.MaxInt64/size {
		return 0, fmt.Errorf("%w: byte size overflows", ErrInvalidShape)
	}
	nbytes := n * size
	if nbytes > int64(math.MaxInt) {
		return 0, fmt.Errorf("%w: byte size %d exceeds addressable memory", ErrInvalidShape, nbytes)
	}
	return nbytes, nil
}

// New returns a tensor that owns a copy of data.
func New(dtype DType, shape []int64, data []byte) (*Tensor, error) {
	t, err := View(dtype, shape, data)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Empty returns a zero-filled tensor of the given dtype and shape.
func Empty(dtype DType, shape []int64) (*Tensor, error) {
	nbytes, err := ByteSize(dtype, shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{
		dtype: dtype,
		shape: slices.Clone(shape),
		data:  make([]byte, nbytes),
		owned: true,
	}, nil
}

// View wraps buf without copying it. len(buf) must equal the byte size
// implied by dtype and shape.
func View(dtype DType, shape []int64, buf []byte) (*Tensor, error) {
	nbytes, err := ByteSize(dtype, shape)
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) != nbytes {
		return nil, fmt.Errorf("%w: %s%v needs %d bytes, got %d", ErrSizeMismatch, dtype, shape, nbytes, len(buf))
	}
	return &Tensor{
		dtype: dtype,
		shape: slices.Clone(shape),
		data:  buf,
	}, nil
}

// Clone returns a tensor that owns an independent copy of t's bytes.
func (t *Tensor) Clone() *Tensor {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return &Tensor{
		dtype: t.dtype,
		shape: slices.Clone(t.shape),
		data:  data,
		owned: true,
	}
}

// Reshape returns a view of t with a new shape holding the same number of elements.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	v, err := View(t.dtype, shape, t.data)
	if err != nil {
		return nil, err
	}
	v.owned = t.owned
	return v, nil
}

func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the dimensions. A scalar has an empty shape.
func (t *Tensor) Shape() []int64 { return slices.Clone(t.shape) }

func (t *Tensor) Rank() int { return len(t.shape) }

// NumElements returns the number of elements (1 for a scalar).
func (t *Tensor) NumElements() int64 {
	size := t.dtype.Size()
	if size == 0 {
		return 0
	}
	return int64(len(t.data) / size)
}

// NBytes returns the payload size in bytes.
func (t *Tensor) NBytes() int { return len(t.data) }

// Bytes returns the raw little-endian payload. The slice aliases the
// tensor's storage and must not be modified when the tensor is a view.
func (t *Tensor) Bytes() []byte { return t.data }

// Owned reports whether the tensor owns its storage.
func (t *Tensor) Owned() bool { return t.owned }

// Equal reports whether a and b have the same dtype, shape and bytes.
func Equal(a, b *Tensor) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.dtype == b.dtype && slices.Equal(a.shape, b.shape) && bytes.Equal(a.data, b.data)
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, shape=%v, nbytes=%d)", t.dtype, t.shape, len(t.data))
}
