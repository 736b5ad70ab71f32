// Package batchjson converts between TBF records and a JSON description of
// them. The JSON form is what `tbf pack` reads and `tbf dump --json` writes:
//
//	{
//	  "page_size": 4096,
//	  "records": [
//	    [{"key": "x", "dtype": "int32", "shape": [2, 2], "data": [1, 2, 3, 4]}],
//	    []
//	  ]
//	}
//
// Each record is an array so key order survives a round trip. Float data may
// use the strings "NaN", "Inf" and "-Inf".
package batchjson

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/samcharles93/tbf/pkg/tbf"
	"github.com/samcharles93/tbf/pkg/tensor"
)

var ErrInvalidValue = errors.New("batchjson: invalid value")

// Batch is the top-level JSON document.
type Batch struct {
	PageSize int       `json:"page_size,omitempty"`
	Records  [][]Field `json:"records"`
}

// Field is one tensor. A nil Shape means a 1-D tensor of len(Data); a nil
// Data means a zero-filled tensor of Shape.
type Field struct {
	Key       string  `json:"key"`
	DType     string  `json:"dtype"`
	Shape     []int64 `json:"shape"`
	Data      []any   `json:"data"`
	Truncated bool    `json:"truncated,omitempty"`
}

// Decode reads a Batch from r. Numbers are kept as literals until the target
// dtype is known, so int64 values do not pass through float64.
func Decode(r io.Reader) (*Batch, error) {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var b Batch
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("batchjson: decode: %w", err)
	}
	return &b, nil
}

// Load decodes the batch file at path.
func Load(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Encode writes v as JSON, indented when indent is set.
func Encode(w io.Writer, v any, indent bool) error {
	enc := gojson.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// TBFRecords converts every record in b.
func (b *Batch) TBFRecords() ([]tbf.Record, error) {
	out := make([]tbf.Record, len(b.Records))
	for i, fields := range b.Records {
		rec := make(tbf.Record, 0, len(fields))
		for j := range fields {
			t, err := fields[j].Tensor()
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i, fields[j].Key, err)
			}
			rec = append(rec, tbf.Field{Key: fields[j].Key, Tensor: t})
		}
		out[i] = rec
	}
	return out, nil
}

// Tensor builds the tensor f describes.
func (f *Field) Tensor() (*tensor.Tensor, error) {
	dt, err := tensor.ParseDType(f.DType)
	if err != nil {
		return nil, err
	}
	shape := f.Shape
	if shape == nil {
		shape = []int64{int64(len(f.Data))}
	}
	if f.Data == nil {
		return tensor.Empty(dt, shape)
	}

	switch dt {
	case tensor.Float32:
		return build(shape, f.Data, func(v any) (float32, error) {
			x, err := parseFloat(v, 32)
			return float32(x), err
		})
	case tensor.Float64:
		return build(shape, f.Data, func(v any) (float64, error) { return parseFloat(v, 64) })
	case tensor.Float16:
		return build(shape, f.Data, func(v any) (tensor.Float16, error) {
			x, err := parseFloat(v, 32)
			return tensor.Float16From(float32(x)), err
		})
	case tensor.BFloat16:
		return build(shape, f.Data, func(v any) (tensor.BFloat16, error) {
			x, err := parseFloat(v, 32)
			return tensor.BFloat16From(float32(x)), err
		})
	case tensor.Int8:
		return build(shape, f.Data, func(v any) (int8, error) {
			x, err := parseInt(v, 8)
			return int8(x), err
		})
	case tensor.Uint8:
		return build(shape, f.Data, func(v any) (uint8, error) {
			x, err := parseUint(v, 8)
			return uint8(x), err
		})
	case tensor.Int16:
		return build(shape, f.Data, func(v any) (int16, error) {
			x, err := parseInt(v, 16)
			return int16(x), err
		})
	case tensor.Int32:
		return build(shape, f.Data, func(v any) (int32, error) {
			x, err := parseInt(v, 32)
			return int32(x), err
		})
	case tensor.Int64:
		return build(shape, f.Data, func(v any) (int64, error) { return parseInt(v, 64) })
	case tensor.Bool:
		return build(shape, f.Data, parseBool)
	default:
		return nil, fmt.Errorf("%w: dtype %s", ErrInvalidValue, dt)
	}
}

func build[T tensor.Element](shape []int64, data []any, parse func(any) (T, error)) (*tensor.Tensor, error) {
	vals := make([]T, len(data))
	for i, v := range data {
		x, err := parse(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		vals[i] = x
	}
	return tensor.FromSlice(shape, vals)
}

func parseFloat(v any, bits int) (float64, error) {
	switch x := v.(type) {
	case gojson.Number:
		f, err := strconv.ParseFloat(string(x), bits)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f, nil
	case float64:
		return x, nil
	case string:
		switch strings.ToLower(x) {
		case "nan":
			return math.NaN(), nil
		case "inf", "+inf", "infinity":
			return math.Inf(1), nil
		case "-inf", "-infinity":
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not a float", ErrInvalidValue, v)
}

func parseInt(v any, bits int) (int64, error) {
	switch x := v.(type) {
	case gojson.Number:
		n, err := strconv.ParseInt(string(x), 10, bits)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return n, nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			break
		}
		n := int64(x)
		if bits < 64 && (n < -(1<<(bits-1)) || n >= 1<<(bits-1)) {
			return 0, fmt.Errorf("%w: %d out of range for int%d", ErrInvalidValue, n, bits)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, v)
}

func parseUint(v any, bits int) (uint64, error) {
	n, err := parseInt(v, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(uint64(1)<<bits-1) {
		return 0, fmt.Errorf("%w: %d out of range for uint%d", ErrInvalidValue, n, bits)
	}
	return uint64(n), nil
}

func parseBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case gojson.Number:
		switch x {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a bool", ErrInvalidValue, v)
}

// FromRecord describes rec as JSON fields. When limit > 0, at most limit
// elements of each tensor are included and Truncated is set.
func FromRecord(rec tbf.Record, limit int) []Field {
	out := make([]Field, 0, len(rec))
	for _, f := range rec {
		out = append(out, FromTensor(f.Key, f.Tensor, limit))
	}
	return out
}

// FromTensor describes t as a JSON field.
func FromTensor(key string, t *tensor.Tensor, limit int) Field {
	f := Field{Key: key, DType: t.DType().String(), Shape: t.Shape()}
	if f.Shape == nil {
		f.Shape = []int64{}
	}
	n := int(t.NumElements())
	if limit > 0 && n > limit {
		n = limit
		f.Truncated = true
	}
	f.Data = make([]any, n)

	switch t.DType() {
	case tensor.Int8, tensor.Uint8, tensor.Int16, tensor.Int32:
		for i, x := range t.Float64s()[:n] {
			f.Data[i] = int64(x)
		}
	case tensor.Int64:
		vals, _ := tensor.Values[int64](t)
		for i := range n {
			f.Data[i] = vals[i]
		}
	case tensor.Bool:
		vals, _ := tensor.Values[bool](t)
		for i := range n {
			f.Data[i] = vals[i]
		}
	default:
		for i, x := range t.Float64s()[:n] {
			f.Data[i] = floatValue(x)
		}
	}
	return f
}

func floatValue(x float64) any {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	default:
		return x
	}
}
