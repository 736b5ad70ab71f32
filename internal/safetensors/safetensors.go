// Package safetensors reads .safetensors files so their tensors can be packed
// into TBF records.
package safetensors

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	gojson "github.com/goccy/go-json"

	"github.com/samcharles93/tbf/pkg/tbf"
	"github.com/samcharles93/tbf/pkg/tensor"
)

// maxHeaderLen bounds the JSON header; real files stay far below it.
const maxHeaderLen = 100 << 20

var (
	ErrInvalidHeader    = errors.New("safetensors: invalid header")
	ErrUnsupportedDType = errors.New("safetensors: unsupported dtype")
	ErrNotFound         = errors.New("safetensors: tensor not found")
)

// TensorInfo locates one tensor. Start and End are relative to DataStart.
type TensorInfo struct {
	Name  string
	DType tensor.DType
	Shape []int64
	Start int64
	End   int64
}

// File is an opened safetensors file. Tensor data is read on demand.
type File struct {
	Path      string
	DataStart int64
	Metadata  map[string]string
	Tensors   []TensorInfo // ordered by data offset

	byName map[string]int
	size   int64
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int64 `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// DTypeOf maps a safetensors dtype name onto a tensor dtype.
func DTypeOf(name string) (tensor.DType, bool) {
	switch name {
	case "F32":
		return tensor.Float32, true
	case "F64":
		return tensor.Float64, true
	case "F16":
		return tensor.Float16, true
	case "BF16":
		return tensor.BFloat16, true
	case "I8":
		return tensor.Int8, true
	case "U8":
		return tensor.Uint8, true
	case "I16":
		return tensor.Int16, true
	case "I32":
		return tensor.Int32, true
	case "I64":
		return tensor.Int64, true
	case "BOOL":
		return tensor.Bool, true
	default:
		return tensor.Invalid, false
	}
}

// Open parses and validates the header of the file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read length: %v", ErrInvalidHeader, err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen > maxHeaderLen || int64(headerLen) > st.Size()-8 {
		return nil, fmt.Errorf("%w: header length %d", ErrInvalidHeader, headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	sf, err := parseHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	sf.Path = path
	sf.DataStart = int64(8 + headerLen)
	sf.size = st.Size() - sf.DataStart
	for _, ti := range sf.Tensors {
		if ti.End > sf.size {
			return nil, fmt.Errorf("%w: tensor %s ends at %d, data is %d bytes", ErrInvalidHeader, ti.Name, ti.End, sf.size)
		}
	}
	return sf, nil
}

func parseHeader(b []byte) (*File, error) {
	var raw map[string]gojson.RawMessage
	if err := gojson.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	sf := &File{byName: make(map[string]int, len(raw))}
	if meta, ok := raw["__metadata__"]; ok {
		if err := gojson.Unmarshal(meta, &sf.Metadata); err != nil {
			return nil, fmt.Errorf("%w: __metadata__: %v", ErrInvalidHeader, err)
		}
		delete(raw, "__metadata__")
	}

	for name, msg := range raw {
		var th tensorHeader
		if err := gojson.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, name, err)
		}
		dt, ok := DTypeOf(th.DType)
		if !ok {
			return nil, fmt.Errorf("%w: tensor %s has dtype %q", ErrUnsupportedDType, name, th.DType)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[0] < 0 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("%w: tensor %s: data_offsets %v", ErrInvalidHeader, name, th.DataOffsets)
		}
		want, err := tensor.ByteSize(dt, th.Shape)
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, name, err)
		}
		if got := th.DataOffsets[1] - th.DataOffsets[0]; got != want {
			return nil, fmt.Errorf("%w: tensor %s: %s%v needs %d bytes, offsets cover %d", ErrInvalidHeader, name, dt, th.Shape, want, got)
		}
		shape := th.Shape
		if shape == nil {
			shape = []int64{}
		}
		sf.Tensors = append(sf.Tensors, TensorInfo{
			Name:  name,
			DType: dt,
			Shape: shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		})
	}

	slices.SortFunc(sf.Tensors, func(a, b TensorInfo) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.Name, b.Name))
	})
	for i := range sf.Tensors {
		sf.byName[sf.Tensors[i].Name] = i
	}
	return sf, nil
}

// Names returns tensor names in data-offset order.
func (f *File) Names() []string {
	names := make([]string, len(f.Tensors))
	for i := range f.Tensors {
		names[i] = f.Tensors[i].Name
	}
	return names
}

// Info returns the location of the named tensor.
func (f *File) Info(name string) (TensorInfo, bool) {
	i, ok := f.byName[name]
	if !ok {
		return TensorInfo{}, false
	}
	return f.Tensors[i], true
}

// Tensor reads the named tensor into owned memory.
func (f *File) Tensor(name string) (*tensor.Tensor, error) {
	ti, ok := f.Info(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return readTensor(file, f.DataStart, ti)
}

func readTensor(r io.ReaderAt, dataStart int64, ti TensorInfo) (*tensor.Tensor, error) {
	buf := make([]byte, ti.End-ti.Start)
	if len(buf) > 0 {
		if _, err := r.ReadAt(buf, dataStart+ti.Start); err != nil {
			return nil, fmt.Errorf("read tensor %s: %w", ti.Name, err)
		}
	}
	t, err := tensor.New(ti.DType, ti.Shape, buf)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", ti.Name, err)
	}
	return t, nil
}

// Record reads every tensor into one TBF record, keyed by tensor name in
// data-offset order.
func (f *File) Record() (tbf.Record, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	rec := make(tbf.Record, 0, len(f.Tensors))
	for _, ti := range f.Tensors {
		t, err := readTensor(file, f.DataStart, ti)
		if err != nil {
			return nil, err
		}
		rec = append(rec, tbf.Field{Key: ti.Name, Tensor: t})
	}
	return rec, nil
}
