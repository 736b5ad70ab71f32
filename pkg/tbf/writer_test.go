package tbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/tbf/pkg/tensor"
)

func mustTensor[T tensor.Element](t *testing.T, shape []int64, vals []T) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromSlice(shape, vals)
	require.NoError(t, err)
	return tt
}

// exampleRecords is the two-record batch used across the golden and
// cross-producer tests.
func exampleRecords(t *testing.T) []Record {
	t.Helper()
	return []Record{
		{
			{Key: "x", Tensor: mustTensor(t, []int64{2, 2}, []int32{1, 2, 3, 4})},
			{Key: "y", Tensor: mustTensor(t, []int64{3}, []uint8{9, 8, 7})},
		},
		{
			{Key: "z", Tensor: mustTensor(t, []int64{2}, []float32{1.5, -2.0})},
		},
	}
}

// rawEntry is written by hand so the golden file does not share code with
// the encoder under test.
type rawEntry struct {
	record uint64
	key    string
	code   uint16
	dims   []int64
	offset uint64
	data   []byte
}

func buildGolden(pageSize uint64, records uint64, entries []rawEntry) []byte {
	le := binary.LittleEndian
	out := []byte("TBFDATA1")
	out = le.AppendUint32(out, 1)
	out = le.AppendUint32(out, 0)

	for _, e := range entries {
		for uint64(len(out)) < e.offset {
			out = append(out, 0)
		}
		if e.offset%pageSize != 0 {
			panic("golden entry not aligned")
		}
		out = append(out, e.data...)
	}

	indexOffset := uint64(len(out))
	out = append(out, "TBFIDX01"...)
	out = le.AppendUint32(out, 1)
	out = le.AppendUint64(out, uint64(len(entries)))
	out = le.AppendUint64(out, records)
	for _, e := range entries {
		out = le.AppendUint64(out, e.record)
		out = le.AppendUint32(out, uint32(len(e.key)))
		out = le.AppendUint16(out, e.code)
		out = le.AppendUint16(out, uint16(len(e.dims)))
		out = le.AppendUint64(out, e.offset)
		out = le.AppendUint64(out, uint64(len(e.data)))
		for _, d := range e.dims {
			out = le.AppendUint64(out, uint64(d))
		}
		out = append(out, e.key...)
	}
	indexSize := uint64(len(out)) - indexOffset

	out = append(out, "TBFTRLR1"...)
	out = le.AppendUint32(out, 1)
	out = le.AppendUint64(out, indexOffset)
	out = le.AppendUint64(out, indexSize)
	out = append(out, make([]byte, 36)...)
	return out
}

func exampleGolden() []byte {
	return buildGolden(4096, 2, []rawEntry{
		{record: 0, key: "x", code: 8, dims: []int64{2, 2}, offset: 4096,
			data: []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}},
		{record: 0, key: "y", code: 6, dims: []int64{3}, offset: 8192,
			data: []byte{9, 8, 7}},
		{record: 1, key: "z", code: 1, dims: []int64{2}, offset: 12288,
			data: []byte{0x00, 0x00, 0xC0, 0x3F, 0x00, 0x00, 0x00, 0xC0}},
	})
}

func TestWriterExampleMatchesGoldenBytes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.AddRecords(exampleRecords(t)...))
	require.NoError(t, w.Close())

	got := buf.Bytes()
	want := exampleGolden()
	require.Len(t, got, 12519)
	require.True(t, bytes.Equal(want, got), "encoded file differs from golden layout")

	le := binary.LittleEndian
	foot := got[len(got)-FooterSize:]
	assert.Equal(t, uint64(12296), le.Uint64(foot[12:20]))
	assert.Equal(t, uint64(159), le.Uint64(foot[20:28]))
	assert.Equal(t, uint64(12519), w.Offset())
	assert.Equal(t, uint64(3), w.EntryCount())
	assert.Equal(t, uint64(2), w.RecordCount())
}

func TestCreateWritesSameBytesAsStream(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "example.tbf")
	require.NoError(t, WriteFile(path, exampleRecords(t)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, exampleGolden(), got)
}

func TestWriterEmptyFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, buildGolden(4096, 0, nil), buf.Bytes())
	assert.Len(t, buf.Bytes(), FileHeaderSize+IndexHeaderSize+FooterSize)
}

func TestWriterEmptyRecordsStillCount(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.AddRecords(Record{}, exampleRecords(t)[1], Record{}))
	require.NoError(t, w.Close())

	idx := buf.Bytes()[4096+8:]
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(idx[12:20]))
	assert.Equal(t, uint64(3), binary.LittleEndian.Uint64(idx[20:28]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(idx[28:36]), "z belongs to record 1")
}

func TestWriterPadsEmptyPayloads(t *testing.T) {
	t.Parallel()

	empty, err := tensor.Empty(tensor.Float32, []int64{0, 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithPageSize(64))
	require.NoError(t, err)
	require.NoError(t, w.AddRecord(Record{
		{Key: "a", Tensor: mustTensor(t, []int64{1}, []uint8{1})},
		{Key: "e", Tensor: empty},
	}))
	// 16-byte header, pad to 64, 1 byte, pad to 128 for the empty payload.
	assert.Equal(t, uint64(128), w.Offset())
	require.NoError(t, w.Close())
}

func TestWriterInvalidPageSize(t *testing.T) {
	t.Parallel()

	for _, ps := range []int{0, -4096} {
		_, err := NewWriter(&bytes.Buffer{}, WithPageSize(ps))
		assert.ErrorIs(t, err, ErrConfiguration)

		_, err = Create(filepath.Join(t.TempDir(), "x.tbf"), WithPageSize(ps))
		assert.ErrorIs(t, err, ErrConfiguration)
	}
	_, err := NewWriter(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestWriterRejectsBadInput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	start := w.Offset()

	err = w.AddRecord(Record{
		{Key: "a", Tensor: mustTensor(t, []int64{1}, []int8{1})},
		{Key: "a", Tensor: mustTensor(t, []int64{1}, []int8{2})},
	})
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, start, w.Offset(), "nothing written for a rejected record")
	assert.Equal(t, uint64(0), w.RecordCount())

	err = w.AddRecord(Record{{Key: "nil"}})
	require.ErrorIs(t, err, ErrConfiguration)

	err = w.AddTensor(0, "bad", &tensor.Tensor{})
	require.ErrorIs(t, err, ErrUnsupportedDType)

	err = w.AddTensor(1, "skip", mustTensor(t, []int64{1}, []int8{1}))
	require.ErrorIs(t, err, ErrConfiguration)

	assert.Equal(t, uint64(0), w.EntryCount())
	require.NoError(t, w.Close())
}

func TestWriterDirectAddTensorRaisesRecordCount(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.AddTensor(0, "a", mustTensor(t, []int64{1}, []int64{7})))
	assert.Equal(t, uint64(1), w.RecordCount())
	require.NoError(t, w.Close())

	r, err := OpenReaderAt(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	rec, err := r.Record(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rec.Keys())
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.AddRecord(exampleRecords(t)[0]))
	require.NoError(t, w.Close())
	size := buf.Len()

	require.NoError(t, w.Close())
	assert.Equal(t, size, buf.Len(), "second close must not write")

	assert.ErrorIs(t, w.AddRecord(Record{}), ErrWriterClosed)
	assert.ErrorIs(t, w.AddTensor(0, "k", mustTensor(t, []int64{1}, []bool{true})), ErrWriterClosed)
}

type failingWriter struct {
	n    int
	fail error
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n < len(p) {
		k := f.n
		f.n = 0
		return k, f.fail
	}
	f.n -= len(p)
	return len(p), nil
}

func TestWriterFailureIsSticky(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	fw := &failingWriter{n: 100, fail: boom}
	w, err := NewWriter(fw)
	require.NoError(t, err)

	err = w.AddRecord(exampleRecords(t)[0])
	require.ErrorIs(t, err, boom)

	err = w.AddRecord(Record{})
	require.ErrorIs(t, err, ErrWriterFailed)
	require.ErrorIs(t, err, boom)

	err = w.Close()
	require.ErrorIs(t, err, ErrWriterFailed)
	require.NoError(t, w.Close())
}
