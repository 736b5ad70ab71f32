package tbf

import (
	"cmp"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"os"
	"slices"
	"sort"

	"github.com/samcharles93/tbf/pkg/tensor"
)

const minFileSize = FileHeaderSize + FooterSize

// Reader gives random access to the records of a finalized TBF file.
//
// The whole index is parsed and validated by Open; payloads are only touched
// when a record is materialized. A Reader is safe for concurrent use by
// multiple goroutines, but Close must not race with reads.
type Reader struct {
	data    []byte
	size    uint64
	mmapped bool
	closed  bool
	log     *slog.Logger

	header  FileHeader
	footer  Footer
	index   IndexHeader
	entries []IndexEntry
	order   []int // entry positions, stably sorted by record id
}

// FileInfo summarizes the fixed structures of an open file.
type FileInfo struct {
	Version     uint32
	FileSize    uint64
	IndexOffset uint64
	IndexSize   uint64
	EntryCount  uint64
	RecordCount uint64
	Mmapped     bool
}

// Open maps path read-only and validates its structure.
// If mmap is unavailable or disabled, it falls back to ReadAt-based loading.
// The returned reader must be closed to release any mapping.
func Open(path string, opts ...Option) (*Reader, error) {
	o := applyOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tbf: open %s: %w", path, err)
	}
	// The mapping stays valid after the descriptor is closed.
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("tbf: stat %s: %w", path, err)
	}
	size64 := st.Size()
	if size64 < minFileSize {
		return nil, formatErr(ErrTooSmall, 0, "file is %d bytes, need at least %d", size64, minFileSize)
	}
	if size64 > math.MaxInt {
		return nil, fmt.Errorf("%w: %s is %d bytes, too large to address", ErrConfiguration, path, size64)
	}
	size := int(size64)

	if o.mmap {
		data, err := mmapFile(f, size)
		if err == nil {
			r, perr := newReader(data, true, o)
			if perr != nil {
				_ = munmap(data)
				return nil, perr
			}
			o.logger.Debug("tbf: opened", "path", path, "size", size, "mmap", true, "records", r.index.RecordCount)
			return r, nil
		}
		o.logger.Debug("tbf: mmap failed, reading file", "path", path, "err", err)
	}

	data, err := readAllAt(f, size)
	if err != nil {
		return nil, fmt.Errorf("tbf: read %s: %w", path, err)
	}
	r, err := newReader(data, false, o)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("tbf: opened", "path", path, "size", size, "mmap", false, "records", r.index.RecordCount)
	return r, nil
}

// OpenReaderAt loads and validates a TBF file of the given size from r.
func OpenReaderAt(r io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrConfiguration)
	}
	if size < minFileSize {
		return nil, formatErr(ErrTooSmall, 0, "file is %d bytes, need at least %d", size, minFileSize)
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("%w: size %d too large to address", ErrConfiguration, size)
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, fmt.Errorf("tbf: read: %w", err)
	}
	return newReader(data, false, applyOptions(opts))
}

func newReader(data []byte, mmapped bool, o options) (*Reader, error) {
	r := &Reader{data: data, size: uint64(len(data)), mmapped: mmapped, log: o.logger}
	if err := r.parse(); err != nil {
		return nil, err
	}
	return r, nil
}

// parse validates the header, footer and index, in that order, and decodes
// every index entry.
func (r *Reader) parse() error {
	data := r.data
	size := uint64(len(data))
	if size < minFileSize {
		return formatErr(ErrTooSmall, 0, "file is %d bytes, need at least %d", size, minFileSize)
	}

	hdr, _ := decodeFileHeader(data)
	if hdr.Magic != magic(FileMagic) {
		return formatErr(ErrInvalidMagic, 0, "file header magic %q", hdr.Magic[:])
	}
	if hdr.Version != Version {
		return formatErr(ErrUnsupportedVersion, 8, "file header version %d", hdr.Version)
	}

	footerStart := size - FooterSize
	foot, _ := decodeFooter(data[footerStart:])
	if foot.Magic != magic(FooterMagic) {
		return formatErr(ErrInvalidMagic, footerStart, "footer magic %q", foot.Magic[:])
	}
	if foot.Version != Version {
		return formatErr(ErrUnsupportedVersion, footerStart+8, "footer version %d", foot.Version)
	}

	indexEnd, ok := foot.IndexEnd()
	if !ok || indexEnd > footerStart {
		return formatErr(ErrIndexOutOfBounds, footerStart,
			"index [%d, +%d) runs past footer at %d", foot.IndexOffset, foot.IndexSize, footerStart)
	}
	if foot.IndexOffset < FileHeaderSize {
		return formatErr(ErrIndexOutOfBounds, footerStart,
			"index offset %d overlaps file header", foot.IndexOffset)
	}

	index := data[foot.IndexOffset:indexEnd]
	ih, ok := decodeIndexHeader(index)
	if !ok {
		return formatErr(ErrTruncatedIndex, foot.IndexOffset,
			"index is %d bytes, header needs %d", len(index), IndexHeaderSize)
	}
	if ih.Magic != magic(IndexMagic) {
		return formatErr(ErrInvalidMagic, foot.IndexOffset, "index magic %q", ih.Magic[:])
	}
	if ih.Version != Version {
		return formatErr(ErrUnsupportedVersion, foot.IndexOffset+8, "index version %d", ih.Version)
	}

	// Counts are untrusted; never size an allocation from them directly.
	capHint := min(ih.EntryCount, uint64(len(index)-IndexHeaderSize)/EntryPrefixSize)
	entries := make([]IndexEntry, 0, capHint)

	pos := uint64(IndexHeaderSize)
	n := uint64(len(index))
	for k := uint64(0); k < ih.EntryCount; k++ {
		at := foot.IndexOffset + pos
		p, ok := decodeEntryPrefix(index[pos:])
		if !ok {
			return formatErr(ErrTruncatedIndex, at, "entry %d prefix needs %d bytes, %d left", k, EntryPrefixSize, n-pos)
		}
		pos += EntryPrefixSize

		dimBytes := uint64(p.NDim) * dimSize
		if n-pos < dimBytes {
			return formatErr(ErrTruncatedIndex, at, "entry %d dims need %d bytes, %d left", k, dimBytes, n-pos)
		}
		shape := make([]int64, p.NDim)
		for d := range shape {
			shape[d] = getInt64(index[pos:])
			pos += dimSize
		}

		if n-pos < uint64(p.KeyLen) {
			return formatErr(ErrTruncatedIndex, at, "entry %d key needs %d bytes, %d left", k, p.KeyLen, n-pos)
		}
		key := string(index[pos : pos+uint64(p.KeyLen)])
		pos += uint64(p.KeyLen)

		if p.RecordID >= ih.RecordCount {
			return formatErr(ErrRecordIDOutOfRange, at,
				"entry %d (%q) has record id %d, record count is %d", k, key, p.RecordID, ih.RecordCount)
		}

		entries = append(entries, IndexEntry{
			RecordID:   p.RecordID,
			Key:        key,
			DTypeCode:  p.DTypeCode,
			Shape:      shape,
			DataOffset: p.DataOffset,
			NBytes:     p.NBytes,
		})
	}
	if pos != n {
		return formatErr(ErrTrailingIndexBytes, foot.IndexOffset+pos,
			"%d bytes left after %d entries", n-pos, ih.EntryCount)
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(entries[a].RecordID, entries[b].RecordID)
	})

	r.header = hdr
	r.footer = foot
	r.index = ih
	r.entries = entries
	r.order = order
	return nil
}

// Len returns the number of records, clamped to the int range.
func (r *Reader) Len() int {
	if r.index.RecordCount > math.MaxInt {
		return math.MaxInt
	}
	return int(r.index.RecordCount)
}

func (r *Reader) RecordCount() uint64 { return r.index.RecordCount }

func (r *Reader) EntryCount() uint64 { return r.index.EntryCount }

// Info reports the file's fixed structure values.
func (r *Reader) Info() FileInfo {
	return FileInfo{
		Version:     r.header.Version,
		FileSize:    r.size,
		IndexOffset: r.footer.IndexOffset,
		IndexSize:   r.footer.IndexSize,
		EntryCount:  r.index.EntryCount,
		RecordCount: r.index.RecordCount,
		Mmapped:     r.mmapped,
	}
}

// Metadata returns a copy of every index entry in write order.
func (r *Reader) Metadata() []IndexEntry {
	out := make([]IndexEntry, len(r.entries))
	for i := range r.entries {
		out[i] = r.entries[i].clone()
	}
	return out
}

// Record materializes record i. Negative i counts from the end, so -1 is
// the last record. Every returned tensor owns its memory and stays valid
// after Close.
//
// If a key repeats within a record, the later entry replaces the earlier
// one in its original position.
func (r *Reader) Record(i int) (Record, error) {
	if r.closed {
		return nil, ErrReaderClosed
	}
	n := r.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, n)
	}
	id := uint64(i)

	lo := sort.Search(len(r.order), func(k int) bool { return r.entries[r.order[k]].RecordID >= id })
	hi := sort.Search(len(r.order), func(k int) bool { return r.entries[r.order[k]].RecordID > id })

	rec := make(Record, 0, hi-lo)
	for _, pos := range r.order[lo:hi] {
		t, err := r.tensorAt(&r.entries[pos])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec = rec.set(r.entries[pos].Key, t)
	}
	return rec, nil
}

// Records iterates over every record in order. Iteration stops after the
// first error.
func (r *Reader) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for i := range r.Len() {
			rec, err := r.Record(i)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

func (r *Reader) tensorAt(e *IndexEntry) (*tensor.Tensor, error) {
	dt, ok := e.DTypeCode.DType()
	if !ok {
		return nil, formatErr(ErrUnknownDTypeCode, e.DataOffset, "key %q has dtype code %d", e.Key, uint16(e.DTypeCode))
	}
	want, err := tensor.ByteSize(dt, e.Shape)
	if err != nil {
		return nil, formatErr(ErrShapeMismatch, e.DataOffset, "key %q: %v", e.Key, err)
	}
	if uint64(want) != e.NBytes {
		return nil, formatErr(ErrShapeMismatch, e.DataOffset,
			"key %q: %s%v needs %d bytes, entry has %d", e.Key, dt, e.Shape, want, e.NBytes)
	}
	if e.NBytes == 0 {
		return tensor.Empty(dt, e.Shape)
	}

	end := e.End()
	if end < e.DataOffset || end > uint64(len(r.data)) {
		return nil, formatErr(ErrPayloadOutOfBounds, e.DataOffset,
			"key %q: payload [%d, %d) outside %d-byte file", e.Key, e.DataOffset, end, len(r.data))
	}
	view, err := tensor.View(dt, e.Shape, r.data[e.DataOffset:end])
	if err != nil {
		return nil, formatErr(ErrShapeMismatch, e.DataOffset, "key %q: %v", e.Key, err)
	}
	return view.Clone(), nil
}

// Close releases the mapping. Calling Close again is a no-op.
func (r *Reader) Close() error {
	if r == nil || r.closed {
		return nil
	}
	r.closed = true
	data := r.data
	r.data = nil
	r.log.Debug("tbf: reader closed", "size", r.size, "mmap", r.mmapped)
	if r.mmapped {
		r.mmapped = false
		return munmap(data)
	}
	return nil
}
