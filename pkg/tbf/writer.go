package tbf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samcharles93/tbf/pkg/tensor"
)

const writerPadBufSize = 4096

// Writer streams records into a TBF file.
//
// Payloads are written as they are added; the index and footer are only
// written by Close, so a file whose writer was never closed has no footer and
// will not open. A Writer is not safe for concurrent use.
type Writer struct {
	dst  io.Writer
	file *os.File // set when the writer owns the sink

	pageSize int
	sync     bool
	log      *slog.Logger

	offset    uint64
	entries   []IndexEntry
	records   uint64 // completed AddRecord calls
	highWater uint64 // 1 + largest record id used by AddTensor
	closed    bool
	err       error

	padBuf []byte
}

// Create creates or truncates path and returns a Writer that owns the file.
// The file header is written before Create returns.
func Create(path string, opts ...Option) (*Writer, error) {
	o := applyOptions(opts)
	if o.pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be > 0, got %d", ErrConfiguration, o.pageSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tbf: create %s: %w", path, err)
	}
	w, err := newWriter(f, f, o)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter returns a Writer over dst. The writer tracks its own offset and
// never seeks, so any forward-only sink works. dst is not closed by Close.
func NewWriter(dst io.Writer, opts ...Option) (*Writer, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: nil destination", ErrConfiguration)
	}
	o := applyOptions(opts)
	if o.pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be > 0, got %d", ErrConfiguration, o.pageSize)
	}
	return newWriter(dst, nil, o)
}

func newWriter(dst io.Writer, file *os.File, o options) (*Writer, error) {
	w := &Writer{
		dst:      dst,
		file:     file,
		pageSize: o.pageSize,
		sync:     o.sync,
		log:      o.logger,
		padBuf:   make([]byte, min(o.pageSize, writerPadBufSize)),
	}
	var hdr [FileHeaderSize]byte
	encodeFileHeader(hdr[:], newFileHeader())
	if err := w.write(hdr[:]); err != nil {
		return nil, err
	}
	return w, nil
}

// PageSize returns the payload alignment.
func (w *Writer) PageSize() int { return w.pageSize }

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() uint64 { return w.offset }

// EntryCount returns the number of tensors written so far.
func (w *Writer) EntryCount() uint64 { return uint64(len(w.entries)) }

// RecordCount returns the record count the index would carry if the writer
// were closed now.
func (w *Writer) RecordCount() uint64 { return max(w.records, w.highWater) }

func (w *Writer) usable() error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return fmt.Errorf("%w: %w", ErrWriterFailed, w.err)
	}
	return nil
}

// AddTensor appends one tensor under recordID.
//
// recordID may name any record already started, or the next one; it cannot
// skip ahead. The payload is zero-padded to the next page boundary before it
// is written.
func (w *Writer) AddTensor(recordID uint64, key string, t *tensor.Tensor) error {
	if err := w.usable(); err != nil {
		return err
	}
	if recordID > w.records {
		return fmt.Errorf("%w: record id %d skips ahead of next record %d", ErrConfiguration, recordID, w.records)
	}
	code, err := checkTensor(key, t)
	if err != nil {
		return err
	}
	if err := w.addTensor(recordID, key, code, t); err != nil {
		return err
	}
	w.highWater = max(w.highWater, recordID+1)
	return nil
}

// AddRecord writes every field of rec under the next sequential record id.
// Empty records are allowed and still consume an id.
func (w *Writer) AddRecord(rec Record) error {
	if err := w.usable(); err != nil {
		return err
	}

	// Validate the whole record before any bytes hit the sink.
	codes := make([]DTypeCode, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for i := range rec {
		if _, dup := seen[rec[i].Key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, rec[i].Key)
		}
		seen[rec[i].Key] = struct{}{}
		code, err := checkTensor(rec[i].Key, rec[i].Tensor)
		if err != nil {
			return err
		}
		codes[i] = code
	}

	id := w.records
	for i := range rec {
		if err := w.addTensor(id, rec[i].Key, codes[i], rec[i].Tensor); err != nil {
			return err
		}
	}
	w.records++
	w.log.Debug("tbf: record added", "record", id, "tensors", len(rec), "offset", w.offset)
	return nil
}

// AddRecords calls AddRecord for each record in order, stopping at the first error.
func (w *Writer) AddRecords(recs ...Record) error {
	for i := range recs {
		if err := w.AddRecord(recs[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func checkTensor(key string, t *tensor.Tensor) (DTypeCode, error) {
	if t == nil {
		return 0, fmt.Errorf("%w: nil tensor for key %q", ErrConfiguration, key)
	}
	code, ok := CodeOf(t.DType())
	if !ok {
		return 0, fmt.Errorf("%w: %s (key %q)", ErrUnsupportedDType, t.DType(), key)
	}
	if len(t.Shape()) > int(^uint16(0)) {
		return 0, fmt.Errorf("%w: rank %d too large for key %q", ErrConfiguration, t.Rank(), key)
	}
	if uint64(len(key)) > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: key of %d bytes too long", ErrConfiguration, len(key))
	}
	return code, nil
}

func (w *Writer) addTensor(recordID uint64, key string, code DTypeCode, t *tensor.Tensor) error {
	start, err := AlignUp(w.offset, w.pageSize)
	if err != nil {
		return err
	}
	if err := w.pad(start - w.offset); err != nil {
		return err
	}
	data := t.Bytes()
	if len(data) > 0 {
		if err := w.write(data); err != nil {
			return err
		}
	}
	w.entries = append(w.entries, IndexEntry{
		RecordID:   recordID,
		Key:        key,
		DTypeCode:  code,
		Shape:      t.Shape(),
		DataOffset: start,
		NBytes:     uint64(len(data)),
	})
	w.log.Debug("tbf: tensor written", "record", recordID, "key", key, "dtype", code, "offset", start, "nbytes", len(data))
	return nil
}

func (w *Writer) pad(n uint64) error {
	for n > 0 {
		chunk := min(n, uint64(len(w.padBuf)))
		if err := w.write(w.padBuf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// write sends p to the sink. A failure is sticky: the stream position is no
// longer known, so every later call fails.
func (w *Writer) write(p []byte) error {
	if err := writeFull(w.dst, p); err != nil {
		w.err = err
		return fmt.Errorf("tbf: write at offset %d: %w", w.offset, err)
	}
	w.offset += uint64(len(p))
	return nil
}

// Close writes the index and footer and releases an owned file.
// Calling Close again is a no-op. If an earlier write failed, Close releases
// the file without writing a footer and reports the failure.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.err != nil {
		err := fmt.Errorf("%w: %w", ErrWriterFailed, w.err)
		return errors.Join(err, w.closeFile())
	}

	if err := w.finish(); err != nil {
		return errors.Join(err, w.closeFile())
	}
	return w.closeFile()
}

func (w *Writer) finish() error {
	indexOffset := w.offset
	index := encodeIndex(w.entries, w.RecordCount())
	if err := w.write(index); err != nil {
		return err
	}

	var foot [FooterSize]byte
	encodeFooter(foot[:], newFooter(indexOffset, uint64(len(index))))
	if err := w.write(foot[:]); err != nil {
		return err
	}

	w.log.Debug("tbf: index written",
		"entries", len(w.entries),
		"records", w.RecordCount(),
		"index_offset", indexOffset,
		"index_size", len(index),
		"file_size", w.offset,
	)

	if w.file != nil && w.sync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("tbf: sync: %w", err)
		}
	}
	return nil
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	return f.Close()
}

// encodeIndex serializes the index header followed by every entry.
func encodeIndex(entries []IndexEntry, recordCount uint64) []byte {
	size := IndexHeaderSize
	for i := range entries {
		size += entries[i].encodedSize()
	}
	buf := make([]byte, size)
	encodeIndexHeader(buf, newIndexHeader(uint64(len(entries)), recordCount))

	off := IndexHeaderSize
	for i := range entries {
		e := &entries[i]
		encodeEntryPrefix(buf[off:], EntryPrefix{
			RecordID:   e.RecordID,
			KeyLen:     uint32(len(e.Key)),
			DTypeCode:  e.DTypeCode,
			NDim:       uint16(len(e.Shape)),
			DataOffset: e.DataOffset,
			NBytes:     e.NBytes,
		})
		off += EntryPrefixSize
		for _, d := range e.Shape {
			putInt64(buf[off:], d)
			off += dimSize
		}
		off += copy(buf[off:], e.Key)
	}
	return buf
}

// WriteFile writes records to path in one step. The file is finalized even
// when adding a record fails, so the records before the failure remain readable.
func WriteFile(path string, records []Record, opts ...Option) error {
	w, err := Create(path, opts...)
	if err != nil {
		return err
	}
	err = w.AddRecords(records...)
	return errors.Join(err, w.Close())
}
