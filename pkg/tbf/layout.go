package tbf

import "encoding/binary"

// FileHeader sits at offset 0.
type FileHeader struct {
	Magic    [8]byte
	Version  uint32
	Reserved uint32
}

// IndexHeader starts the index block.
type IndexHeader struct {
	Magic       [8]byte
	Version     uint32
	EntryCount  uint64
	RecordCount uint64
}

// EntryPrefix is the fixed-size head of a serialized IndexEntry.
// It is followed by NDim int64 dims and KeyLen key bytes.
type EntryPrefix struct {
	RecordID   uint64
	KeyLen     uint32
	DTypeCode  DTypeCode
	NDim       uint16
	DataOffset uint64
	NBytes     uint64
}

// Footer occupies the last FooterSize bytes of every finalized file.
type Footer struct {
	Magic       [8]byte
	Version     uint32
	IndexOffset uint64
	IndexSize   uint64
	Reserved    [footerReservedSz]byte
}

// IndexEnd returns the absolute offset one past the index block.
// The second result is false if the sum overflows.
func (f *Footer) IndexEnd() (uint64, bool) {
	end := f.IndexOffset + f.IndexSize
	return end, end >= f.IndexOffset
}

func magic(s string) (m [8]byte) {
	copy(m[:], s)
	return m
}

func newFileHeader() FileHeader {
	return FileHeader{Magic: magic(FileMagic), Version: Version}
}

func newIndexHeader(entries, records uint64) IndexHeader {
	return IndexHeader{Magic: magic(IndexMagic), Version: Version, EntryCount: entries, RecordCount: records}
}

func newFooter(indexOffset, indexSize uint64) Footer {
	return Footer{Magic: magic(FooterMagic), Version: Version, IndexOffset: indexOffset, IndexSize: indexSize}
}

// Layout matches the struct fields in order (little-endian, no padding).

func encodeFileHeader(b []byte, h FileHeader) bool {
	if len(b) < FileHeaderSize {
		return false
	}
	copy(b[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(b[8:12], h.Version)
	binary.LittleEndian.PutUint32(b[12:16], h.Reserved)
	return true
}

func decodeFileHeader(b []byte) (FileHeader, bool) {
	var h FileHeader
	if len(b) < FileHeaderSize {
		return h, false
	}
	copy(h.Magic[:], b[0:8])
	h.Version = binary.LittleEndian.Uint32(b[8:12])
	h.Reserved = binary.LittleEndian.Uint32(b[12:16])
	return h, true
}

func encodeIndexHeader(b []byte, h IndexHeader) bool {
	if len(b) < IndexHeaderSize {
		return false
	}
	copy(b[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(b[8:12], h.Version)
	binary.LittleEndian.PutUint64(b[12:20], h.EntryCount)
	binary.LittleEndian.PutUint64(b[20:28], h.RecordCount)
	return true
}

func decodeIndexHeader(b []byte) (IndexHeader, bool) {
	var h IndexHeader
	if len(b) < IndexHeaderSize {
		return h, false
	}
	copy(h.Magic[:], b[0:8])
	h.Version = binary.LittleEndian.Uint32(b[8:12])
	h.EntryCount = binary.LittleEndian.Uint64(b[12:20])
	h.RecordCount = binary.LittleEndian.Uint64(b[20:28])
	return h, true
}

func encodeEntryPrefix(b []byte, p EntryPrefix) bool {
	if len(b) < EntryPrefixSize {
		return false
	}
	binary.LittleEndian.PutUint64(b[0:8], p.RecordID)
	binary.LittleEndian.PutUint32(b[8:12], p.KeyLen)
	binary.LittleEndian.PutUint16(b[12:14], uint16(p.DTypeCode))
	binary.LittleEndian.PutUint16(b[14:16], p.NDim)
	binary.LittleEndian.PutUint64(b[16:24], p.DataOffset)
	binary.LittleEndian.PutUint64(b[24:32], p.NBytes)
	return true
}

func decodeEntryPrefix(b []byte) (EntryPrefix, bool) {
	var p EntryPrefix
	if len(b) < EntryPrefixSize {
		return p, false
	}
	p.RecordID = binary.LittleEndian.Uint64(b[0:8])
	p.KeyLen = binary.LittleEndian.Uint32(b[8:12])
	p.DTypeCode = DTypeCode(binary.LittleEndian.Uint16(b[12:14]))
	p.NDim = binary.LittleEndian.Uint16(b[14:16])
	p.DataOffset = binary.LittleEndian.Uint64(b[16:24])
	p.NBytes = binary.LittleEndian.Uint64(b[24:32])
	return p, true
}

func encodeFooter(b []byte, f Footer) bool {
	if len(b) < FooterSize {
		return false
	}
	copy(b[0:8], f.Magic[:])
	binary.LittleEndian.PutUint32(b[8:12], f.Version)
	binary.LittleEndian.PutUint64(b[12:20], f.IndexOffset)
	binary.LittleEndian.PutUint64(b[20:28], f.IndexSize)
	copy(b[28:64], f.Reserved[:])
	return true
}

func decodeFooter(b []byte) (Footer, bool) {
	var f Footer
	if len(b) < FooterSize {
		return f, false
	}
	copy(f.Magic[:], b[0:8])
	f.Version = binary.LittleEndian.Uint32(b[8:12])
	f.IndexOffset = binary.LittleEndian.Uint64(b[12:20])
	f.IndexSize = binary.LittleEndian.Uint64(b[20:28])
	copy(f.Reserved[:], b[28:64])
	return f, true
}

func putInt64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }

func getInt64(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) }
