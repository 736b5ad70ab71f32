package tbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/samcharles93/tbf/pkg/tensor"
)

func TestFixedStructEncodingLittleEndian(t *testing.T) {
	t.Parallel()

	var hb [FileHeaderSize]byte
	if !encodeFileHeader(hb[:], newFileHeader()) {
		t.Fatalf("encode file header failed")
	}
	wantHdr := append([]byte("TBFDATA1"), 1, 0, 0, 0, 0, 0, 0, 0)
	if !bytes.Equal(hb[:], wantHdr) {
		t.Fatalf("file header bytes = %x, want %x", hb, wantHdr)
	}

	var ib [IndexHeaderSize]byte
	encodeIndexHeader(ib[:], newIndexHeader(3, 2))
	if string(ib[0:8]) != IndexMagic {
		t.Fatalf("index magic = %q", ib[0:8])
	}
	if got := binary.LittleEndian.Uint32(ib[8:12]); got != Version {
		t.Fatalf("index version = %d", got)
	}
	if got := binary.LittleEndian.Uint64(ib[12:20]); got != 3 {
		t.Fatalf("entry count = %d", got)
	}
	if got := binary.LittleEndian.Uint64(ib[20:28]); got != 2 {
		t.Fatalf("record count = %d", got)
	}

	p := EntryPrefix{
		RecordID:   0x0102030405060708,
		KeyLen:     5,
		DTypeCode:  CodeBFloat16,
		NDim:       2,
		DataOffset: 8192,
		NBytes:     24,
	}
	var pb [EntryPrefixSize]byte
	encodeEntryPrefix(pb[:], p)
	if pb[0] != 0x08 || pb[7] != 0x01 {
		t.Fatalf("record id not little-endian: %x", pb[0:8])
	}
	if got := binary.LittleEndian.Uint16(pb[12:14]); got != 4 {
		t.Fatalf("dtype code = %d", got)
	}
	back, ok := decodeEntryPrefix(pb[:])
	if !ok || back != p {
		t.Fatalf("entry prefix decode = %+v, want %+v", back, p)
	}

	var fb [FooterSize]byte
	encodeFooter(fb[:], newFooter(12296, 159))
	if string(fb[0:8]) != FooterMagic {
		t.Fatalf("footer magic = %q", fb[0:8])
	}
	if got := binary.LittleEndian.Uint64(fb[12:20]); got != 12296 {
		t.Fatalf("index offset = %d", got)
	}
	if got := binary.LittleEndian.Uint64(fb[20:28]); got != 159 {
		t.Fatalf("index size = %d", got)
	}
	if !bytes.Equal(fb[28:], make([]byte, footerReservedSz)) {
		t.Fatalf("footer reserved bytes not zero: %x", fb[28:])
	}
	foot, ok := decodeFooter(fb[:])
	if !ok || foot != newFooter(12296, 159) {
		t.Fatalf("footer decode = %+v", foot)
	}
}

func TestDecodeShortBuffers(t *testing.T) {
	t.Parallel()

	if _, ok := decodeFileHeader(make([]byte, FileHeaderSize-1)); ok {
		t.Fatalf("file header decoded from short buffer")
	}
	if _, ok := decodeIndexHeader(make([]byte, IndexHeaderSize-1)); ok {
		t.Fatalf("index header decoded from short buffer")
	}
	if _, ok := decodeEntryPrefix(make([]byte, EntryPrefixSize-1)); ok {
		t.Fatalf("entry prefix decoded from short buffer")
	}
	if _, ok := decodeFooter(make([]byte, FooterSize-1)); ok {
		t.Fatalf("footer decoded from short buffer")
	}
}

func TestMagicsDistinct(t *testing.T) {
	t.Parallel()

	m := map[string]bool{FileMagic: true, IndexMagic: true, FooterMagic: true}
	if len(m) != 3 {
		t.Fatalf("magic tags collide")
	}
	for k := range m {
		if len(k) != 8 {
			t.Fatalf("magic %q is not 8 bytes", k)
		}
	}
}

func TestAlignUp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value uint64
		align int
		want  uint64
	}{
		{0, 4096, 0},
		{1, 4096, 4096},
		{16, 4096, 4096},
		{4096, 4096, 4096},
		{4097, 4096, 8192},
		{12291, 4096, 16384},
		{7, 1, 7},
		{10, 3, 12},
	}
	for _, tc := range cases {
		got, err := AlignUp(tc.value, tc.align)
		if err != nil {
			t.Fatalf("AlignUp(%d, %d): %v", tc.value, tc.align, err)
		}
		if got != tc.want {
			t.Fatalf("AlignUp(%d, %d) = %d, want %d", tc.value, tc.align, got, tc.want)
		}
	}

	for _, bad := range []int{0, -1} {
		if _, err := AlignUp(5, bad); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("AlignUp alignment %d: err = %v, want ErrConfiguration", bad, err)
		}
	}
	if _, err := AlignUp(^uint64(0), 4096); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("AlignUp overflow: err = %v", err)
	}
}

func TestDTypeCodeTable(t *testing.T) {
	t.Parallel()

	want := map[DTypeCode]struct {
		dt   tensor.DType
		size int
	}{
		1:  {tensor.Float32, 4},
		2:  {tensor.Float64, 8},
		3:  {tensor.Float16, 2},
		4:  {tensor.BFloat16, 2},
		5:  {tensor.Int8, 1},
		6:  {tensor.Uint8, 1},
		7:  {tensor.Int16, 2},
		8:  {tensor.Int32, 4},
		9:  {tensor.Int64, 8},
		10: {tensor.Bool, 1},
	}
	for code, w := range want {
		dt, ok := code.DType()
		if !ok || dt != w.dt {
			t.Fatalf("code %d -> %v, want %v", code, dt, w.dt)
		}
		size, ok := code.ElementSize()
		if !ok || size != w.size {
			t.Fatalf("code %d element size = %d, want %d", code, size, w.size)
		}
		back, ok := CodeOf(dt)
		if !ok || back != code {
			t.Fatalf("CodeOf(%v) = %d, want %d", dt, back, code)
		}
	}
	for _, bad := range []DTypeCode{0, 11, 0xFFFF} {
		if _, ok := bad.DType(); ok {
			t.Fatalf("code %d should be unknown", bad)
		}
		if _, ok := bad.ElementSize(); ok {
			t.Fatalf("code %d should have no element size", bad)
		}
	}
	if _, ok := CodeOf(tensor.Invalid); ok {
		t.Fatalf("invalid dtype should have no code")
	}
}

func TestFormatErrorMatchesKindAndFormat(t *testing.T) {
	t.Parallel()

	err := formatErr(ErrTruncatedIndex, 100, "entry %d", 2)
	if !errors.Is(err, ErrFormat) || !errors.Is(err, ErrTruncatedIndex) {
		t.Fatalf("format error does not match: %v", err)
	}
	if errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("format error matches wrong kind")
	}
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Offset != 100 {
		t.Fatalf("errors.As = %+v", fe)
	}
}
