// Package tbf implements the Tensor Batch Format.
//
// TBF is a seekable, self-describing container holding an ordered sequence of
// records, each a named collection of tensors. Tensor payloads are written
// first, each aligned to a page boundary so a memory-mapped reader can view
// them in place; the index and a fixed-size footer pointing at it are
// appended when the writer is closed.
//
//	[FileHeader 16B]
//	[pad][tensor payload] ... (each payload starts at a multiple of the page size)
//	[IndexHeader 28B][IndexEntry ...]
//	[Footer 64B]
//
// All integers are little-endian and all offsets are absolute from the start
// of the file. The layout is a cross-implementation contract: it must never
// change under the current Version.
package tbf

// TBF global constants must never change.
const (
	// Version is the only format version this package reads or writes.
	Version uint32 = 1

	// DefaultPageSize is the default payload alignment.
	DefaultPageSize = 4096
)

// Magic tags. They are distinct so a corrupt offset is unlikely to land on
// a structure that validates as the wrong one.
const (
	FileMagic   = "TBFDATA1"
	IndexMagic  = "TBFIDX01"
	FooterMagic = "TBFTRLR1"
)

// Encoded sizes of the fixed structures.
const (
	FileHeaderSize  = 16
	IndexHeaderSize = 28
	EntryPrefixSize = 32
	FooterSize      = 64

	dimSize          = 8
	footerReservedSz = 36
)
