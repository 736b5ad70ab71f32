package tbf

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("tbf: invalid configuration")
	ErrUnsupportedDType = errors.New("tbf: unsupported dtype")
	ErrDuplicateKey     = errors.New("tbf: duplicate key in record")
	ErrWriterClosed     = errors.New("tbf: writer already closed")
	ErrWriterFailed     = errors.New("tbf: writer aborted after write failure")
	ErrReaderClosed     = errors.New("tbf: reader is closed")
	ErrIndexOutOfRange  = errors.New("tbf: record index out of range")
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("tbf: malformed file")

// Format error kinds. A *FormatError carries exactly one of these.
var (
	ErrTooSmall           = errors.New("tbf: file too small")
	ErrInvalidMagic       = errors.New("tbf: invalid magic")
	ErrUnsupportedVersion = errors.New("tbf: unsupported version")
	ErrIndexOutOfBounds   = errors.New("tbf: index outside payload region")
	ErrTruncatedIndex     = errors.New("tbf: truncated index")
	ErrTrailingIndexBytes = errors.New("tbf: trailing bytes in index")
	ErrUnknownDTypeCode   = errors.New("tbf: unknown dtype code")
	ErrRecordIDOutOfRange = errors.New("tbf: entry record id exceeds record count")
	ErrPayloadOutOfBounds = errors.New("tbf: tensor payload outside file")
	ErrShapeMismatch      = errors.New("tbf: payload size does not match shape")
)

// FormatError reports a structural problem found while decoding a file.
// errors.Is matches both ErrFormat and the specific kind in Err.
type FormatError struct {
	Err     error
	Offset  uint64 // absolute file offset of the offending structure
	Details string
}

func (e *FormatError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%v (offset %d)", e.Err, e.Offset)
	}
	return fmt.Sprintf("%v (offset %d): %s", e.Err, e.Offset, e.Details)
}

func (e *FormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

func formatErr(kind error, off uint64, format string, args ...any) error {
	return &FormatError{Err: kind, Offset: off, Details: fmt.Sprintf(format, args...)}
}
