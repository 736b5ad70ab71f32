package tbf

import (
	"fmt"
	"io"
)

// AlignUp returns the smallest multiple of alignment that is >= value.
func AlignUp(value uint64, alignment int) (uint64, error) {
	if alignment <= 0 {
		return 0, fmt.Errorf("%w: alignment must be > 0, got %d", ErrConfiguration, alignment)
	}
	a := uint64(alignment)
	rem := value % a
	if rem == 0 {
		return value, nil
	}
	aligned := value + (a - rem)
	if aligned < value {
		return 0, fmt.Errorf("%w: aligning offset %d overflows", ErrConfiguration, value)
	}
	return aligned, nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
