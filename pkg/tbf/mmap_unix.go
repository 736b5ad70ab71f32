//go:build unix

package tbf

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps f read-only. Payloads are read at random, so readahead is
// switched off.
func mmapFile(f *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, nil
}

func munmap(data []byte) error {
	return unix.Munmap(data)
}
