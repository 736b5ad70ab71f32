//go:build !unix

package tbf

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("tbf: mmap not supported on this platform")

func mmapFile(*os.File, int) ([]byte, error) { return nil, errNoMmap }

func munmap([]byte) error { return nil }
