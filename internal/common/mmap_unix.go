//go:build !windows

package common

import (
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile memory-maps f read-only for its entire length. The returned slice
// is valid until MunmapFile is called on it; the caller owns the file handle
// and may close it immediately after mapping (the mapping keeps the pages
// resident independent of the descriptor).
func MmapFile(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		// unix.Mmap rejects zero-length mappings; callers treat an empty
		// source as a valid, empty data region.
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// MunmapFile releases a mapping previously returned by MmapFile.
func MunmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
