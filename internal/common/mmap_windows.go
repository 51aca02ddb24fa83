//go:build windows

package common

import (
	"io"
	"os"
)

// MmapFile falls back to a full read on Windows, where the module does not
// implement a native mapping path. Callers still get the same []byte
// contract (read-only view of the whole file); they simply pay for a copy.
func MmapFile(f *os.File) ([]byte, error) {
	return io.ReadAll(f)
}

// MunmapFile is a no-op for the ReadAll-backed Windows fallback.
func MunmapFile(data []byte) error {
	return nil
}
