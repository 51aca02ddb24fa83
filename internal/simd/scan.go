// Package simd provides word-at-a-time ("SIMD within a register") byte
// scanning for newline and delimiter search over large mapped buffers.
//
// There is no hand-written assembly here: the retrieval pack's AVX2/SSE4.2
// kernels were not available to adapt (see DESIGN.md), so this package uses
// the classic SWAR has-byte trick, 8 bytes per iteration, with a scalar tail.
// klauspost/cpuid is consulted once at init to record whether the CPU
// supports AVX2, surfaced through HasAVX2; the scan functions do not depend
// on it, and no code in this module reads it.
package simd

import (
	"encoding/binary"

	"github.com/klauspost/cpuid/v2"
)

var hasAVX2 bool

func init() {
	hasAVX2 = cpuid.CPU.Supports(cpuid.AVX2)
}

// HasAVX2 reports whether the running CPU supports AVX2. The scanner itself
// is a portable SWAR implementation regardless of this value; the flag is
// informational only.
func HasAVX2() bool {
	return hasAVX2
}

const wordSize = 8

// broadcast replicates b into every byte lane of a uint64.
func broadcast(b byte) uint64 {
	return uint64(b) * 0x0101010101010101
}

// hasZeroByte reports whether any byte lane of v is zero, using the
// classic SWAR "haszero" trick.
func hasZeroByte(v uint64) bool {
	return (v-0x0101010101010101)&^v&0x8080808080808080 != 0
}

// firstZeroByte returns the index (0-7) of the first zero byte lane of v.
// Only valid when hasZeroByte(v) is true.
func firstZeroByte(v uint64) int {
	for i := 0; i < wordSize; i++ {
		if byte(v>>(8*i)) == 0 {
			return i
		}
	}
	return -1
}

// IndexByte returns the index of the first occurrence of b in data[from:],
// offset by from, or -1 if not present. It scans 8 bytes at a time.
func IndexByte(data []byte, from int, b byte) int {
	n := len(data)
	i := from
	needle := broadcast(b)

	for ; i+wordSize <= n; i += wordSize {
		word := binary.LittleEndian.Uint64(data[i : i+wordSize])
		x := word ^ needle
		if hasZeroByte(x) {
			return i + firstZeroByte(x)
		}
	}
	for ; i < n; i++ {
		if data[i] == b {
			return i
		}
	}
	return -1
}

// CountByte returns the number of occurrences of b in data.
func CountByte(data []byte, b byte) uint64 {
	var count uint64
	n := len(data)
	i := 0
	needle := broadcast(b)

	for ; i+wordSize <= n; i += wordSize {
		word := binary.LittleEndian.Uint64(data[i : i+wordSize])
		x := word ^ needle
		for hasZeroByte(x) {
			lane := firstZeroByte(x)
			count++
			// Force that lane's high bit so hasZeroByte stops reporting it,
			// then continue looking for further matches within the word.
			x |= uint64(0xFF) << uint(8*lane)
		}
	}
	for ; i < n; i++ {
		if data[i] == b {
			count++
		}
	}
	return count
}

// ScanSeparators counts the occurrences of sep in data. Kept as a thin,
// explicitly named wrapper around CountByte for callers historically tied to
// this name (column-count inference, delimiter sniffing by collaborators).
func ScanSeparators(data []byte, sep byte) uint64 {
	return CountByte(data, sep)
}

// NewlineIterator walks byte positions of 0x0A within data without
// allocating. Call Next until it returns ok == false.
type NewlineIterator struct {
	data []byte
	pos  int
}

// NewNewlineIterator returns an iterator starting at data[0].
func NewNewlineIterator(data []byte) NewlineIterator {
	return NewlineIterator{data: data}
}

// Next returns the absolute offset (relative to the start of data) of the
// next 0x0A byte, advancing the iterator past it.
func (it *NewlineIterator) Next() (int, bool) {
	idx := IndexByte(it.data, it.pos, '\n')
	if idx < 0 {
		it.pos = len(it.data)
		return 0, false
	}
	it.pos = idx + 1
	return idx, true
}
