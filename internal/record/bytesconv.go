package record

import "unsafe"

// BytesToString reinterprets b as a string without copying. The caller must
// guarantee b is not mutated for the lifetime of the returned string, which
// holds here because the only mutable backing store in this package is the
// page cache's owned copies, and those are never written to after creation.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
