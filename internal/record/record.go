// Package record implements the zero-copy RFC 4180-family line parser (C2).
// It turns one logical line of a mapped source into fields, borrowing the
// mapping's bytes whenever a field contains no quote and decodes as valid
// UTF-8, and only allocating an owned buffer to unescape `""` or to hold a
// lossily-converted replacement.
//
// Grounded on the original Rust reader's CsvRecord::parse_line (quote
// toggling, outer-quote stripping, `""` unescaping) and on the teacher's
// scanner.go quote-bitmap field extraction for the state-machine shape.
package record

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Record is one parsed line. Ownership is tracked per field: FieldOwned
// reports whether one field had to be copied off the mapping (embedded
// quote, or invalid UTF-8), and Owned reports whether any field did.
type Record struct {
	Fields      []string
	fieldOwned  []bool
}

// FieldOwned reports whether Fields[i] is backed by a private allocation
// rather than a borrowed view of the original mapping.
func (r Record) FieldOwned(i int) bool {
	if i < 0 || i >= len(r.fieldOwned) {
		return true
	}
	return r.fieldOwned[i]
}

// Owned reports whether any field in the record required a private
// allocation.
func (r Record) Owned() bool {
	for _, o := range r.fieldOwned {
		if o {
			return true
		}
	}
	return false
}

// ToOwned returns a copy of r whose strings are safe to retain beyond the
// lifetime of the mapping backing any borrowed field. Used when promoting a
// record into the page cache.
func (r Record) ToOwned() Record {
	out := Record{
		Fields:     make([]string, len(r.Fields)),
		fieldOwned: make([]bool, len(r.fieldOwned)),
	}
	for i, f := range r.Fields {
		// A Go string copy (`+ ""` idiom would also work) detaches from any
		// backing array that aliases the mapping.
		b := make([]byte, len(f))
		copy(b, f)
		out.Fields[i] = BytesToString(b)
		out.fieldOwned[i] = true
	}
	return out
}

// ParseLine splits one logical line (no trailing 0x0A) into fields per the
// delimiter D. A trailing 0x0D is stripped before field splitting; embedded
// CR bytes inside quoted fields are preserved.
func ParseLine(line []byte, delimiter byte) Record {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}

	var fields []string
	var owned []bool
	inQuote := false
	fieldStart := 0

	appendField := func(raw []byte) {
		s, isOwned := parseField(raw)
		fields = append(fields, s)
		owned = append(owned, isOwned)
	}

	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case delimiter:
			if !inQuote {
				appendField(line[fieldStart:i])
				fieldStart = i + 1
			}
		}
	}
	appendField(line[fieldStart:])

	return Record{Fields: fields, fieldOwned: owned}
}

// parseField applies rules 4-7: strip matching outer quotes, unescape ""
// within them, and decide borrowed-vs-owned.
func parseField(raw []byte) (string, bool) {
	body := raw
	if len(body) >= 2 && body[0] == '"' && body[len(body)-1] == '"' {
		body = body[1 : len(body)-1]
	}

	if !bytes.ContainsRune(body, '"') {
		if utf8.Valid(body) {
			return BytesToString(body), false
		}
		return strings.ToValidUTF8(string(body), string(utf8.RuneError)), true
	}

	unescaped := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == '"' && i+1 < len(body) && body[i+1] == '"' {
			unescaped = append(unescaped, '"')
			i++
			continue
		}
		unescaped = append(unescaped, body[i])
	}

	if utf8.Valid(unescaped) {
		return BytesToString(unescaped), true
	}
	return strings.ToValidUTF8(string(unescaped), string(utf8.RuneError)), true
}
