package simd

import (
	"strings"
	"testing"
)

func TestIndexByte(t *testing.T) {
	tests := []struct {
		name  string
		input string
		from  int
		want  int
	}{
		{"empty", "", 0, -1},
		{"not found", "hello world", 0, -1},
		{"first byte", ",a,b", 0, 0},
		{"mid word", "0123,5678", 0, 4},
		{"exact word boundary", strings.Repeat("x", 8) + ",", 0, 8},
		{"second word", strings.Repeat("x", 16) + ",", 0, 16},
		{"search from offset", "a,b,c", 2, 3},
		{"tail only", strings.Repeat("x", 9) + ",", 9, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndexByte([]byte(tt.input), tt.from, ','); got != tt.want {
				t.Errorf("IndexByte(%q, %d) = %d, want %d", tt.input, tt.from, got, tt.want)
			}
		})
	}
}

func TestCountByte(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint64
	}{
		{"empty", "", 0},
		{"dense in one word", ",,,,,,,,", 8},
		{"spans words", strings.Repeat("a,", 20), 20},
		{"none", strings.Repeat("a", 100), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountByte([]byte(tt.input), ','); got != tt.want {
				t.Errorf("CountByte(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewlineIterator(t *testing.T) {
	data := []byte("a\nbb\n\nccc")
	it := NewNewlineIterator(data)

	var got []int
	for {
		pos, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, pos)
	}

	want := []int{1, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
