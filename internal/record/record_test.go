package record

import "testing"

func fieldsOf(r Record) []string { return r.Fields }

func TestParseLineBasic(t *testing.T) {
	tests := []struct {
		name string
		line string
		sep  byte
		want []string
	}{
		{"simple", "1,2", ',', []string{"1", "2"}},
		{"empty field", "a,,c", ',', []string{"a", "", "c"}},
		{"trailing delimiter", "a,b,", ',', []string{"a", "b", ""}},
		{"empty input", "", ',', []string{""}},
		{"quoted field", `"hello",world`, ',', []string{"hello", "world"}},
		{"delimiter inside quotes", `"a,b",c`, ',', []string{"a,b", "c"}},
		{"escaped quote", `"hel""lo",wo,rld`, ',', []string{`hel"lo`, "wo", "rld"}},
		{"trailing CR stripped", "a,b\r", ',', []string{"a", "b"}},
		{"embedded CR preserved in quotes", "\"a\rb\",c", ',', []string{"a\rb", "c"}},
		{"custom delimiter", "a;b;c", ';', []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fieldsOf(ParseLine([]byte(tt.line), tt.sep))
			if len(got) != len(tt.want) {
				t.Fatalf("ParseLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("ParseLine(%q)[%d] = %q, want %q", tt.line, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// S4 from spec.md §8: one record with a mix of quoted/escaped/bare fields.
func TestParseLineScenarioS4(t *testing.T) {
	got := fieldsOf(ParseLine([]byte(`"hel""lo",wo,rld`), ','))
	want := []string{`hel"lo`, "wo", "rld"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestZeroCopyField(t *testing.T) {
	line := []byte("abc,def")
	r := ParseLine(line, ',')
	if r.FieldOwned(0) {
		t.Errorf("expected field 0 to be borrowed (no quotes)")
	}
	if r.FieldOwned(1) {
		t.Errorf("expected field 1 to be borrowed (no quotes)")
	}
}

func TestOwnedOnEscapedQuote(t *testing.T) {
	r := ParseLine([]byte(`"a""b",c`), ',')
	if !r.FieldOwned(0) {
		t.Errorf("expected field 0 to be owned (embedded quote)")
	}
	if r.FieldOwned(1) {
		t.Errorf("expected field 1 to be borrowed")
	}
}

func TestToOwnedDetaches(t *testing.T) {
	line := []byte("abc,def")
	r := ParseLine(line, ',').ToOwned()
	for i := range r.Fields {
		if !r.FieldOwned(i) {
			t.Errorf("field %d: expected owned after ToOwned", i)
		}
	}
	if r.Fields[0] != "abc" || r.Fields[1] != "def" {
		t.Fatalf("unexpected fields after ToOwned: %v", r.Fields)
	}
}
