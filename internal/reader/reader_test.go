package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// S1 from spec.md §8.
func TestScenarioS1(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "s1.csv", "a,b\n1,2\n3,4\n")

	r, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	info := r.Info()
	if info.TotalRows != 2 {
		t.Fatalf("TotalRows = %d, want 2", info.TotalRows)
	}
	if strings.Join(info.Headers, ",") != "a,b" {
		t.Fatalf("Headers = %v, want [a b]", info.Headers)
	}

	page0, err := r.ReadPage(0, 10)
	if err != nil {
		t.Fatalf("ReadPage(0): %v", err)
	}
	if len(page0) != 2 {
		t.Fatalf("len(page0) = %d, want 2", len(page0))
	}
	if page0[0].Fields[0] != "1" || page0[0].Fields[1] != "2" {
		t.Fatalf("page0[0] = %v, want [1 2]", page0[0].Fields)
	}
	if page0[1].Fields[0] != "3" || page0[1].Fields[1] != "4" {
		t.Fatalf("page0[1] = %v, want [3 4]", page0[1].Fields)
	}

	page1, err := r.ReadPage(1, 10)
	if err != nil {
		t.Fatalf("ReadPage(1): %v", err)
	}
	if len(page1) != 0 {
		t.Fatalf("len(page1) = %d, want 0", len(page1))
	}
}

// S2 from spec.md §8: BOM-prefixed, header-only source.
func TestScenarioS2(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "s2.csv", "\xEF\xBB\xBFh\n")

	r, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	info := r.Info()
	if info.TotalRows != 0 {
		t.Fatalf("TotalRows = %d, want 0", info.TotalRows)
	}
	if len(info.Headers) != 1 || info.Headers[0] != "h" {
		t.Fatalf("Headers = %v, want [h]", info.Headers)
	}
	page0, err := r.ReadPage(0, 10)
	if err != nil {
		t.Fatalf("ReadPage(0): %v", err)
	}
	if len(page0) != 0 {
		t.Fatalf("len(page0) = %d, want 0", len(page0))
	}
}

// S3 from spec.md §8: CRLF data rows, single-column, G=2.
func TestScenarioS3(t *testing.T) {
	dir := t.TempDir()
	content := "x\n" + strings.Repeat("a\r\n", 3)
	path := writeTemp(t, dir, "s3.csv", content)

	r, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.Info().TotalRows; got != 3 {
		t.Fatalf("TotalRows = %d, want 3", got)
	}
	if len(r.idx.Rows) != 1 || r.idx.Rows[0] != 2 {
		t.Fatalf("anchors = %v, want exactly one entry at row 2", r.idx.Rows)
	}

	page0, err := r.ReadPage(0, 2)
	if err != nil {
		t.Fatalf("ReadPage(0): %v", err)
	}
	if len(page0) != 2 || page0[0].Fields[0] != "a" || page0[1].Fields[0] != "a" {
		t.Fatalf("page0 = %v, want [[a] [a]]", page0)
	}

	page1, err := r.ReadPage(1, 2)
	if err != nil {
		t.Fatalf("ReadPage(1): %v", err)
	}
	if len(page1) != 1 || page1[0].Fields[0] != "a" {
		t.Fatalf("page1 = %v, want [[a]]", page1)
	}
}

func TestOpenPersistsAndReloadsIndex(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 0; i < 1000; i++ {
		b.WriteString("x,y\n")
	}
	path := writeTemp(t, dir, "big.csv", b.String())

	r1, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 10})
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	firstTotal := r1.Info().TotalRows
	firstAnchors := append([]int64{}, r1.idx.Rows...)
	r1.Close()

	if _, err := os.Stat(path + ".idx"); err != nil {
		t.Fatalf("expected sidecar index file: %v", err)
	}

	r2, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 10})
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer r2.Close()

	if r2.Info().TotalRows != firstTotal {
		t.Fatalf("reloaded TotalRows = %d, want %d", r2.Info().TotalRows, firstTotal)
	}
	if len(r2.idx.Rows) != len(firstAnchors) {
		t.Fatalf("reloaded anchor count = %d, want %d", len(r2.idx.Rows), len(firstAnchors))
	}
}

// S5 from spec.md §8: deleting the .idx and reopening rebuilds identically.
func TestScenarioS5Rebuild(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 0; i < 10000; i++ {
		b.WriteString("x,y\n")
	}
	path := writeTemp(t, dir, "s5.csv", b.String())

	r1, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 100})
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	firstTotal := r1.Info().TotalRows
	firstAnchors := append([]int64{}, r1.idx.Rows...)
	r1.Close()

	if err := os.Remove(path + ".idx"); err != nil {
		t.Fatalf("remove idx: %v", err)
	}

	r2, err := Open(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 100})
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer r2.Close()

	if r2.Info().TotalRows != firstTotal {
		t.Fatalf("rebuilt TotalRows = %d, want %d", r2.Info().TotalRows, firstTotal)
	}
	for i := range firstAnchors {
		if r2.idx.Rows[i] != firstAnchors[i] {
			t.Fatalf("anchor %d differs after rebuild", i)
		}
	}
}

func TestOpenFastThenBuildAsync(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 0; i < 2000; i++ {
		b.WriteString("x,y\n")
	}
	path := writeTemp(t, dir, "fast.csv", b.String())

	r, complete, err := OpenFast(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 10})
	if err != nil {
		t.Fatalf("OpenFast: %v", err)
	}
	defer r.Close()
	if complete {
		t.Fatalf("expected an incomplete fast-open on a fresh source")
	}
	if r.Info().TotalRows == 0 {
		t.Fatalf("expected a non-zero row estimate")
	}

	page0, err := r.ReadPage(0, 20)
	if err != nil {
		t.Fatalf("ReadPage(0): %v", err)
	}
	if len(page0) != 20 {
		t.Fatalf("len(page0) = %d, want 20", len(page0))
	}

	handle := r.BuildIndexAsync()
	idx, ok := handle.Wait()
	if !ok {
		t.Fatalf("expected build to complete")
	}
	if idx.TotalRows != 2000 {
		t.Fatalf("TotalRows = %d, want 2000", idx.TotalRows)
	}
	if r.Info().TotalRows != 2000 {
		t.Fatalf("reader Info().TotalRows = %d, want 2000 after adopt", r.Info().TotalRows)
	}

	page0Again, err := r.ReadPage(0, 20)
	if err != nil {
		t.Fatalf("ReadPage(0) after adopt: %v", err)
	}
	if len(page0Again) != 20 || page0Again[0].Fields[0] != page0[0].Fields[0] {
		t.Fatalf("page contents changed after adopt: %v vs %v", page0Again, page0)
	}
}

func TestBuildHandleCancellation(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("id\n")
	for i := 0; i < 100000; i++ {
		b.WriteString("x\n")
	}
	path := writeTemp(t, dir, "cancel.csv", b.String())

	r, _, err := OpenFast(Options{Path: path, HasHeaders: true, Delimiter: ',', IndexGranularity: 10})
	if err != nil {
		t.Fatalf("OpenFast: %v", err)
	}
	defer r.Close()

	handle := r.BuildIndexAsync()
	handle.Cancel()

	done := make(chan struct{})
	go func() {
		handle.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Wait did not return promptly after Cancel")
	}
}
