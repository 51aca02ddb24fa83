// Package index implements the sparse row-offset index (C3): construction
// (full, partial and resumable), the parallel builder, and binary-search
// seek. Persistence lives in persist.go (C4).
//
// Grounded on the original Rust RowIndex::build/seek_to_row_with_info
// (original_source/src/csv/index.rs) for the scan and lookup semantics, and
// on the teacher's scanner.go chunked-goroutine pattern (boundary snapping,
// sync.WaitGroup fan-out) for the parallel variant.
package index

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tablescan/tablescan/internal/common"
	"github.com/tablescan/tablescan/internal/simd"
)

// SparseIndex is the in-memory anchor table described in spec §3. Rows and
// Offsets are parallel, strictly-increasing sequences; Rows[i] is always a
// multiple of Granularity.
type SparseIndex struct {
	Rows         []int64
	Offsets      []int64
	Granularity  int64
	TotalRows    int64
	IsComplete   bool
	IndexedBytes int64
}

// Clone returns a deep copy, used before handing an index to a background
// builder so the foreground reader's copy is never mutated concurrently.
func (idx *SparseIndex) Clone() *SparseIndex {
	out := &SparseIndex{
		Granularity:  idx.Granularity,
		TotalRows:    idx.TotalRows,
		IsComplete:   idx.IsComplete,
		IndexedBytes: idx.IndexedBytes,
	}
	out.Rows = append(out.Rows, idx.Rows...)
	out.Offsets = append(out.Offsets, idx.Offsets...)
	return out
}

// Seek returns the byte offset of the anchor at or immediately below
// targetRow, along with that anchor's row number. When targetRow precedes
// the first anchor (or none exist), it returns (dataStart, 0) so the caller
// scans forward from the start of the data region.
func (idx *SparseIndex) Seek(targetRow, dataStart int64) (offset int64, anchorRow int64, err error) {
	if targetRow >= idx.TotalRows {
		return 0, 0, common.OutOfRangeError("index.Seek", targetRow, idx.TotalRows)
	}
	if len(idx.Rows) == 0 || targetRow < idx.Rows[0] {
		return dataStart, 0, nil
	}

	i := sort.Search(len(idx.Rows), func(i int) bool { return idx.Rows[i] > targetRow })
	// i is the first anchor strictly greater than targetRow; step back one to
	// the largest anchor <= targetRow (an exact match included).
	i--
	return idx.Offsets[i], idx.Rows[i], nil
}

// BuildFull scans the full data region [dataStart, fileSize) and returns a
// complete index.
func BuildFull(data []byte, dataStart, fileSize, granularity int64) *SparseIndex {
	rows, offsets, totalRows, indexedBytes, _ := scanRegion(data, dataStart, fileSize, 0, granularity, 0, nil, nil)
	return &SparseIndex{
		Rows:         rows,
		Offsets:      offsets,
		Granularity:  granularity,
		TotalRows:    totalRows,
		IsComplete:   true,
		IndexedBytes: indexedBytes,
	}
}

// BuildPartial scans at most maxRows data rows starting at dataStart and
// returns an incomplete index (is_complete=false) covering that prefix.
// Used by the reader's fast-open path.
func BuildPartial(data []byte, dataStart, fileSize, granularity, maxRows int64) *SparseIndex {
	rows, offsets, totalRows, indexedBytes, complete := scanRegion(data, dataStart, fileSize, 0, granularity, maxRows, nil, nil)
	return &SparseIndex{
		Rows:         rows,
		Offsets:      offsets,
		Granularity:  granularity,
		TotalRows:    totalRows,
		IsComplete:   complete,
		IndexedBytes: indexedBytes,
	}
}

// ContinueBuild resumes scanning from idx.IndexedBytes/idx.TotalRows to the
// end of the data region, checking cancel on every newline and updating
// progress (an absolute byte offset) monotonically. It returns a new,
// independent SparseIndex; the caller's copy is left untouched.
func ContinueBuild(data []byte, fileSize int64, idx *SparseIndex, cancel *atomic.Bool, progress *atomic.Int64) *SparseIndex {
	cancelled := func() bool { return cancel != nil && cancel.Load() }
	onProgress := func(b int64) {
		if progress != nil {
			progress.Store(b)
		}
	}

	newRows, newOffsets, totalRows, indexedBytes, complete := scanRegion(
		data, idx.IndexedBytes, fileSize, idx.TotalRows, idx.Granularity, 0, cancelled, onProgress,
	)

	out := &SparseIndex{
		Granularity:  idx.Granularity,
		TotalRows:    totalRows,
		IsComplete:   complete,
		IndexedBytes: indexedBytes,
	}
	out.Rows = append(append([]int64{}, idx.Rows...), newRows...)
	out.Offsets = append(append([]int64{}, idx.Offsets...), newOffsets...)
	return out
}

// scanRegion is the shared scanning core behind BuildFull, BuildPartial and
// ContinueBuild. It walks data[start:end) via the byte scanner, attributing
// each newline to the row it terminates, starting the row count at
// firstRow. If maxNewRows > 0, scanning stops after that many new rows
// regardless of cancelled. cancelled, when non-nil, is polled on every
// newline. progress, when non-nil, receives the absolute byte offset
// scanned so far after every newline.
//
// Returns the newly discovered anchors (row numbers and offsets, relative to
// this call only; callers append them to any pre-existing sequence), the
// total row count after this call, the absolute byte offset scanned up to,
// and whether the scan reached the true end of the region (as opposed to
// stopping early due to maxNewRows or cancellation).
func scanRegion(
	data []byte,
	start, end, firstRow, granularity, maxNewRows int64,
	cancelled func() bool,
	progress func(int64),
) (anchorRows, anchorOffsets []int64, totalRows, indexedBytes int64, reachedEnd bool) {
	currentRow := firstRow
	lineStart := start
	indexedBytes = start
	scanned := int64(0)
	pos := int(start)
	dataEnd := int(end)

	for {
		if maxNewRows > 0 && scanned >= maxNewRows {
			reachedEnd = false
			break
		}
		if cancelled != nil && cancelled() {
			reachedEnd = false
			break
		}

		nlPos := simd.IndexByte(data, pos, '\n')
		if nlPos < 0 || nlPos >= dataEnd {
			reachedEnd = true
			break
		}

		currentRow++
		scanned++
		if currentRow%granularity == 0 {
			anchorRows = append(anchorRows, currentRow)
			anchorOffsets = append(anchorOffsets, lineStart)
		}

		lineStart = int64(nlPos) + 1
		pos = int(lineStart)
		indexedBytes = lineStart
		if progress != nil {
			progress(indexedBytes)
		}
	}

	if reachedEnd {
		// Canonical trailing-row rule (spec §9 open question a): count one
		// more row iff bytes remain past the last newline found.
		if lineStart < end {
			currentRow++
		}
		indexedBytes = end
	}

	return anchorRows, anchorOffsets, currentRow, indexedBytes, reachedEnd
}

// BuildParallel splits [dataStart, fileSize) into workers roughly-equal
// chunks and scans them concurrently, then merges results in a single
// serial pass to derive anchors, producing output identical to BuildFull.
// Intended for sources larger than about 100 MiB; the caller decides the
// size threshold.
func BuildParallel(data []byte, dataStart, fileSize, granularity int64, workers int) *SparseIndex {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}

	total := fileSize - dataStart
	if total <= 0 {
		return &SparseIndex{Granularity: granularity, IsComplete: true, IndexedBytes: fileSize}
	}
	chunkSize := total / int64(workers)
	if chunkSize < 1 {
		workers = 1
		chunkSize = total
	}

	boundaries := make([]int64, workers+1)
	boundaries[0] = dataStart
	boundaries[workers] = fileSize
	for i := 1; i < workers; i++ {
		hint := dataStart + int64(i)*chunkSize
		if hint >= fileSize {
			boundaries[i] = fileSize
			continue
		}
		nlPos := simd.IndexByte(data, int(hint), '\n')
		if nlPos < 0 {
			boundaries[i] = fileSize
		} else {
			boundaries[i] = int64(nlPos) + 1
		}
	}
	// Boundaries must be non-decreasing; a hint landing past the last
	// newline in the file can otherwise produce an out-of-order split.
	for i := 1; i <= workers; i++ {
		if boundaries[i] < boundaries[i-1] {
			boundaries[i] = boundaries[i-1]
		}
	}

	type chunkNewlines struct {
		start    int64
		newlines []int64
	}
	results := make([]chunkNewlines, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		chunkStart, chunkEnd := boundaries[i], boundaries[i+1]
		if chunkStart >= chunkEnd {
			results[i] = chunkNewlines{start: chunkStart}
			continue
		}
		wg.Add(1)
		go func(i int, chunkStart, chunkEnd int64) {
			defer wg.Done()
			var newlines []int64
			pos := int(chunkStart)
			limit := int(chunkEnd)
			for {
				nl := simd.IndexByte(data, pos, '\n')
				if nl < 0 || nl >= limit {
					break
				}
				newlines = append(newlines, int64(nl))
				pos = nl + 1
			}
			results[i] = chunkNewlines{start: chunkStart, newlines: newlines}
		}(i, chunkStart, chunkEnd)
	}
	wg.Wait()

	var anchorRows, anchorOffsets []int64
	rowOffset := int64(0)
	lastLineStart := dataStart
	for _, r := range results {
		if r.start >= fileSize {
			// An empty chunk at the end of the file holds no rows; letting it
			// set lastLineStart would hide an unterminated final row.
			continue
		}
		lineStart := r.start
		for _, nl := range r.newlines {
			rowOffset++
			if rowOffset%granularity == 0 {
				anchorRows = append(anchorRows, rowOffset)
				anchorOffsets = append(anchorOffsets, lineStart)
			}
			lineStart = nl + 1
		}
		lastLineStart = lineStart
	}

	if lastLineStart < fileSize {
		rowOffset++
	}

	return &SparseIndex{
		Rows:         anchorRows,
		Offsets:      anchorOffsets,
		Granularity:  granularity,
		TotalRows:    rowOffset,
		IsComplete:   true,
		IndexedBytes: fileSize,
	}
}
