// Package reader implements the reader core (C6): open/open_fast,
// random-access page reads, and background index completion. It is the
// component that wires together C1 (byte scanner), C2 (record parser), C3/C4
// (sparse index and persistence), C5 (row estimator), C7 (page cache) and C8
// (build handle) into one random-access view of a delimited-text file.
//
// Grounded on the teacher's indexer.go pipeline shape (owning the mmap,
// coordinating goroutines, persisting artifacts best-effort) and on the
// original Rust CsvReader::open/open_fast (original_source/src/csv/reader.rs)
// for the exact sequencing of BOM/header handling and fallback rules.
package reader

import (
	"bytes"
	"fmt"
	"os"

	"github.com/tablescan/tablescan/internal/common"
	"github.com/tablescan/tablescan/internal/estimate"
	"github.com/tablescan/tablescan/internal/index"
	"github.com/tablescan/tablescan/internal/pagecache"
	"github.com/tablescan/tablescan/internal/record"
	"github.com/tablescan/tablescan/internal/simd"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// FastOpenRows is the recommended K from spec §4.6: the number of data rows
// open_fast indexes before returning control to the caller.
const FastOpenRows = 500

// realignWindow bounds the backward rescan read_page performs when an
// anchor offset isn't already aligned to a row start (spec §4.6 step 2).
const realignWindow = 1024

// Options configures Open/OpenFast. Delimiter, HasHeaders and
// IndexGranularity mirror spec §6's reader-open options.
type Options struct {
	Path             string
	HasHeaders       bool
	Delimiter        byte
	IndexGranularity int64
	CacheCapacity    int
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.IndexGranularity <= 0 {
		o.IndexGranularity = 1000
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = pagecache.DefaultCapacity
	}
	return o
}

// Info is the read-only snapshot described in spec §6.
type Info struct {
	FilePath  string
	FileSize  int64
	TotalRows int64
	TotalCols int
	Headers   []string
}

// Reader owns a memory-mapped source, its sparse index, and a bounded page
// cache. Exactly one goroutine may call its methods at a time (spec §5); the
// optional background builder spawned by BuildIndexAsync communicates back
// only through the BuildHandle's atomics and a one-shot index handoff.
type Reader struct {
	opts      Options
	data      []byte
	fileSize  int64
	dataStart int64
	headers   []string
	totalCols int

	idx      *index.SparseIndex
	est      *estimate.RowEstimate
	cache    *pagecache.Cache
	canonical string
}

// Close releases the underlying memory mapping. The reader must not be used
// afterward.
func (r *Reader) Close() error {
	return common.MunmapFile(r.data)
}

// Open performs the authoritative open path: map the source, load or build a
// complete sparse index (validating any persisted copy against the source's
// identity), and persist a freshly built index best-effort.
func Open(opts Options) (*Reader, error) {
	opts = opts.withDefaults()

	r, err := openCommon(opts)
	if err != nil {
		return nil, err
	}

	if r.tryLoadPersistedIndex() && r.idx.IsComplete {
		return r, nil
	}

	r.idx = index.BuildFull(r.data, r.dataStart, r.fileSize, opts.IndexGranularity)
	r.persistIndexBestEffort()
	return r, nil
}

// OpenFast performs the bounded-latency open path: map the source, then on a
// persisted-index miss build only a partial index over the first
// FastOpenRows rows and record an estimate of the total. Returns the reader
// and an is-complete flag; when false, call BuildIndexAsync to complete the
// index in the background.
func OpenFast(opts Options) (*Reader, bool, error) {
	opts = opts.withDefaults()

	r, err := openCommon(opts)
	if err != nil {
		return nil, false, err
	}

	if r.tryLoadPersistedIndex() && r.idx.IsComplete {
		return r, true, nil
	}

	est := estimate.Estimate(r.data, r.dataStart, r.fileSize)
	r.est = &est
	r.idx = index.BuildPartial(r.data, r.dataStart, r.fileSize, opts.IndexGranularity, FastOpenRows)
	return r, r.idx.IsComplete, nil
}

func openCommon(opts Options) (*Reader, error) {
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, common.IOError("reader.Open", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, common.IOError("reader.Open", err)
	}

	data, err := common.MmapFile(f)
	if err != nil {
		return nil, common.IOError("reader.Open", err)
	}

	canonical, err := index.CanonicalPath(opts.Path)
	if err != nil {
		canonical = opts.Path
	}

	r := &Reader{
		opts:      opts,
		data:      data,
		fileSize:  info.Size(),
		cache:     pagecache.New(opts.CacheCapacity),
		canonical: canonical,
	}

	dataStart := int64(0)
	if bytes.HasPrefix(data, bom) {
		dataStart = int64(len(bom))
	}

	if opts.HasHeaders {
		headerEnd := simd.IndexByte(data, int(dataStart), '\n')
		if headerEnd < 0 {
			if dataStart >= r.fileSize {
				return nil, common.FormatError("reader.Open", fmt.Errorf("empty source, cannot determine header"))
			}
			headerEnd = len(data)
		}
		if headerEnd == int(dataStart) {
			return nil, common.FormatError("reader.Open", fmt.Errorf("empty header line, cannot determine columns"))
		}
		headerLine := data[dataStart:headerEnd]
		rec := record.ParseLine(headerLine, opts.Delimiter)
		r.headers = rec.Fields
		r.totalCols = len(rec.Fields)
		if headerEnd < len(data) {
			dataStart = int64(headerEnd) + 1
		} else {
			dataStart = int64(headerEnd)
		}
	} else if dataStart < r.fileSize {
		firstEnd := simd.IndexByte(data, int(dataStart), '\n')
		if firstEnd < 0 {
			firstEnd = len(data)
		}
		if firstEnd == int(dataStart) {
			return nil, common.FormatError("reader.Open", fmt.Errorf("empty first line, cannot determine columns"))
		}
		r.totalCols = len(record.ParseLine(data[dataStart:firstEnd], opts.Delimiter).Fields)
	}
	r.dataStart = dataStart

	return r, nil
}

// tryLoadPersistedIndex attempts to load and validate the sidecar index
// file. On any failure (missing, truncated, corrupt, or identity mismatch)
// it returns false and leaves r.idx untouched (spec §4.4/§7).
func (r *Reader) tryLoadPersistedIndex() bool {
	idxPath := index.SidecarPath(r.opts.Path)
	info, err := os.Stat(r.opts.Path)
	if err != nil {
		return false
	}

	meta, idx, err := index.Load(idxPath)
	if err != nil {
		return false
	}
	if !index.Validate(meta, r.canonical, info, r.opts.IndexGranularity) {
		return false
	}
	r.idx = idx
	return true
}

// persistIndexBestEffort saves the reader's current index to its sidecar
// path. Failures are swallowed per spec §7 ("logged, not surfaced"); the
// reader keeps operating against its in-memory copy regardless.
func (r *Reader) persistIndexBestEffort() {
	r.persistIndex(r.idx)
}

// persistIndex saves idx to the sidecar path for this reader's source. Safe
// to call from the background build worker: it only reads r.opts/r.canonical,
// neither of which mutates after openCommon returns.
func (r *Reader) persistIndex(idx *index.SparseIndex) {
	info, err := os.Stat(r.opts.Path)
	if err != nil {
		return
	}
	meta := index.BuildMetadata(r.canonical, info, r.opts.IndexGranularity)
	if err := index.Save(index.SidecarPath(r.opts.Path), meta, idx); err != nil {
		fmt.Fprintf(os.Stderr, "tablescan: index persistence failed for %s: %v\n", r.opts.Path, err)
	}
}

// Info returns the reader's current published state. TotalRows reflects the
// best known count: exact once the index is complete, otherwise the larger
// of the estimator's guess and rows actually indexed so far.
func (r *Reader) Info() Info {
	total := r.idx.TotalRows
	if r.est != nil && r.est.EstimatedRows > total {
		total = r.est.EstimatedRows
	}
	return Info{
		FilePath:  r.opts.Path,
		FileSize:  r.fileSize,
		TotalRows: total,
		TotalCols: r.totalCols,
		Headers:   r.headers,
	}
}

// ReadPage returns the records for page number p at page size s, per spec
// §4.6. A page beyond the known row range returns an empty, non-error
// result.
func (r *Reader) ReadPage(p, pageSize int64) ([]record.Record, error) {
	total := r.idx.TotalRows
	rowLo := p * pageSize
	rowHi := rowLo + pageSize
	if rowHi > total {
		rowHi = total
	}
	if rowLo >= total {
		return nil, nil
	}

	if cached, ok := r.cache.Get(p); ok {
		return cached, nil
	}

	anchorOffset, anchorRow, err := r.idx.Seek(rowLo, r.dataStart)
	if err != nil {
		if rowLo >= total {
			return nil, nil
		}
		return nil, err
	}
	anchorOffset = r.realign(anchorOffset)

	pos := int(anchorOffset)
	// Anchor row numbers count rows up to and including the anchored row,
	// so the row starting at an anchor's offset has 0-based index
	// anchorRow-1. A zero anchorRow means the start of the data region.
	row := anchorRow
	if row > 0 {
		row--
	}
	for row < rowLo {
		nl := simd.IndexByte(r.data, pos, '\n')
		if nl < 0 {
			break
		}
		pos = nl + 1
		row++
	}

	records := make([]record.Record, 0, rowHi-rowLo)
	for row := rowLo; row < rowHi; row++ {
		nl := simd.IndexByte(r.data, pos, '\n')
		var line []byte
		if nl < 0 {
			line = r.data[pos:]
			pos = len(r.data)
		} else {
			line = r.data[pos:nl]
			pos = nl + 1
		}
		records = append(records, record.ParseLine(line, r.opts.Delimiter))
	}

	owned := make([]record.Record, len(records))
	for i, rec := range records {
		owned[i] = rec.ToOwned()
	}
	r.cache.Put(p, owned)

	return records, nil
}

// realign walks backward up to realignWindow bytes from offset to find the
// preceding newline, in case the stored anchor isn't already at a row start.
// By construction every anchor this package writes is aligned; this exists
// for resilience against a hand-edited or foreign index file.
func (r *Reader) realign(offset int64) int64 {
	if offset <= r.dataStart {
		return r.dataStart
	}
	limit := offset - realignWindow
	if limit < r.dataStart {
		limit = r.dataStart
	}
	for i := offset - 1; i >= limit; i-- {
		if r.data[i] == '\n' {
			return i + 1
		}
	}
	return offset
}

// adopt atomically replaces the reader's index with a freshly built one and
// clears the page cache, since row numbering may have shifted (spec §4.6).
func (r *Reader) adopt(newIdx *index.SparseIndex) {
	r.idx = newIdx
	r.est = nil
	r.cache.Clear()
}

// BuildIndexAsync spawns a background worker that continues building the
// index to completion against the shared map, then returns a handle for
// observing progress, cancelling, or joining it.
func (r *Reader) BuildIndexAsync() *BuildHandle {
	return newBuildHandle(r)
}
