package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/tablescan/tablescan/internal/common"
)

const indexFormatVersion = 1

// IndexMetadata is the JSON header written ahead of the compressed payload.
// Validate rejects a stored index whenever any of these drift from the
// source file currently being opened, per spec §4.4.
type IndexMetadata struct {
	SourcePath  string    `json:"source_path"`
	SourceSize  int64     `json:"source_size"`
	SourceMtime time.Time `json:"source_mtime"`
	Version     int       `json:"index_version"`
	BuiltAt     time.Time `json:"built_at"`
	Granularity int64     `json:"granularity"`
}

// SidecarPath derives the on-disk index path for sourcePath by appending
// ".idx" rather than replacing the existing extension, so "data.csv" maps to
// "data.csv.idx".
func SidecarPath(sourcePath string) string {
	return sourcePath + ".idx"
}

// Save writes meta followed by an LZ4-compressed encoding of idx to path, in
// the layout [u64 metadata_length][metadata_bytes][index_payload_bytes].
func Save(path string, meta IndexMetadata, idx *SparseIndex) error {
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return common.IndexPersistenceError("index.Save", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return common.IndexPersistenceError("index.Save", err)
	}
	defer f.Close()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(metaBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return common.IndexPersistenceError("index.Save", err)
	}
	if _, err := f.Write(metaBytes); err != nil {
		return common.IndexPersistenceError("index.Save", err)
	}

	zw := lz4.NewWriter(f)
	if err := encodePayload(zw, idx); err != nil {
		return common.IndexPersistenceError("index.Save", err)
	}
	if err := zw.Close(); err != nil {
		return common.IndexPersistenceError("index.Save", err)
	}
	return nil
}

// Load reads an index file written by Save, returning its metadata and
// SparseIndex without validating it against any particular source file; call
// Validate with the live source's os.FileInfo to decide whether to trust it.
func Load(path string) (IndexMetadata, *SparseIndex, error) {
	var meta IndexMetadata

	data, err := os.ReadFile(path)
	if err != nil {
		return meta, nil, common.IndexPersistenceError("index.Load", err)
	}
	if len(data) < 8 {
		return meta, nil, common.IndexPersistenceError("index.Load", io.ErrUnexpectedEOF)
	}

	metaLen := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)) < 8+metaLen {
		return meta, nil, common.IndexPersistenceError("index.Load", io.ErrUnexpectedEOF)
	}
	metaBytes := data[8 : 8+metaLen]
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return meta, nil, common.IndexPersistenceError("index.Load", err)
	}

	payload := data[8+metaLen:]
	zr := lz4.NewReader(bytes.NewReader(payload))
	idx, err := decodePayload(zr)
	if err != nil {
		return meta, nil, common.IndexPersistenceError("index.Load", err)
	}
	return meta, idx, nil
}

// Validate reports whether meta still describes sourceInfo/canonicalPath at
// the requested granularity. Any mismatch means the stored index must be
// discarded and rebuilt from scratch (spec §4.4, §7); callers never surface
// this as an error, only as a boolean telling them to fall back.
func Validate(meta IndexMetadata, canonicalPath string, sourceInfo os.FileInfo, granularity int64) bool {
	if meta.Version != indexFormatVersion {
		return false
	}
	if meta.SourcePath != canonicalPath {
		return false
	}
	if meta.SourceSize != sourceInfo.Size() {
		return false
	}
	if meta.Granularity != granularity {
		return false
	}
	delta := meta.SourceMtime.Sub(sourceInfo.ModTime())
	if delta < 0 {
		delta = -delta
	}
	return delta <= time.Second
}

// BuildMetadata constructs an IndexMetadata for sourcePath using its current
// os.FileInfo and the canonical (absolute, symlink-resolved) path.
func BuildMetadata(canonicalPath string, info os.FileInfo, granularity int64) IndexMetadata {
	return IndexMetadata{
		SourcePath:  canonicalPath,
		SourceSize:  info.Size(),
		SourceMtime: info.ModTime(),
		Version:     indexFormatVersion,
		BuiltAt:     time.Now(),
		Granularity: granularity,
	}
}

// CanonicalPath resolves path to an absolute, symlink-free form suitable for
// identity comparisons in IndexMetadata.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Non-existent or unreadable target: fall back to the absolute form
		// rather than failing validation outright.
		return abs, nil
	}
	return resolved, nil
}

// encodePayload writes granularity, total row count, indexed byte offset and
// anchor count as little-endian uint64s, then one completeness byte (1 when
// complete), then each (row, offset) pair as little-endian int64 pairs.
func encodePayload(w io.Writer, idx *SparseIndex) error {
	header := make([]byte, 8*4+1)
	binary.LittleEndian.PutUint64(header[0:8], uint64(idx.Granularity))
	binary.LittleEndian.PutUint64(header[8:16], uint64(idx.TotalRows))
	binary.LittleEndian.PutUint64(header[16:24], uint64(idx.IndexedBytes))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(idx.Rows)))
	if idx.IsComplete {
		header[32] = 1
	}
	if _, err := w.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 16*len(idx.Rows))
	for i := range idx.Rows {
		binary.LittleEndian.PutUint64(buf[i*16:i*16+8], uint64(idx.Rows[i]))
		binary.LittleEndian.PutUint64(buf[i*16+8:i*16+16], uint64(idx.Offsets[i]))
	}
	_, err := w.Write(buf)
	return err
}

func decodePayload(r io.Reader) (*SparseIndex, error) {
	header := make([]byte, 8*4+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	idx := &SparseIndex{
		Granularity:  int64(binary.LittleEndian.Uint64(header[0:8])),
		TotalRows:    int64(binary.LittleEndian.Uint64(header[8:16])),
		IndexedBytes: int64(binary.LittleEndian.Uint64(header[16:24])),
		IsComplete:   header[32] == 1,
	}
	count := binary.LittleEndian.Uint64(header[24:32])
	if count > math.MaxInt32 {
		return nil, common.FormatError("index.decodePayload", io.ErrUnexpectedEOF)
	}

	buf := make([]byte, 16*count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	idx.Rows = make([]int64, count)
	idx.Offsets = make([]int64, count)
	for i := uint64(0); i < count; i++ {
		idx.Rows[i] = int64(binary.LittleEndian.Uint64(buf[i*16 : i*16+8]))
		idx.Offsets[i] = int64(binary.LittleEndian.Uint64(buf[i*16+8 : i*16+16]))
	}
	return idx, nil
}
