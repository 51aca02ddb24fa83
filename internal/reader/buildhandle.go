package reader

import (
	"runtime"
	"sync/atomic"

	"github.com/tablescan/tablescan/internal/index"
)

// BuildHandle exposes cancellation and progress observation for a
// background index-completion worker (C8). Dropping a handle without
// calling Wait or Cancel implicitly cancels the worker, via a finalizer, so
// a forgotten handle never pins CPU indefinitely.
type BuildHandle struct {
	r        *Reader
	cancel   *atomic.Bool
	progress *atomic.Int64 // absolute bytes scanned so far
	fileSize int64
	done     chan buildResult
}

type buildResult struct {
	idx *index.SparseIndex
}

func newBuildHandle(r *Reader) *BuildHandle {
	cancel, progress := new(atomic.Bool), new(atomic.Int64)
	done := make(chan buildResult, 1)
	h := &BuildHandle{
		r:        r,
		cancel:   cancel,
		progress: progress,
		fileSize: r.fileSize,
		done:     done,
	}

	// The worker must not reference h, or h stays reachable until the
	// worker exits and the finalizer below could never cancel it.
	startIdx := r.idx.Clone()
	go func() {
		completed := index.ContinueBuild(r.data, r.fileSize, startIdx, cancel, progress)
		if completed.IsComplete {
			r.persistIndex(completed)
		}
		done <- buildResult{idx: completed}
	}()

	runtime.SetFinalizer(h, func(h *BuildHandle) {
		h.cancel.Store(true)
	})

	return h
}

// Progress returns completion percent in [0, 100], derived from bytes
// scanned so far against the source's total size.
func (h *BuildHandle) Progress() int {
	if h.fileSize <= 0 {
		return 100
	}
	p := int(h.progress.Load() * 100 / h.fileSize)
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// Cancel requests that the worker stop at its next opportunity. Best-effort:
// the worker checks this flag once per newline iteration.
func (h *BuildHandle) Cancel() {
	h.cancel.Store(true)
}

// IsFinished reports, non-blocking, whether the worker has produced a
// result.
func (h *BuildHandle) IsFinished() bool {
	select {
	case res := <-h.done:
		h.done <- res
		return true
	default:
		return false
	}
}

// Wait joins the worker, adopts its result into the owning reader, and
// reports whether the index reached completion (false if cancelled first).
func (h *BuildHandle) Wait() (*index.SparseIndex, bool) {
	res := <-h.done
	h.done <- res
	runtime.SetFinalizer(h, nil)

	h.r.adopt(res.idx)
	return res.idx, res.idx.IsComplete
}
