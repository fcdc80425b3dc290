package treehash

import (
	"errors"
	"fmt"
	"time"
)

// FileTask is one file to hash, as produced by a directory walker.
type FileTask struct {
	Path string
	Size int64

	// ModTime is copied into the result. When zero, the worker fills it
	// from the opened file if possible.
	ModTime time.Time
}

// HashResult is the record emitted for every successfully hashed file.
// Results arrive in completion order; sorting is the consumer's job.
type HashResult struct {
	Path    string        `json:"path"`
	Hash    string        `json:"hash"`
	Size    int64         `json:"size"`
	ModTime time.Time     `json:"mtime"`
	Elapsed time.Duration `json:"elapsed"`

	// Expansion is non-nil when the digest came from the expansion
	// construction instead of the algorithm's native output.
	Expansion *ExpansionInfo `json:"expansion,omitempty"`
}

// ElapsedMicros returns the hashing time in microseconds.
func (r HashResult) ElapsedMicros() int64 { return r.Elapsed.Microseconds() }

// FileFailure records a file that could not be hashed. A failure is
// terminal for that file within the run; there is no retry.
type FileFailure struct {
	Path string
	Err  error
}

func (f FileFailure) Error() string { return fmt.Sprintf("%s: %v", f.Path, f.Err) }

func (f FileFailure) Unwrap() error { return f.Err }

// Progress is reported after every completed task.
type Progress struct {
	Done   int
	Failed int

	// Total is the number of tasks in a prefetched listing, or -1 when
	// the listing is streamed.
	Total int
}

// Summary describes a finished run.
type Summary struct {
	Plan        MemoryPlan
	Algorithm   AlgorithmSpec
	OutputBytes int
	Expanded    bool

	Hashed   int
	Failed   int
	Bytes    int64
	Failures []FileFailure

	// SoftPauses counts backpressure pauses taken by workers.
	SoftPauses uint64
	// PoolOverflows counts buffers allocated beyond the pool ceiling.
	PoolOverflows uint64
	// ResultOverflows counts results parked outside the bounded queue
	// because the consumer fell behind.
	ResultOverflows uint64

	Elapsed time.Duration
}

// FailureError joins every per-file failure into one error, or returns nil
// when all files were hashed.
func (s Summary) FailureError() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return fmt.Errorf("%d of %d files failed: %w", s.Failed, s.Hashed+s.Failed, errors.Join(errs...))
}
