package treehash

import (
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// resultQueueMultiplier sizes the default result queue per worker.
const resultQueueMultiplier = 4

// Opener opens a file for hashing. The default is os.Open.
type Opener func(path string) (io.ReadCloser, error)

// Option is a functional option for configuring a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	registry     *Registry
	logger       logrus.FieldLogger
	opener       Opener
	logicalCPUs  int
	systemMemory uint64
	maxBuffers   int
	pause        time.Duration
	resultQueue  int
	progress     func(Progress)
	dropCache    bool
}

func defaultPipelineOptions() *pipelineOptions {
	return &pipelineOptions{
		registry:    DefaultRegistry(),
		logger:      logrus.StandardLogger(),
		opener:      openFile,
		logicalCPUs: runtime.NumCPU(),
		pause:       defaultPauseInterval,
	}
}

func openFile(path string) (io.ReadCloser, error) { return os.Open(path) }

// WithRegistry sets the algorithm registry. Default is DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(o *pipelineOptions) {
		o.registry = r
	}
}

// WithLogger sets the diagnostic logger. Default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *pipelineOptions) {
		o.logger = l
	}
}

// WithOpener replaces os.Open for reading task files.
func WithOpener(fn Opener) Option {
	return func(o *pipelineOptions) {
		o.opener = fn
	}
}

// WithLogicalCPUs overrides the CPU count fed to the planner.
func WithLogicalCPUs(n int) Option {
	return func(o *pipelineOptions) {
		o.logicalCPUs = n
	}
}

// WithSystemMemory overrides the probed RAM size used for the booster
// budget.
func WithSystemMemory(bytes uint64) Option {
	return func(o *pipelineOptions) {
		o.systemMemory = bytes
	}
}

// WithMaxBuffers overrides the pool ceiling derived from the plan.
func WithMaxBuffers(n int) Option {
	return func(o *pipelineOptions) {
		o.maxBuffers = n
	}
}

// WithPauseInterval sets the soft backpressure pause. Default 5ms.
func WithPauseInterval(d time.Duration) Option {
	return func(o *pipelineOptions) {
		o.pause = d
	}
}

// WithResultQueue sets the capacity of the bounded result queue.
// Default is 4 slots per worker.
func WithResultQueue(n int) Option {
	return func(o *pipelineOptions) {
		o.resultQueue = n
	}
}

// WithProgress registers a callback invoked after every task. It is called
// from worker goroutines and must be safe for concurrent use. Calls may
// arrive out of order, but every Done value from 1 to the task count is
// reported exactly once.
func WithProgress(fn func(Progress)) Option {
	return func(o *pipelineOptions) {
		o.progress = fn
	}
}

// WithDropCache asks the kernel to drop each file's pages after hashing.
// Linux only; a no-op elsewhere.
func WithDropCache(drop bool) Option {
	return func(o *pipelineOptions) {
		o.dropCache = drop
	}
}
