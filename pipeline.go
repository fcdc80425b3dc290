package treehash

import (
	"cmp"
	"context"
	"encoding/hex"
	"fmt"
	"iter"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	treeerrors "github.com/tamirms/treehash/errors"
)

// workChanBufferMultiplier sizes the task channel per worker.
const workChanBufferMultiplier = 2

// Pipeline hashes a stream of files on a bounded worker pool under the
// memory plan derived from its configuration. A Pipeline is immutable and
// may be started any number of times; each run gets its own buffer pool.
type Pipeline struct {
	cfg    PipelineConfig
	req    DigestRequest
	plan   MemoryPlan
	opts   *pipelineOptions
	logger logrus.FieldLogger
}

// NewPipeline validates cfg and computes the memory plan. All configuration
// errors are reported here, before any file is touched.
func NewPipeline(cfg PipelineConfig, opts ...Option) (*Pipeline, error) {
	o := defaultPipelineOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	if o.opener == nil {
		o.opener = openFile
	}
	if o.pause <= 0 {
		o.pause = defaultPauseInterval
	}

	req, err := cfg.Validate(o.registry)
	if err != nil {
		return nil, err
	}

	sysMem := o.systemMemory
	if sysMem == 0 && cfg.Mode == ModeBooster && cfg.MaxRAMBytes == 0 {
		sysMem = SystemMemoryBytes()
	}
	plan := Plan(PlanInput{
		Mode:             cfg.Mode,
		MaxRAMBytes:      cfg.MaxRAMBytes,
		LogicalCPUs:      o.logicalCPUs,
		ThreadOverride:   cfg.Threads,
		TotalMemoryBytes: sysMem,
	})

	return &Pipeline{
		cfg:    cfg,
		req:    req,
		plan:   plan,
		opts:   o,
		logger: o.logger,
	}, nil
}

// Plan returns the memory plan every run of p uses.
func (p *Pipeline) Plan() MemoryPlan { return p.plan }

// Request returns the validated digest request.
func (p *Pipeline) Request() DigestRequest { return p.req }

func (p *Pipeline) resultQueueSize() int {
	if p.opts.resultQueue > 0 {
		return p.opts.resultQueue
	}
	return p.plan.Threads * resultQueueMultiplier
}

func (p *Pipeline) logPlan() {
	for _, step := range p.plan.Steps {
		p.logger.WithField("mode", p.plan.RequestedMode).Warn(step)
	}
	fields := logrus.Fields{
		"mode":               p.plan.Mode,
		"threads":            p.plan.Threads,
		"buffer_size":        humanize.IBytes(uint64(p.plan.BufferSize)),
		"buffers_per_thread": p.plan.BuffersPerThread,
		"prefetch":           p.plan.PrefetchListing,
		"algorithm":          p.req.Algorithm.Name,
		"output_bytes":       p.req.RequestedOutputBytes,
	}
	if p.plan.BudgetBytes > 0 {
		fields["budget"] = humanize.IBytes(p.plan.BudgetBytes)
	}
	p.logger.WithFields(fields).Info("memory plan")
	if p.plan.OverBudget {
		p.logger.WithField("budget", humanize.IBytes(p.plan.BudgetBytes)).
			Warn("memory budget is below the minimum plan; continuing with 1 thread and 1 buffer")
	}
	if p.req.NeedsExpansion() {
		p.logger.WithFields(logrus.Fields{
			"algorithm":    p.req.Algorithm.Name,
			"native_bytes": p.req.Algorithm.NativeDigestBytes,
			"output_bytes": p.req.RequestedOutputBytes,
		}).Warn("digests are expanded beyond the native output size; they are not standard values of this algorithm")
	}
}

// Run is one execution of a Pipeline.
type Run struct {
	p       *Pipeline
	pool    *BufferPool
	work    chan FileTask
	results chan HashResult
	done    chan struct{}
	start   time.Time

	total   int
	settled atomic.Int64
	hashed  atomic.Int64
	failed atomic.Int64
	bytes  atomic.Int64

	mu             sync.Mutex
	failures       []FileFailure
	overflow       []HashResult
	overflowWarned bool
	resultOverflow atomic.Uint64

	summary Summary
	err     error
}

// Start begins hashing tasks and returns immediately. The caller must drain
// Results until it is closed, then call Wait.
//
// Cancelling ctx stops dispatching new tasks. Tasks already handed to
// workers finish and their results are still delivered, after which Wait
// returns ctx.Err().
func (p *Pipeline) Start(ctx context.Context, tasks iter.Seq[FileTask]) *Run {
	p.logPlan()

	maxBuffers := p.plan.TotalBuffers()
	if p.opts.maxBuffers > 0 {
		maxBuffers = p.opts.maxBuffers
	}
	pool := NewBufferPool(maxBuffers, p.plan.BufferSize, p.logger)
	pool.pause = p.opts.pause

	r := &Run{
		p:       p,
		pool:    pool,
		work:    make(chan FileTask, p.plan.Threads*workChanBufferMultiplier),
		results: make(chan HashResult, p.resultQueueSize()),
		done:    make(chan struct{}),
		start:   time.Now(),
		total:   -1,
	}
	go r.coordinate(ctx, tasks)
	return r
}

// Results returns the bounded result queue. It is closed once every result,
// including any parked during overflow, has been delivered.
func (r *Run) Results() <-chan HashResult { return r.results }

// Wait blocks until the run finishes and returns its summary. The error is
// non-nil only when the run was cancelled; per-file failures are reported in
// the summary.
func (r *Run) Wait() (Summary, error) {
	<-r.done
	return r.summary, r.err
}

// Pool returns the run's buffer pool, for inspecting its counters.
func (r *Run) Pool() *BufferPool { return r.pool }

func (r *Run) coordinate(ctx context.Context, tasks iter.Seq[FileTask]) {
	defer close(r.done)

	feed := tasks
	if r.p.plan.PrefetchListing {
		listing := slices.Collect(tasks)
		r.total = len(listing)
		feed = slices.Values(listing)
		r.p.logger.WithField("files", r.total).Debug("listing prefetched")
	}

	var g errgroup.Group
	for range r.p.plan.Threads {
		g.Go(r.runWorker)
	}

	dispatchErr := r.dispatch(ctx, feed)
	close(r.work)
	_ = g.Wait() // workers record failures instead of returning them

	r.flushOverflow()
	close(r.results)

	r.summary = r.summarize()
	r.err = dispatchErr

	entry := r.p.logger.WithFields(logrus.Fields{
		"hashed":      r.summary.Hashed,
		"failed":      r.summary.Failed,
		"bytes":       humanize.IBytes(uint64(r.summary.Bytes)),
		"elapsed":     r.summary.Elapsed.Round(time.Millisecond),
		"soft_pauses": r.summary.SoftPauses,
	})
	if r.err != nil {
		entry.WithError(r.err).Warn("run cancelled")
		return
	}
	entry.Info("run complete")
}

func (r *Run) dispatch(ctx context.Context, feed iter.Seq[FileTask]) error {
	for task := range feed {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case r.work <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Run) runWorker() error {
	for task := range r.work {
		r.pool.Throttle()
		res, err := r.hashFile(task)
		if err != nil {
			r.recordFailure(task.Path, err)
			continue
		}
		r.emit(res)
	}
	return nil
}

// hashFile reads one file through a pooled buffer. The buffer is released on
// every path, including a panic inside an algorithm adapter, which is
// converted into a per-file error.
func (r *Run) hashFile(task FileTask) (res HashResult, err error) {
	start := time.Now()
	buf := r.pool.Acquire()
	defer buf.Release()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", treeerrors.ErrDigestPanic, rec)
		}
	}()

	f, err := r.p.opts.opener(task.Path)
	if err != nil {
		return HashResult{}, err
	}
	defer f.Close()

	modTime := task.ModTime
	if osf, ok := f.(*os.File); ok {
		fadviseSequential(osf)
		if r.p.opts.dropCache {
			defer fadviseDontNeed(osf)
		}
		if modTime.IsZero() {
			if fi, serr := osf.Stat(); serr == nil {
				modTime = fi.ModTime()
			}
		}
	}

	sum, info, n, err := r.p.req.HashReader(f, buf.Bytes())
	if err != nil {
		return HashResult{}, fmt.Errorf("read: %w", err)
	}
	return HashResult{
		Path:      task.Path,
		Hash:      hex.EncodeToString(sum),
		Size:      n,
		ModTime:   modTime,
		Elapsed:   time.Since(start),
		Expansion: info,
	}, nil
}

func (r *Run) recordFailure(path string, err error) {
	r.p.logger.WithError(err).WithField("path", path).Warn("failed to hash file")
	r.mu.Lock()
	r.failures = append(r.failures, FileFailure{Path: path, Err: err})
	r.mu.Unlock()
	r.failed.Add(1)
	r.reportProgress(r.settled.Add(1))
}

// emit delivers res to the bounded result queue. If the queue stays full for
// one pause interval the result is parked in an overflow list that is flushed
// at the end of the run, so a slow consumer never stalls the workers.
func (r *Run) emit(res HashResult) {
	r.hashed.Add(1)
	r.bytes.Add(res.Size)
	r.reportProgress(r.settled.Add(1))

	select {
	case r.results <- res:
		return
	default:
	}
	timer := time.NewTimer(r.pool.pause)
	select {
	case r.results <- res:
		timer.Stop()
		return
	case <-timer.C:
	}

	r.resultOverflow.Add(1)
	r.mu.Lock()
	r.overflow = append(r.overflow, res)
	first := !r.overflowWarned
	r.overflowWarned = true
	r.mu.Unlock()
	if first {
		r.p.logger.WithField("queue", cap(r.results)).
			Warn("result queue full, parking results until the consumer catches up")
	}
}

// flushOverflow delivers parked results. They are already counted as
// hashed, so they are delivered even after cancellation; the consumer is
// required to drain Results.
func (r *Run) flushOverflow() {
	r.mu.Lock()
	parked := r.overflow
	r.overflow = nil
	r.mu.Unlock()

	for _, res := range parked {
		r.results <- res
	}
}

// reportProgress is called with the value returned by the increment of the
// settled counter, so each Done value is reported exactly once.
func (r *Run) reportProgress(done int64) {
	if r.p.opts.progress == nil {
		return
	}
	r.p.opts.progress(Progress{
		Done:   int(done),
		Failed: int(r.failed.Load()),
		Total:  r.total,
	})
}

func (r *Run) summarize() Summary {
	r.mu.Lock()
	failures := slices.Clone(r.failures)
	r.mu.Unlock()
	slices.SortFunc(failures, func(a, b FileFailure) int { return cmp.Compare(a.Path, b.Path) })

	return Summary{
		Plan:            r.p.plan,
		Algorithm:       r.p.req.Algorithm,
		OutputBytes:     r.p.req.RequestedOutputBytes,
		Expanded:        r.p.req.NeedsExpansion(),
		Hashed:          int(r.hashed.Load()),
		Failed:          int(r.failed.Load()),
		Bytes:           r.bytes.Load(),
		Failures:        failures,
		SoftPauses:      r.pool.Pauses(),
		PoolOverflows:   r.pool.Overflows(),
		ResultOverflows: r.resultOverflow.Load(),
		Elapsed:         time.Since(r.start),
	}
}

// Collect runs the pipeline to completion and returns every result sorted by
// path.
func (p *Pipeline) Collect(ctx context.Context, tasks iter.Seq[FileTask]) ([]HashResult, Summary, error) {
	run := p.Start(ctx, tasks)
	var out []HashResult
	for res := range run.Results() {
		out = append(out, res)
	}
	summary, err := run.Wait()
	slices.SortFunc(out, func(a, b HashResult) int { return cmp.Compare(a.Path, b.Path) })
	return out, summary, err
}
