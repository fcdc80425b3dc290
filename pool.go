package treehash

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	// defaultPauseInterval is the soft backpressure pause. Short enough
	// to be invisible for I/O-bound work, long enough for an in-flight
	// read to finish and return its buffer.
	defaultPauseInterval = 5 * time.Millisecond

	// acquireWaitRounds is how many pause intervals Acquire waits for a
	// returned buffer before allocating beyond the ceiling.
	acquireWaitRounds = 5
)

// BufferPool is a bounded pool of fixed-size read buffers shared by all
// pipeline workers.
//
// The ceiling is soft. When every buffer is checked out, Acquire waits a
// few pause intervals for one to come back and then allocates beyond the
// ceiling with a warning rather than blocking forever. Beyond-budget
// buffers are dropped when released, so the pool shrinks back to its
// ceiling once pressure subsides.
//
// The free list is a buffered channel; counters are atomics. There is no
// lock on the acquire/release path.
type BufferPool struct {
	bufSize    int
	maxBuffers int
	free       chan []byte

	allocated atomic.Int64  // live buffers owned by the pool (free + checked out)
	acquired  atomic.Uint64 // cumulative handouts
	released  atomic.Uint64 // cumulative returns
	pauses    atomic.Uint64 // soft backpressure pauses
	overflows atomic.Uint64 // allocations beyond maxBuffers

	pause  time.Duration
	logger logrus.FieldLogger
}

// NewBufferPool creates a pool with numBuffers buffers of bufSize bytes,
// all allocated up front. numBuffers below 1 is treated as 1. A nil logger
// uses the logrus standard logger.
func NewBufferPool(numBuffers, bufSize int, logger logrus.FieldLogger) *BufferPool {
	numBuffers = max(1, numBuffers)
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &BufferPool{
		bufSize:    bufSize,
		maxBuffers: numBuffers,
		free:       make(chan []byte, numBuffers),
		pause:      defaultPauseInterval,
		logger:     logger,
	}
	for range numBuffers {
		p.free <- make([]byte, bufSize)
	}
	p.allocated.Store(int64(numBuffers))
	return p
}

// BufferSize returns the size of every buffer in the pool.
func (p *BufferPool) BufferSize() int { return p.bufSize }

// MaxBuffers returns the soft ceiling.
func (p *BufferPool) MaxBuffers() int { return p.maxBuffers }

// AllocatedCount returns the number of live buffers, free or checked out.
// It exceeds MaxBuffers only while beyond-budget buffers are in use.
func (p *BufferPool) AllocatedCount() int { return int(p.allocated.Load()) }

// AcquiredCount returns the cumulative number of buffers handed out.
func (p *BufferPool) AcquiredCount() uint64 { return p.acquired.Load() }

// ReleasedCount returns the cumulative number of buffers returned.
func (p *BufferPool) ReleasedCount() uint64 { return p.released.Load() }

// Outstanding returns the number of buffers currently checked out.
// AcquiredCount() - ReleasedCount() == Outstanding() at all times.
func (p *BufferPool) Outstanding() int {
	// Load released first so a concurrent handout can only make the
	// difference larger, never negative.
	r := p.released.Load()
	a := p.acquired.Load()
	return int(a - r)
}

// Pauses returns the number of soft backpressure pauses taken so far.
func (p *BufferPool) Pauses() uint64 { return p.pauses.Load() }

// Overflows returns the number of allocations made beyond the ceiling.
func (p *BufferPool) Overflows() uint64 { return p.overflows.Load() }

// OverCeiling reports whether more buffers are live than the ceiling allows.
func (p *BufferPool) OverCeiling() bool {
	return p.AllocatedCount() > p.maxBuffers
}

// Throttle pauses the caller for one interval if the pool is over its
// ceiling. Workers call it before starting a new file. Returns true if it
// paused.
func (p *BufferPool) Throttle() bool {
	if !p.OverCeiling() {
		return false
	}
	p.pauses.Add(1)
	p.logger.WithFields(logrus.Fields{
		"allocated":   p.AllocatedCount(),
		"max_buffers": p.maxBuffers,
	}).Debug("buffer pool over ceiling, pausing before new work")
	time.Sleep(p.pause)
	return true
}

// Acquire checks out a buffer. It never blocks for longer than a few pause
// intervals: if no buffer is returned in time, a new one is allocated
// beyond the ceiling.
//
// The caller must Release the returned handle, normally with defer.
func (p *BufferPool) Acquire() *PooledBuffer {
	select {
	case b := <-p.free:
		return p.handout(b)
	default:
	}

	p.pauses.Add(1)
	timer := time.NewTimer(p.pause * acquireWaitRounds)
	defer timer.Stop()
	select {
	case b := <-p.free:
		return p.handout(b)
	case <-timer.C:
	}

	p.overflows.Add(1)
	live := p.allocated.Add(1)
	p.logger.WithFields(logrus.Fields{
		"max_buffers": p.maxBuffers,
		"allocated":   live,
		"outstanding": p.Outstanding(),
	}).Warnf("buffer pool exhausted, allocating %s beyond budget", humanize.IBytes(uint64(p.bufSize)))
	return p.handout(make([]byte, p.bufSize))
}

func (p *BufferPool) handout(b []byte) *PooledBuffer {
	p.acquired.Add(1)
	return &PooledBuffer{pool: p, buf: b[:p.bufSize]}
}

// put returns b to the free list, or drops it when the free list already
// holds maxBuffers buffers.
func (p *BufferPool) put(b []byte) {
	clear(b)
	p.released.Add(1)
	select {
	case p.free <- b:
	default:
		p.allocated.Add(-1)
	}
}

// PooledBuffer grants exclusive use of one pool buffer until Release.
type PooledBuffer struct {
	pool     *BufferPool
	buf      []byte
	released atomic.Bool
}

// Bytes returns the buffer. It returns nil after Release.
func (b *PooledBuffer) Bytes() []byte {
	if b.released.Load() {
		return nil
	}
	return b.buf
}

// Release zeroes the buffer and returns it to the pool. Calling Release
// more than once is a no-op, so it is safe to defer it and also release
// early on a success path.
func (b *PooledBuffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	buf := b.buf
	b.buf = nil
	b.pool.put(buf)
}
