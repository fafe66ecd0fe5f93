// Package memory applies memory pressure: it holds a collection of
// fixed-size float64 buffers and periodically scrubs them so their pages
// stay resident.
package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const (
	elemBytes = 8
	pageElems = 4096 / elemBytes
)

// ErrAllocation reports that a chunk could not be obtained.
var ErrAllocation = errors.New("memory allocation failed")

// Fault classifies an allocation outcome.
type Fault int

const (
	FaultNone Fault = iota
	// FaultAllocation means the target was only partially reached.
	FaultAllocation
)

func (f Fault) String() string {
	if f == FaultAllocation {
		return "allocation"
	}
	return "none"
}

// Result is the outcome of Allocate. A faulted result still describes the
// buffers that were obtained and kept.
type Result struct {
	Requested int64
	Bytes     int64
	Chunks    int
	Fault     Fault
	Err       error
}

// Degraded reports whether less than the requested amount is held.
func (r Result) Degraded() bool { return r.Fault != FaultNone }

// AllocFunc obtains a buffer of n float64 elements.
type AllocFunc func(n int) ([]float64, error)

// Option configures an Allocator.
type Option func(*Allocator)

// WithChunkBytes sets the size of each buffer.
func WithChunkBytes(n int64) Option {
	return func(a *Allocator) {
		if n >= elemBytes {
			a.chunkBytes = n
		}
	}
}

// WithScrub sets the element stride of a scrub pass and how many passes
// separate buffer reversals.
func WithScrub(stride, reverseEvery int) Option {
	return func(a *Allocator) {
		if stride > 0 {
			a.stride = stride
		}
		if reverseEvery > 0 {
			a.reverseEvery = reverseEvery
		}
	}
}

// WithLimit bounds the bytes the default allocation func will hand out.
// Zero means no bound beyond what the runtime can provide.
func WithLimit(bytes uint64) Option {
	return func(a *Allocator) {
		a.limit = bytes
	}
}

// WithAllocFunc replaces how buffers are obtained.
func WithAllocFunc(fn AllocFunc) Option {
	return func(a *Allocator) {
		if fn != nil {
			a.alloc = fn
		}
	}
}

// WithLogger sets the allocator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Allocator owns the buffer collection exclusively. It is not safe for
// concurrent use; the session's coordinating loop is its only caller.
type Allocator struct {
	chunkBytes   int64
	stride       int
	reverseEvery int
	limit        uint64
	alloc        AllocFunc
	logger       *slog.Logger

	buffers [][]float64
	bytes   int64
	last    Result

	scrubbing bool
	pass      int
	lastScrub time.Time
	touchRate float64
}

// New creates an empty allocator.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		chunkBytes:   16 << 20,
		stride:       4096,
		reverseEvery: 4,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.alloc == nil {
		a.alloc = a.defaultAlloc
	}
	return a
}

// Allocate brings the held total to target bytes. Buffers already sized
// for target are kept as they are. Otherwise previous buffers are released
// and chunks are allocated until target is reached or an allocation fails;
// on failure whatever succeeded is kept. The held total never exceeds
// target. Allocate never panics.
func (a *Allocator) Allocate(target int64) Result {
	if target < 0 {
		target = 0
	}
	if a.buffers != nil && a.last.Requested == target && !a.last.Degraded() {
		return a.last
	}

	a.Release()
	res := Result{Requested: target}

	for remaining := target; remaining >= elemBytes; {
		size := min(a.chunkBytes, remaining)
		buf, err := a.safeAlloc(int(size / elemBytes))
		if err != nil {
			res.Fault = FaultAllocation
			res.Err = fmt.Errorf("chunk %d: %w", len(a.buffers), err)
			a.logger.Warn("memory target not reached",
				"requested", target, "bytes", a.bytes, "err", err)
			break
		}
		touchPages(buf)
		a.buffers = append(a.buffers, buf)
		got := int64(len(buf)) * elemBytes
		a.bytes += got
		remaining -= got
	}

	res.Bytes = a.bytes
	res.Chunks = len(a.buffers)
	if a.buffers == nil {
		a.buffers = [][]float64{}
	}
	a.last = res
	return res
}

// Release drops every buffer.
func (a *Allocator) Release() {
	a.buffers = nil
	a.bytes = 0
	a.last = Result{}
	a.pass = 0
}

// Bytes returns the total held.
func (a *Allocator) Bytes() int64 { return a.bytes }

// Chunks returns the number of held buffers.
func (a *Allocator) Chunks() int { return len(a.buffers) }

// StartScrub arms the scrub task. The caller drives it by calling Scrub on
// its own schedule.
func (a *Allocator) StartScrub(now time.Time) {
	a.scrubbing = true
	a.lastScrub = now
	a.touchRate = 0
}

// StopScrub disarms the scrub task. Buffers are kept.
func (a *Allocator) StopScrub() {
	a.scrubbing = false
	a.touchRate = 0
}

// Scrubbing reports whether the scrub task is armed.
func (a *Allocator) Scrubbing() bool { return a.scrubbing }

// TouchRate returns element touches per second over the last pass.
func (a *Allocator) TouchRate() float64 { return a.touchRate }

// Scrub runs one pass: it mutates a strided subset of every buffer, and
// every reverseEvery passes reverses alternating buffers. It returns the
// number of elements touched.
func (a *Allocator) Scrub(now time.Time) int64 {
	if !a.scrubbing {
		return 0
	}

	offset := a.pass % a.stride
	var touched int64
	for _, buf := range a.buffers {
		for j := offset; j < len(buf); j += a.stride {
			buf[j] = buf[j]*0.999 + 1
			touched++
		}
	}

	a.pass++
	if a.pass%a.reverseEvery == 0 {
		parity := (a.pass / a.reverseEvery) % 2
		for i := parity; i < len(a.buffers); i += 2 {
			slices.Reverse(a.buffers[i])
			touched += int64(len(a.buffers[i]))
		}
	}

	if dt := now.Sub(a.lastScrub).Seconds(); dt > 0 {
		a.touchRate = float64(touched) / dt
	}
	a.lastScrub = now
	return touched
}

func (a *Allocator) defaultAlloc(n int) ([]float64, error) {
	want := uint64(n) * elemBytes
	if a.limit > 0 && uint64(a.bytes)+want > a.limit {
		return nil, fmt.Errorf("%w: %d bytes would exceed allocatable limit %d", ErrAllocation, uint64(a.bytes)+want, a.limit)
	}
	return make([]float64, n), nil
}

// safeAlloc converts a recoverable allocation panic into ErrAllocation.
func (a *Allocator) safeAlloc(n int) (buf []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %v", ErrAllocation, r)
		}
	}()
	buf, err = a.alloc(n)
	if err == nil && buf == nil && n > 0 {
		err = ErrAllocation
	}
	if len(buf) > n {
		buf = buf[:n]
	}
	return buf, err
}

// touchPages writes one element per page so the buffer is backed by
// resident memory rather than the shared zero page.
func touchPages(buf []float64) {
	for i := 0; i < len(buf); i += pageElems {
		buf[i] = float64(i)
	}
}
