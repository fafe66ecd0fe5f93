package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chunk = 64 << 10

func TestAllocateReachesTarget(t *testing.T) {
	a := New(WithChunkBytes(chunk))

	res := a.Allocate(4*chunk + 100)
	require.False(t, res.Degraded())
	// the sub-element remainder is dropped, never rounded up
	assert.Equal(t, int64(4*chunk+96), res.Bytes)
	assert.Equal(t, 5, res.Chunks)
	assert.LessOrEqual(t, a.Bytes(), res.Requested)
}

func TestAllocateNeverExceedsTarget(t *testing.T) {
	a := New(WithChunkBytes(chunk))
	for _, target := range []int64{0, 1, 7, 8, chunk - 1, chunk, chunk + 1, 3*chunk + 17} {
		res := a.Allocate(target)
		assert.LessOrEqual(t, res.Bytes, target, "target %d", target)
		assert.Equal(t, res.Bytes, a.Bytes())
	}
}

func TestAllocateKeepsPartialOnFailure(t *testing.T) {
	calls := 0
	a := New(WithChunkBytes(chunk), WithAllocFunc(func(n int) ([]float64, error) {
		calls++
		if calls > 2 {
			return nil, ErrAllocation
		}
		return make([]float64, n), nil
	}))

	var res Result
	require.NotPanics(t, func() { res = a.Allocate(10 * chunk) })

	assert.True(t, res.Degraded())
	assert.Equal(t, FaultAllocation, res.Fault)
	assert.ErrorIs(t, res.Err, ErrAllocation)
	assert.Equal(t, int64(2*chunk), res.Bytes)
	assert.Equal(t, 2, a.Chunks())
}

func TestAllocateRecoversPanics(t *testing.T) {
	a := New(WithChunkBytes(chunk), WithAllocFunc(func(n int) ([]float64, error) {
		panic("makeslice: len out of range")
	}))

	var res Result
	require.NotPanics(t, func() { res = a.Allocate(chunk) })
	assert.True(t, errors.Is(res.Err, ErrAllocation))
	assert.Zero(t, res.Bytes)
}

func TestAllocateHonoursLimit(t *testing.T) {
	a := New(WithChunkBytes(chunk), WithLimit(3*chunk))

	res := a.Allocate(100 * chunk)
	assert.Equal(t, FaultAllocation, res.Fault)
	assert.Equal(t, int64(3*chunk), res.Bytes)
}

func TestAllocateReusesMatchingBuffers(t *testing.T) {
	calls := 0
	a := New(WithChunkBytes(chunk), WithAllocFunc(func(n int) ([]float64, error) {
		calls++
		return make([]float64, n), nil
	}))

	a.Allocate(2 * chunk)
	a.Allocate(2 * chunk)
	assert.Equal(t, 2, calls, "same target must not reallocate")

	a.Allocate(chunk)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(chunk), a.Bytes())
}

func TestRelease(t *testing.T) {
	a := New(WithChunkBytes(chunk))
	a.Allocate(3 * chunk)
	a.Release()
	assert.Zero(t, a.Bytes())
	assert.Zero(t, a.Chunks())
}

func TestScrub(t *testing.T) {
	a := New(WithChunkBytes(chunk), WithScrub(16, 2))
	a.Allocate(2 * chunk)

	now := time.Now()
	assert.Zero(t, a.Scrub(now), "scrub must be inert until started")

	a.StartScrub(now)
	require.True(t, a.Scrubbing())

	elems := chunk / elemBytes
	first := a.Scrub(now.Add(100 * time.Millisecond))
	assert.Equal(t, int64(2*elems/16), first)
	assert.InDelta(t, float64(first)*10, a.TouchRate(), 1)

	// second pass reverses one of the two buffers
	head := a.buffers[1][0]
	tail := a.buffers[1][len(a.buffers[1])-1]
	second := a.Scrub(now.Add(200 * time.Millisecond))
	assert.Greater(t, second, first)
	assert.Equal(t, tail, a.buffers[1][0])
	assert.Equal(t, head, a.buffers[1][len(a.buffers[1])-1])

	a.StopScrub()
	assert.False(t, a.Scrubbing())
	assert.Zero(t, a.TouchRate())
	assert.Equal(t, int64(2*chunk), a.Bytes(), "stopping the scrub keeps buffers")
}
