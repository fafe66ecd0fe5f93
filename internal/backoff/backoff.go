// Package backoff computes retry delays: exponential growth from an initial
// delay up to a ceiling, with optional symmetric jitter so retries from
// different callers drift apart.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift keeps 1<<attempt from overflowing.
const maxShift = 62

// Backoff is safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	jitter  float64

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a backoff growing from initial to ceiling. jitter is clamped to
// [0,1]; 0.2 spreads each delay over ±20%.
func New(initial, ceiling time.Duration, jitter float64) *Backoff {
	if initial <= 0 {
		initial = time.Millisecond
	}
	if ceiling < initial {
		ceiling = initial
	}
	return &Backoff{
		initial: initial,
		max:     ceiling,
		jitter:  min(max(jitter, 0), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
	}
}

// Delay returns the wait before retry number attempt (0-indexed). It never
// exceeds the ceiling.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.exponential(attempt)
	if b.jitter == 0 || d == 0 {
		return d
	}

	b.mu.Lock()
	f := 1 + (b.rng.Float64()*2-1)*b.jitter
	b.mu.Unlock()

	return min(time.Duration(float64(d)*f), b.max)
}

func (b *Backoff) exponential(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return b.max
	}
	d := time.Duration(int64(1)<<uint(attempt)) * b.initial
	if d > b.max || d < 0 {
		return b.max
	}
	return d
}

// Max returns the ceiling.
func (b *Backoff) Max() time.Duration { return b.max }
