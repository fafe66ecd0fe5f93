package telemetry

// ChartBuffer is a fixed-capacity FIFO of samples that drops the oldest
// sample on overflow.
type ChartBuffer struct {
	buf   []float64
	start int
	n     int
}

// NewChartBuffer returns an empty buffer holding at most capacity samples.
func NewChartBuffer(capacity int) *ChartBuffer {
	return &ChartBuffer{buf: make([]float64, max(1, capacity))}
}

// Push appends v, evicting the oldest sample when full.
func (c *ChartBuffer) Push(v float64) {
	if c.n < len(c.buf) {
		c.buf[(c.start+c.n)%len(c.buf)] = v
		c.n++
		return
	}
	c.buf[c.start] = v
	c.start = (c.start + 1) % len(c.buf)
}

// Values returns the samples oldest first.
func (c *ChartBuffer) Values() []float64 {
	out := make([]float64, c.n)
	for i := range c.n {
		out[i] = c.buf[(c.start+i)%len(c.buf)]
	}
	return out
}

// Last returns the newest sample, or 0 when empty.
func (c *ChartBuffer) Last() float64 {
	if c.n == 0 {
		return 0
	}
	return c.buf[(c.start+c.n-1)%len(c.buf)]
}

func (c *ChartBuffer) Len() int { return c.n }

func (c *ChartBuffer) Cap() int { return len(c.buf) }

// Reset drops every sample.
func (c *ChartBuffer) Reset() {
	c.start = 0
	c.n = 0
}
