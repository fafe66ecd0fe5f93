package worker

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkUnitCycle measures raw cycle cost at several intensities.
func BenchmarkUnitCycle(b *testing.B) {
	for _, intensity := range []float64{0.1, 0.5, 1} {
		b.Run(fmt.Sprintf("intensity=%.1f", intensity), func(b *testing.B) {
			cfg := defaultConfig()
			cfg.cycle = time.Second
			cfg.workPerCycle = 10_000
			u := newUnit(0, nil, cfg)
			u.intensity = intensity

			b.ResetTimer()
			var total int64
			for range b.N {
				total += u.cycle().Iterations
			}
			b.ReportMetric(float64(total)/float64(b.N), "iterations/op")
		})
	}
}

// BenchmarkPoolThroughput reports aggregate iterations per second for a
// short run at full intensity.
func BenchmarkPoolThroughput(b *testing.B) {
	for _, units := range []int{1, 2, 4} {
		b.Run(fmt.Sprintf("units=%d", units), func(b *testing.B) {
			for range b.N {
				p := NewPool(WithCycle(10*time.Millisecond), WithWorkPerCycle(100_000))
				if _, err := p.Start(context.Background(), units, 1); err != nil {
					b.Fatal(err)
				}

				var iterations int64
				deadline := time.After(100 * time.Millisecond)
			collect:
				for {
					select {
					case r := <-p.Reports():
						iterations += r.Iterations
					case <-deadline:
						break collect
					}
				}
				_ = p.Shutdown(time.Second)
				b.ReportMetric(float64(iterations)/0.1, "iterations/s")
			}
		})
	}
}

// BenchmarkBroadcast measures control message fan-out.
func BenchmarkBroadcast(b *testing.B) {
	p := NewPool(WithInboxBuffer(1 << 16))
	if _, err := p.Start(context.Background(), 8, 0); err != nil {
		b.Fatal(err)
	}
	defer p.Shutdown(time.Second)

	b.ResetTimer()
	for i := range b.N {
		_ = p.Broadcast(Update(float64(i%100) / 100))
	}
}
