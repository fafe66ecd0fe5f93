// Package worker runs compute units: isolated goroutines that burn
// floating-point work in fixed-length duty cycles and report throughput.
//
// A unit is reachable only through its inbox. The coordinator sends control
// messages (Start, Update, Pause, Resume, Stop) and receives Report values
// in send order per unit. Units share no mutable state with the coordinator
// or with each other; a unit's only mutable state is its own intensity.
//
// # Duty cycle
//
// Each cycle computes a work quantity proportional to the unit's intensity,
// executes it, and schedules the next cycle after
//
//	delay = max(0, cycle - elapsed)
//
// so a unit spends roughly intensity*cycle busy per cycle window regardless
// of host speed, and aggregate iterations per second is a fair comparative
// throughput signal.
//
// # Basic Usage
//
//	p := worker.NewPool(worker.WithCycle(100*time.Millisecond))
//	n, err := p.Start(ctx, 4, 0.5)
//	for r := range p.Reports() {
//	    // aggregate r.Iterations, r.Elapsed
//	}
//	_ = p.Broadcast(worker.Update(0.8))
//	_ = p.Shutdown(2 * time.Second)
//
// A panic inside a unit is recovered, converted to an error carrying the
// stack trace, and delivered on Faults.
package worker
