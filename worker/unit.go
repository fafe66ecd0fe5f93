package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/utkarsh5026/heatload/internal/cpu"
)

// clockCheckEvery is how many iterations run between deadline checks.
const clockCheckEvery = 1024

// unit is one compute unit. Everything here is owned by the unit's
// goroutine except inbox, which is the only way in.
type unit struct {
	id     int
	inbox  chan Message
	out    chan<- Report
	config *poolConfig

	intensity float64
	running   bool
	sink      float64
}

func newUnit(id int, out chan<- Report, cfg *poolConfig) *unit {
	return &unit{
		id:     id,
		inbox:  make(chan Message, cfg.inboxBuffer),
		out:    out,
		config: cfg,
	}
}

// run is the unit's message loop. It returns nil on Stop or cancellation
// and an error carrying the stack trace if a cycle panics.
func (u *unit) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("unit %d panic: %v\nstack trace:\n%s", u.id, r, buf[:n])
		}
	}()

	if u.config.affinity {
		release := cpu.SetupUnitAffinity(u.id)
		defer release()
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	// next is nil while the unit is not cycling.
	var next <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-u.inbox:
			if !ok {
				return nil
			}
			switch msg.Kind {
			case KindStart:
				u.intensity = clamp01(msg.Intensity)
				if !u.running {
					u.running = true
					timer.Reset(0)
					next = timer.C
				}
			case KindUpdate:
				u.intensity = clamp01(msg.Intensity)
			case KindPause:
				u.running = false
				timer.Stop()
				next = nil
			case KindResume:
				if !u.running {
					u.running = true
					timer.Reset(0)
					next = timer.C
				}
			case KindStop:
				return nil
			}

		case <-next:
			report := u.cycle()
			select {
			case u.out <- report:
			case <-ctx.Done():
				return nil
			}
			timer.Reset(max(0, u.config.cycle-report.Elapsed))
		}
	}
}

// cycle executes one bounded slice of floating-point work.
func (u *unit) cycle() Report {
	if u.config.beforeCycle != nil {
		u.config.beforeCycle(u.id)
	}

	target := int64(math.Round(u.intensity * float64(u.config.workPerCycle)))
	budget := time.Duration(u.intensity * float64(u.config.cycle))

	start := time.Now()
	deadline := start.Add(budget)
	x := u.sink + 1

	var i int64
	for i < target {
		x = math.Sqrt(x*1.000001+float64(i&0xff)) + math.Sin(x)
		i++
		if i%clockCheckEvery == 0 && time.Now().After(deadline) {
			break
		}
	}
	u.sink = x

	report := Report{Unit: u.id, Iterations: i, Elapsed: time.Since(start)}
	if u.config.onCycleEnd != nil {
		u.config.onCycleEnd(report)
	}
	return report
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}
