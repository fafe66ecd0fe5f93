package telemetry

import (
	"time"

	"github.com/utkarsh5026/heatload/worker"
)

// Options tunes the aggregator's heuristics.
type Options struct {
	ChartCapacity          int
	LowBusyThreshold       float64
	LowBusyTicks           int
	MinMeaningfulIntensity float64
}

// Tick describes the session as seen by the coordinator at one aggregation
// tick.
type Tick struct {
	Window            time.Duration
	RequestedUnits    int
	ActiveUnits       int
	Cores             int
	Intensity         float64
	Paused            bool
	GraphicsRequested bool
	GraphicsLive      bool
}

// Aggregator merges reports between ticks. It is owned by the coordinating
// loop and is not safe for concurrent use.
type Aggregator struct {
	opts    Options
	pending []worker.Report
	chart   *ChartBuffer

	cpuBusy   float64
	lowStreak int
	reports   int64
}

// NewAggregator returns an aggregator with an empty chart.
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{opts: opts, chart: NewChartBuffer(opts.ChartCapacity)}
}

// Add queues a report received from a unit.
func (a *Aggregator) Add(r worker.Report) {
	a.pending = append(a.pending, r)
	a.reports++
}

// Pending returns the number of reports awaiting the next tick.
func (a *Aggregator) Pending() int { return len(a.pending) }

// Tick drains every pending report into the aggregate figures, appends a
// chart sample and adds any derived flags to flags.
func (a *Aggregator) Tick(t Tick, flags *FlagSet) {
	var iterations int64
	busyByUnit := make(map[int]time.Duration)
	for _, r := range a.pending {
		iterations += r.Iterations
		busyByUnit[r.Unit] += r.Elapsed
	}
	a.pending = a.pending[:0]

	var throughput float64
	if secs := t.Window.Seconds(); secs > 0 {
		throughput = float64(iterations) / secs
	}
	a.chart.Push(throughput)

	a.cpuBusy = 0
	if len(busyByUnit) > 0 && t.Window > 0 && t.Cores > 0 {
		var sum float64
		for _, busy := range busyByUnit {
			sum += min(1, float64(busy)/float64(t.Window))
		}
		avg := sum / float64(len(busyByUnit))
		a.cpuBusy = min(1, avg*float64(t.ActiveUnits)/float64(t.Cores))
	}

	if t.ActiveUnits < t.RequestedUnits {
		flags.Add(FlagWorkersBelowRequested)
	}
	if t.GraphicsRequested && !t.GraphicsLive {
		flags.Add(FlagGraphicsUnavailable)
	}

	// Best effort: legitimate throttling such as background execution can
	// trip this too.
	if t.RequestedUnits > 0 && !t.Paused &&
		t.Intensity > a.opts.MinMeaningfulIntensity &&
		a.cpuBusy < a.opts.LowBusyThreshold {
		a.lowStreak++
	} else {
		a.lowStreak = 0
	}
	if a.opts.LowBusyTicks >= 0 && a.lowStreak > a.opts.LowBusyTicks {
		flags.Add(FlagNotApplyingLoad)
	}
}

// Throughput returns iterations per second at the last tick.
func (a *Aggregator) Throughput() float64 { return a.chart.Last() }

// CPUBusy returns the busy estimate in [0,1] at the last tick.
func (a *Aggregator) CPUBusy() float64 { return a.cpuBusy }

// Chart returns the chart samples oldest first.
func (a *Aggregator) Chart() []float64 { return a.chart.Values() }

// Reports returns the total reports received since the last reset.
func (a *Aggregator) Reports() int64 { return a.reports }

// Reset clears pending reports, the chart and the debounce state.
func (a *Aggregator) Reset() {
	a.pending = nil
	a.chart.Reset()
	a.cpuBusy = 0
	a.lowStreak = 0
	a.reports = 0
}
