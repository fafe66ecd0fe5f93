// Package metrics exposes session snapshots in the Prometheus text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utkarsh5026/heatload/session"
)

const namespace = "heatload"

// Source supplies the snapshot read at every scrape.
type Source interface {
	Snapshot() session.Snapshot
}

// Collector turns a snapshot into gauges and counters at scrape time, so
// the values are never staler than the session itself.
type Collector struct {
	source Source

	state            *prometheus.Desc
	unitsRequested   *prometheus.Desc
	unitsActive      *prometheus.Desc
	throughput       *prometheus.Desc
	cpuBusy          *prometheus.Desc
	memoryBytes      *prometheus.Desc
	memoryChunks     *prometheus.Desc
	memoryRequested  *prometheus.Desc
	touchRate        *prometheus.Desc
	graphicsActivity *prometheus.Desc
	fps              *prometheus.Desc
	draws            *prometheus.Desc
	remaining        *prometheus.Desc
	flag             *prometheus.Desc
	events           *prometheus.Desc
}

// NewCollector returns a collector reading from source.
func NewCollector(source Source) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		source:           source,
		state:            desc("session_state", "1 for the current session state.", "state"),
		unitsRequested:   desc("units_requested", "Compute units requested by the session config."),
		unitsActive:      desc("units_active", "Compute unit goroutines running."),
		throughput:       desc("throughput_iterations_per_second", "Aggregate compute iterations per second at the last tick."),
		cpuBusy:          desc("cpu_busy_ratio", "Estimated share of host CPU kept busy."),
		memoryBytes:      desc("memory_bytes", "Bytes held by the memory allocator."),
		memoryChunks:     desc("memory_chunks", "Buffers held by the memory allocator."),
		memoryRequested:  desc("memory_requested_bytes", "Memory target of the session config."),
		touchRate:        desc("memory_touches_per_second", "Scrub task element touches per second."),
		graphicsActivity: desc("graphics_activity_ratio", "Renderer busy fraction at the last frame."),
		fps:              desc("graphics_frames_per_second", "Instantaneous frame rate."),
		draws:            desc("graphics_draws", "Draws accepted since the graphics driver was created."),
		remaining:        desc("remaining_seconds", "Seconds until auto-stop."),
		flag:             desc("flag", "1 for every diagnostic flag raised this session.", "flag"),
		events:           desc("events_total", "Lifetime controller events.", "event"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.state, c.unitsRequested, c.unitsActive, c.throughput, c.cpuBusy,
		c.memoryBytes, c.memoryChunks, c.memoryRequested, c.touchRate, c.graphicsActivity,
		c.fps, c.draws, c.remaining, c.flag, c.events,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for _, s := range []session.State{session.Idle, session.Running, session.Paused} {
		v := 0.0
		if snap.State == s {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, s.String())
	}

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	gauge(c.unitsRequested, float64(snap.UnitsRequested))
	gauge(c.unitsActive, float64(snap.UnitsActive))
	gauge(c.throughput, snap.Throughput)
	gauge(c.cpuBusy, snap.CPUBusy)
	gauge(c.memoryBytes, float64(snap.MemoryBytes))
	gauge(c.memoryChunks, float64(snap.MemoryChunks))
	gauge(c.memoryRequested, float64(snap.MemoryRequested))
	gauge(c.touchRate, snap.TouchRate)
	gauge(c.graphicsActivity, snap.GraphicsActivity)
	gauge(c.fps, snap.FPS)
	gauge(c.draws, float64(snap.Draws))
	gauge(c.remaining, snap.RemainingSeconds)

	for _, f := range snap.Flags {
		ch <- prometheus.MustNewConstMetric(c.flag, prometheus.GaugeValue, 1, f)
	}

	counters := snap.Counters
	for event, v := range map[string]int64{
		"start":     counters.Starts,
		"stop":      counters.Stops,
		"stall":     counters.StallTrips,
		"auto_stop": counters.AutoStops,
		"fault":     counters.WorkerFaults,
		"guardrail": counters.GuardrailTrips,
		"degraded":  counters.Degradations,
		"stuck":     counters.StuckShutdowns,
	} {
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(v), event)
	}
}

// NewRegistry returns a registry holding the session collector plus the
// Go runtime and process collectors.
func NewRegistry(source Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
