package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/heatload/session"
)

type staticSource session.Snapshot

func (s staticSource) Snapshot() session.Snapshot { return session.Snapshot(s) }

func sample() staticSource {
	return staticSource{
		State:          session.Running,
		UnitsRequested: 4,
		UnitsActive:    3,
		Throughput:     12345,
		CPUBusy:        0.5,
		MemoryBytes:    1 << 20,
		MemoryChunks:   16,
		Flags:          []string{"workers below requested count"},
		Counters:       session.Counters{Starts: 2, Stops: 1},
	}
}

func gather(t *testing.T, src Source) map[string]*dto.MetricFamily {
	t.Helper()
	reg := NewRegistry(src)
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func label(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestCollectorGauges(t *testing.T) {
	families := gather(t, sample())

	active := families["heatload_units_active"]
	require.NotNil(t, active)
	assert.Equal(t, 3.0, active.GetMetric()[0].GetGauge().GetValue())

	assert.Equal(t, 12345.0, families["heatload_throughput_iterations_per_second"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, float64(1<<20), families["heatload_memory_bytes"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 16.0, families["heatload_memory_chunks"].GetMetric()[0].GetGauge().GetValue())
}

func TestCollectorStateAndFlags(t *testing.T) {
	families := gather(t, sample())

	states := map[string]float64{}
	for _, m := range families["heatload_session_state"].GetMetric() {
		states[label(m, "state")] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"idle": 0, "running": 1, "paused": 0}, states)

	flags := families["heatload_flag"].GetMetric()
	require.Len(t, flags, 1)
	assert.Equal(t, "workers below requested count", label(flags[0], "flag"))

	events := map[string]float64{}
	for _, m := range families["heatload_events_total"].GetMetric() {
		events[label(m, "event")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, events["start"])
	assert.Equal(t, 1.0, events["stop"])
}

func TestHandlerServesText(t *testing.T) {
	srv := httptest.NewServer(Handler(NewRegistry(sample())))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "heatload_cpu_busy_ratio 0.5")
	assert.Contains(t, string(body), "go_goroutines")
}
