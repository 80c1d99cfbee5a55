package supervisor

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsCollector_Workers(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.WorkerSpawned("max")
	pmc.WorkerSpawned("sort")
	pmc.WorkerSpawned("max")
	pmc.WorkerStopped("expired", 60*time.Second)
	pmc.WorkerStopped("terminated", 2*time.Second)

	expected := `
		# HELP test_workers_spawned_total Total number of worker processes started
		# TYPE test_workers_spawned_total counter
		test_workers_spawned_total{op="max"} 2
		test_workers_spawned_total{op="sort"} 1
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "test_workers_spawned_total")
	assert.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.stopped.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.stopped.WithLabelValues("terminated")))

	families, err := pmc.Registry().Gather()
	require.NoError(t, err)
	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "test_worker_lifetime_seconds" {
			for _, m := range mf.GetMetric() {
				if m.GetLabel()[0].GetValue() == "expired" {
					hist = m.GetHistogram()
				}
			}
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 60.0, hist.GetSampleSum(), 1e-9)
}

func TestPrometheusMetricsCollector_Supervision(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("")

	for i := 0; i < 3; i++ {
		pmc.Tick()
	}
	pmc.WorkersTracked(4)
	pmc.WorkersTracked(2)
	pmc.TeardownError("buffer")

	assert.Equal(t, 3.0, testutil.ToFloat64(pmc.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(pmc.teardownErrors.WithLabelValues("buffer")))

	m := &dto.Metric{}
	require.NoError(t, pmc.tracked.Write(m))
	assert.Equal(t, 2.0, m.GetGauge().GetValue())

	count, err := testutil.GatherAndCount(pmc.Registry(), "regionshm_supervisor_ticks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNoopMetricsCollector(t *testing.T) {
	mc := NewNoopMetricsCollector()
	assert.NotPanics(t, func() {
		mc.WorkerSpawned("max")
		mc.WorkerStopped("expired", time.Second)
		mc.Tick()
		mc.WorkersTracked(1)
		mc.TeardownError("locks")
	})
}
