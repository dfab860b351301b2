package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsRunsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	require.NoError(t, metrics.Track("articles:purge").End(nil))
	require.NoError(t, metrics.Track("articles:purge").End(nil))

	err := metrics.Track("articles:purge").End(errors.New("boom"))
	require.EqualError(t, err, "boom")

	metrics.AddRows("articles:purge", 7)
	metrics.AddRows("articles:purge", 0)

	families, gatherErr := reg.Gather()
	require.NoError(t, gatherErr)

	require.Equal(t, float64(2), counterValue(t, families, "inms_jobs_total", map[string]string{"job": "articles:purge", "status": "success"}))
	require.Equal(t, float64(1), counterValue(t, families, "inms_jobs_total", map[string]string{"job": "articles:purge", "status": "failure"}))
	require.Equal(t, float64(1), counterValue(t, families, "inms_jobs_failures_total", map[string]string{"job": "articles:purge"}))
	require.Equal(t, float64(7), counterValue(t, families, "inms_job_rows_total", map[string]string{"job": "articles:purge"}))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	require.NoError(t, metrics.Track("sessions:cleanup").End(nil))
	metrics.AddRows("sessions:cleanup", 3)
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	seen := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		seen[lp.GetName()] = lp.GetValue()
	}
	for key, val := range labels {
		if seen[key] != val {
			return false
		}
	}
	return true
}
