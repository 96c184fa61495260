package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsSplitsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("pending-donation-expiry", 250*time.Millisecond, nil)
	m.ObserveRun("pending-donation-expiry", time.Second, errors.New("db down"))
	m.ObserveRun("", time.Millisecond, nil)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("pending-donation-expiry", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("pending-donation-expiry", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", "success")))
	require.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("pending-donation-expiry")), 0.0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "tipjar_cron_job_duration_seconds", "job", "pending-donation-expiry")
	require.NoError(t, err)
	require.InDelta(t, 1.25, sum, 0.001)
}

func TestCronJobMetricsFailureLeavesLastSuccessUnset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("outbox-retention", time.Second, errors.New("timeout"))

	count, err := testutil.GatherAndCount(reg, "tipjar_cron_job_last_success_timestamp_seconds")
	require.NoError(t, err)
	require.Zero(t, count)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetric(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric, nil
				}
			}
		}
		return nil, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}
