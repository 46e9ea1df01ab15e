package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("renewals", 250*time.Millisecond, nil)
	m.ObserveRun("renewals", time.Second, errors.New("boom"))
	m.IncSkipped("renewals")
	m.IncSkipped("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for result, want := range map[string]float64{"success": 1, "failure": 1, "skipped": 1} {
		got, err := counterValue(mfs, "cron_job_runs_total", map[string]string{"job": "renewals", "result": result})
		if err != nil {
			t.Fatalf("%s: %v", result, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", result, want, got)
		}
	}
	if _, err := counterValue(mfs, "cron_job_runs_total", map[string]string{"job": "unknown", "result": "skipped"}); err != nil {
		t.Fatalf("empty job name not normalized: %v", err)
	}

	mf := findMetricFamily(mfs, "cron_job_duration_seconds")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("expected one duration series")
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %v", sum)
	}
}

func TestNilCronJobMetricsAreSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	NewCronJobMetrics(nil).IncSkipped("job")
}

func counterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if hasLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q has no series %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
