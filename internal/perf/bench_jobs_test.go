package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/stockyard-retail/stockyard/internal/jobs"
)

func TestBackgroundJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Sweeps run every minute and must stay cheap.
	for i := 0; i < 60; i++ {
		tracker := metrics.Track("reservation:sweep")
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending sweep tracker: %v", err)
		}
	}

	// Nightly reconciles replay the whole ledger and are allowed to be
	// slower, within a 5s budget.
	for i := 0; i < 10; i++ {
		tracker := metrics.Track("stock:reconcile")
		time.Sleep(40 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending reconcile tracker: %v", err)
		}
	}

	// Inject a couple of failures to ensure the failure counter moves.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track("reservation:sweep")
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(errors.New("store unavailable")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "stockyard_jobs_total", map[string]string{"job": "reservation:sweep", "status": "success"})
	failure := metricValue(t, families, "stockyard_jobs_total", map[string]string{"job": "reservation:sweep", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no sweep executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("sweep success ratio too low: %f", ratio)
	}

	reconcileDuration := histogramMean(t, families, "stockyard_job_duration_seconds", map[string]string{"job": "stock:reconcile"})
	if reconcileDuration > 5.0 {
		t.Fatalf("reconcile duration above budget: %f", reconcileDuration)
	}

	sweepDuration := histogramMean(t, families, "stockyard_job_duration_seconds", map[string]string{"job": "reservation:sweep"})
	if sweepDuration > 0.5 {
		t.Fatalf("sweep duration above budget: %f", sweepDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
