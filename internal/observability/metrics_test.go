package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewScenarioCollectorRegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("NewScenarioCollector: %v", err)
	}

	c.RecordRunStarted("stepwise")
	c.RecordRunStarted("stepwise")
	c.RecordRunStarted("bulk")
	c.RecordRunCompleted("finished")
	c.RecordStep(0.002)
	c.RecordStep(0.004)
	c.RecordEventApplied("system")
	c.RunBegan()

	if got := testutil.ToFloat64(c.RunsStarted.WithLabelValues("stepwise")); got != 2 {
		t.Errorf("runs started (stepwise) = %g, want 2", got)
	}
	if got := testutil.ToFloat64(c.RunsStarted.WithLabelValues("bulk")); got != 1 {
		t.Errorf("runs started (bulk) = %g, want 1", got)
	}
	if got := testutil.ToFloat64(c.RunsCompleted.WithLabelValues("finished")); got != 1 {
		t.Errorf("runs completed = %g, want 1", got)
	}
	if got := testutil.ToFloat64(c.StepsTotal); got != 2 {
		t.Errorf("steps total = %g, want 2", got)
	}
	if got := testutil.ToFloat64(c.EventsApplied.WithLabelValues("system")); got != 1 {
		t.Errorf("events applied = %g, want 1", got)
	}
	if got := testutil.ToFloat64(c.ActiveRuns); got != 1 {
		t.Errorf("active runs = %g, want 1", got)
	}

	c.RunEnded()
	if got := testutil.ToFloat64(c.ActiveRuns); got != 0 {
		t.Errorf("active runs after end = %g, want 0", got)
	}
}

func TestStepDurationsObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("NewScenarioCollector: %v", err)
	}

	c.RecordStep(0.003)
	c.RecordStep(0.03)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var hist *dto.Histogram
	for _, mf := range mfs {
		if mf.GetName() == "scenario_step_duration_seconds" {
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	if hist == nil {
		t.Fatalf("histogram not gathered")
	}
	if hist.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", hist.GetSampleCount())
	}
}

func TestDoubleRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("first NewScenarioCollector: %v", err)
	}
	second, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("second NewScenarioCollector: %v", err)
	}

	first.RecordRunStarted("bulk")
	second.RecordRunStarted("bulk")
	if got := testutil.ToFloat64(second.RunsStarted.WithLabelValues("bulk")); got != 2 {
		t.Errorf("shared counter = %g, want 2", got)
	}
}

func TestNilCollectorHelpersAreSafe(t *testing.T) {
	var c *ScenarioCollector
	c.RecordRunStarted("bulk")
	c.RecordRunCompleted("finished")
	c.RecordStep(0.001)
	c.RecordEventApplied("system")
	c.RunBegan()
	c.RunEnded()
}
