package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScenarioCollector bundles Prometheus metrics for scenario execution
// and provides a ready-to-serve /metrics handler.
type ScenarioCollector struct {
	gatherer prometheus.Gatherer

	RunsStarted   *prometheus.CounterVec
	RunsCompleted *prometheus.CounterVec
	StepsTotal    prometheus.Counter
	EventsApplied *prometheus.CounterVec
	StepDurations prometheus.Histogram
	ActiveRuns    prometheus.Gauge
}

// NewScenarioCollector registers scenario Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil.
func NewScenarioCollector(reg prometheus.Registerer) (*ScenarioCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenario_runs_started_total",
		Help: "Total number of scenario runs started, labeled by execution path.",
	}, []string{"path"})
	started, err := registerCounterVec(reg, started, "scenario_runs_started_total")
	if err != nil {
		return nil, err
	}

	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenario_runs_completed_total",
		Help: "Total number of scenario runs that ended, labeled by outcome (finished, aborted, failed).",
	}, []string{"outcome"})
	completed, err = registerCounterVec(reg, completed, "scenario_runs_completed_total")
	if err != nil {
		return nil, err
	}

	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scenario_solver_steps_total",
		Help: "Total number of internal solver sub-steps advanced.",
	}), "scenario_solver_steps_total")
	if err != nil {
		return nil, err
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenario_system_events_applied_total",
		Help: "Total number of in-window system event applications, labeled by aligned boundary outcome.",
	}, []string{"kind"})
	events, err = registerCounterVec(reg, events, "scenario_system_events_applied_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scenario_step_duration_seconds",
		Help:    "Wall-clock latency of one solver sub-step advance.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "scenario_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_active_runs",
		Help: "Number of scenario runs currently stepping.",
	}), "scenario_active_runs")
	if err != nil {
		return nil, err
	}

	return &ScenarioCollector{
		gatherer:      gatherer,
		RunsStarted:   started,
		RunsCompleted: completed,
		StepsTotal:    steps,
		EventsApplied: events,
		StepDurations: durations,
		ActiveRuns:    active,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ScenarioCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nil-safe recording helpers so the engine can hold an optional collector.

func (c *ScenarioCollector) RecordRunStarted(path string) {
	if c == nil || c.RunsStarted == nil {
		return
	}
	c.RunsStarted.WithLabelValues(path).Inc()
}

func (c *ScenarioCollector) RecordRunCompleted(outcome string) {
	if c == nil || c.RunsCompleted == nil {
		return
	}
	c.RunsCompleted.WithLabelValues(outcome).Inc()
}

func (c *ScenarioCollector) RecordStep(seconds float64) {
	if c == nil {
		return
	}
	if c.StepsTotal != nil {
		c.StepsTotal.Inc()
	}
	if c.StepDurations != nil {
		c.StepDurations.Observe(seconds)
	}
}

func (c *ScenarioCollector) RecordEventApplied(kind string) {
	if c == nil || c.EventsApplied == nil {
		return
	}
	c.EventsApplied.WithLabelValues(kind).Inc()
}

func (c *ScenarioCollector) RunBegan() {
	if c == nil || c.ActiveRuns == nil {
		return
	}
	c.ActiveRuns.Inc()
}

func (c *ScenarioCollector) RunEnded() {
	if c == nil || c.ActiveRuns == nil {
		return
	}
	c.ActiveRuns.Dec()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
