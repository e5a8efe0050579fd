package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hydrosignal/waternet-simulator/network"
	"github.com/hydrosignal/waternet-simulator/scada"
)

var ErrBadScenario = errors.New("invalid scenario configuration")

// GeneralParams are the run-wide solver parameters. All step sizes and
// durations are simulation seconds.
type GeneralParams struct {
	Duration      int64  `yaml:"duration"`
	HydraulicStep int64  `yaml:"hydraulic_step"`
	QualityStep   int64  `yaml:"quality_step"`
	ReportingStep int64  `yaml:"reporting_step"`
	DemandModel   string `yaml:"demand_model"`  // "dda" | "pda"
	QualityModel  string `yaml:"quality_model"` // "none" | "chemical" | "age"
}

// withDefaults fills unset step sizes with the customary solver defaults.
func (p GeneralParams) withDefaults() GeneralParams {
	if p.HydraulicStep == 0 {
		p.HydraulicStep = 1800
	}
	if p.ReportingStep == 0 {
		p.ReportingStep = p.HydraulicStep
	}
	if p.QualityStep == 0 {
		p.QualityStep = p.HydraulicStep
	}
	if p.DemandModel == "" {
		p.DemandModel = "dda"
	}
	if p.QualityModel == "" {
		p.QualityModel = "none"
	}
	return p
}

func (p GeneralParams) validate() error {
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrBadScenario, p.Duration)
	}
	if p.QualityStep > p.HydraulicStep {
		return fmt.Errorf("%w: quality step %d exceeds hydraulic step %d",
			ErrBadScenario, p.QualityStep, p.HydraulicStep)
	}
	return nil
}

// ScenarioConfig is the immutable description of one run. It is consumed
// once per Engine instantiation; the engine copies the mutable pieces on
// handoff so later edits by the caller do not leak into a running
// scenario.
type ScenarioConfig struct {
	Network *network.Store
	General GeneralParams

	// Sensors enumerates instrumented elements. Nil means "instrument
	// everything", derived from topology when the engine prepares.
	Sensors *scada.SensorConfig

	SystemEvents []SystemEvent
	SensorEvents []scada.Event
	Controls     []ControlModule

	Uncertainty *ModelUncertainty
	Noise       *scada.Noise
}

// copyForRun snapshots the slices so the engine owns its own view.
func (c ScenarioConfig) copyForRun() ScenarioConfig {
	out := c
	out.SystemEvents = slices.Clone(c.SystemEvents)
	out.SensorEvents = slices.Clone(c.SensorEvents)
	out.Controls = slices.Clone(c.Controls)
	if c.Sensors != nil {
		sensors := *c.Sensors
		out.Sensors = &sensors
	}
	return out
}
