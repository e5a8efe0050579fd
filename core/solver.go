package core

import (
	"io"

	"github.com/hydrosignal/waternet-simulator/network"
	"github.com/hydrosignal/waternet-simulator/scada"
)

// ActuatorSurface is the narrow command set granted to control modules.
// Commands take effect starting from the next internal sub-step. Control
// modules must not mutate anything beyond this surface.
type ActuatorSurface interface {
	SetPumpStatus(pumpID string, open bool) error
	SetPumpSpeed(pumpID string, speed float64) error
	SetValveStatus(valveID string, open bool) error
	SetQualitySource(nodeID string, value float64) error
}

// EventSurface extends the actuator surface with the ground-truth
// mutations system events perform: leak emitters and species sources.
type EventSurface interface {
	ActuatorSurface

	// SetEmitterCoefficient attaches (or clears, with a zero coefficient)
	// a pressure-dependent leak discharge at a node or link.
	SetEmitterCoefficient(elementID string, coefficient float64) error

	// SetSpeciesInjection sets the source strength of a water-quality
	// species at a node. A zero strength removes the injection.
	SetSpeciesInjection(nodeID, species string, strength float64) error
}

// ParameterSurface exposes the loaded network parameters that the
// uncertainty layer perturbs exactly once before stepping begins.
type ParameterSurface interface {
	PipeIDs() []string
	JunctionIDs() []string

	PipeLength(pipeID string) (float64, error)
	SetPipeLength(pipeID string, v float64) error
	PipeDiameter(pipeID string) (float64, error)
	SetPipeDiameter(pipeID string, v float64) error
	PipeRoughness(pipeID string) (float64, error)
	SetPipeRoughness(pipeID string, v float64) error

	BaseDemand(nodeID string) (float64, error)
	SetBaseDemand(nodeID string, v float64) error
	Elevation(nodeID string) (float64, error)
	SetElevation(nodeID string, v float64) error

	DemandPattern(nodeID string) ([]float64, error)
	SetDemandPattern(nodeID string, multipliers []float64) error
}

// Solver is the external hydraulic/quality engine the scenario engine
// drives. The engine owns the solver handle exclusively for its
// lifetime; events and controls only ever see the narrow surfaces above.
type Solver interface {
	EventSurface
	ParameterSurface

	// Load binds the solver to a network description.
	Load(store *network.Store) error

	// Configure applies the general run parameters and opens/initializes
	// the analysis.
	Configure(p GeneralParams) error

	// AdvanceOneStep advances one internal sub-step and returns the
	// elapsed simulation time in seconds. The first call reports the
	// initial state at t=0.
	AdvanceOneStep() (int64, error)

	// RemainingSteps returns how many sub-steps are left; a non-positive
	// value signals completion.
	RemainingSteps() int

	// Snapshot reports the current raw signals for the configured
	// sensors, stamped with the current elapsed time.
	Snapshot(sensors scada.SensorConfig) (scada.Frame, error)

	// Solve runs the whole configured duration in one bulk call and
	// returns one frame per reporting boundary. Only legal before any
	// AdvanceOneStep call.
	Solve(sensors scada.SensorConfig, reportStep int64) ([]scada.Frame, error)

	// ExportState writes an opaque line describing the full current
	// solver state, for incremental hydraulic-state export.
	ExportState(w io.Writer) error

	// Close releases solver resources. Further calls fail.
	Close() error
}
