package core

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/hydrosignal/waternet-simulator/network"
	"github.com/hydrosignal/waternet-simulator/scada"
)

// LoadScenario parses a YAML scenario artifact and binds it to an
// already-loaded network store. Every event, control, and uncertainty
// block is run through the same constructors used by programmatic
// callers, so a hand-edited artifact cannot bypass validation.
func LoadScenario(store *network.Store, r io.Reader) (ScenarioConfig, error) {
	if store == nil {
		return ScenarioConfig{}, fmt.Errorf("%w: nil network store", ErrBadScenario)
	}

	var doc scenarioYAML
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return ScenarioConfig{}, fmt.Errorf("parse scenario: %w", err)
	}

	cfg := ScenarioConfig{
		Network: store,
		General: doc.General,
		Sensors: doc.Sensors,
		Noise:   doc.Noise,
	}

	for i, ev := range doc.SystemEvents {
		built, err := ev.build()
		if err != nil {
			return ScenarioConfig{}, fmt.Errorf("system event %d: %w", i, err)
		}
		cfg.SystemEvents = append(cfg.SystemEvents, built)
	}

	for i, ev := range doc.SensorEvents {
		built, err := ev.build()
		if err != nil {
			return ScenarioConfig{}, fmt.Errorf("sensor event %d: %w", i, err)
		}
		cfg.SensorEvents = append(cfg.SensorEvents, built)
	}

	for i, c := range doc.Controls {
		built, err := c.build()
		if err != nil {
			return ScenarioConfig{}, fmt.Errorf("control %d: %w", i, err)
		}
		cfg.Controls = append(cfg.Controls, built)
	}

	if doc.Uncertainty != nil {
		mu, err := doc.Uncertainty.build()
		if err != nil {
			return ScenarioConfig{}, fmt.Errorf("uncertainty: %w", err)
		}
		cfg.Uncertainty = mu
	}

	return cfg, nil
}

//
// ---------- YAML shapes ----------
//

type scenarioYAML struct {
	General      GeneralParams       `yaml:"general"`
	Sensors      *scada.SensorConfig `yaml:"sensors"`
	SystemEvents []systemEventYAML   `yaml:"system_events"`
	SensorEvents []sensorEventYAML   `yaml:"sensor_events"`
	Controls     []controlYAML       `yaml:"controls"`
	Uncertainty  *uncertaintyYAML    `yaml:"uncertainty"`
	Noise        *scada.Noise        `yaml:"noise"`
}

type systemEventYAML struct {
	Type  string `yaml:"type"`
	Start int64  `yaml:"start"`
	End   int64  `yaml:"end"`

	// leaks
	Element  string    `yaml:"element"`
	Diameter float64   `yaml:"diameter"`
	Peak     int64     `yaml:"peak"`
	Profile  []float64 `yaml:"profile"`

	// actuators
	Target string  `yaml:"target"`
	Kind   string  `yaml:"kind"`
	Open   bool    `yaml:"open"`
	Speed  float64 `yaml:"speed"`

	// species injection
	Node     string  `yaml:"node"`
	Species  string  `yaml:"species"`
	Strength float64 `yaml:"strength"`
}

func (y systemEventYAML) build() (SystemEvent, error) {
	switch y.Type {
	case "leak_abrupt":
		return NewAbruptLeakage(y.Element, y.Diameter, y.Start, y.End)
	case "leak_incipient":
		return NewIncipientLeakage(y.Element, y.Diameter, y.Start, y.Peak, y.End)
	case "leak_profile":
		return NewProfileLeakage(y.Element, y.Diameter, y.Start, y.End, y.Profile)
	case "actuator":
		return NewActuatorStateEvent(y.Target, ActuatorKind(y.Kind), y.Open, y.Speed, y.Start, y.End)
	case "species_injection":
		return NewSpeciesInjectionEvent(y.Node, y.Species, y.Strength, y.Start, y.End)
	default:
		return nil, fmt.Errorf("%w: unknown system event type %q", ErrBadScenario, y.Type)
	}
}

type sensorEventYAML struct {
	Type     string     `yaml:"type"`
	SensorID string     `yaml:"sensor_id"`
	Kind     scada.Kind `yaml:"sensor_type"`
	Start    int64      `yaml:"start"`
	End      int64      `yaml:"end"`

	Shift       float64   `yaml:"shift"`
	Coefficient float64   `yaml:"coefficient"`
	StdDev      float64   `yaml:"std_dev"`
	Seed        uint64    `yaml:"seed"`
	Fresh       bool      `yaml:"fresh"`
	Scale       float64   `yaml:"scale"`
	ReplayStart int64     `yaml:"replay_start"`
	ReplayEnd   int64     `yaml:"replay_end"`
	Values      []float64 `yaml:"values"`
}

func (y sensorEventYAML) build() (scada.Event, error) {
	switch y.Type {
	case "fault_constant":
		return scada.NewConstantFault(y.SensorID, y.Kind, y.Start, y.End, y.Shift)
	case "fault_drift":
		return scada.NewDriftFault(y.SensorID, y.Kind, y.Start, y.End, y.Coefficient)
	case "fault_gaussian":
		ev, err := scada.NewGaussianFault(y.SensorID, y.Kind, y.Start, y.End, y.StdDev)
		if err != nil {
			return nil, err
		}
		ev.Seed = y.Seed
		ev.Fresh = y.Fresh
		return ev, nil
	case "fault_percentage":
		return scada.NewPercentageFault(y.SensorID, y.Kind, y.Start, y.End, y.Scale)
	case "fault_stuck_zero":
		return scada.NewStuckZeroFault(y.SensorID, y.Kind, y.Start, y.End)
	case "attack_replay":
		return scada.NewReplayAttack(y.SensorID, y.Kind, y.Start, y.End, y.ReplayStart, y.ReplayEnd)
	case "attack_override":
		return scada.NewOverrideAttack(y.SensorID, y.Kind, y.Start, y.End, y.Values)
	default:
		return nil, fmt.Errorf("%w: unknown sensor event type %q", ErrBadScenario, y.Type)
	}
}

type controlYAML struct {
	Type string `yaml:"type"`

	Pump string  `yaml:"pump"`
	Node string  `yaml:"node"`
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

func (y controlYAML) build() (ControlModule, error) {
	switch y.Type {
	case "pressure_switch":
		return NewPressureSwitchControl(y.Pump, y.Node, y.Low, y.High)
	default:
		return nil, fmt.Errorf("%w: unknown control type %q", ErrBadScenario, y.Type)
	}
}

type uncertaintyYAML struct {
	PipeLength    *uncertaintySpecYAML `yaml:"pipe_length"`
	PipeDiameter  *uncertaintySpecYAML `yaml:"pipe_diameter"`
	PipeRoughness *uncertaintySpecYAML `yaml:"pipe_roughness"`
	BaseDemand    *uncertaintySpecYAML `yaml:"base_demand"`
	DemandPattern *uncertaintySpecYAML `yaml:"demand_pattern"`
	Elevation     *uncertaintySpecYAML `yaml:"elevation"`
}

type uncertaintySpecYAML struct {
	Type     string  `yaml:"type"`
	StdDev   float64 `yaml:"std_dev"`
	Low      float64 `yaml:"low"`
	High     float64 `yaml:"high"`
	Fraction float64 `yaml:"fraction"`
	Seed     uint64  `yaml:"seed"`
}

func (y *uncertaintySpecYAML) build() (Uncertainty, error) {
	if y == nil {
		return nil, nil
	}
	switch y.Type {
	case "gaussian":
		return &GaussianUncertainty{StdDev: y.StdDev, Seed: y.Seed}, nil
	case "uniform":
		if y.Low > y.High {
			return nil, fmt.Errorf("%w: uniform uncertainty low %g > high %g", ErrBadScenario, y.Low, y.High)
		}
		return &UniformUncertainty{Low: y.Low, High: y.High, Seed: y.Seed}, nil
	case "relative_uniform":
		if y.Fraction < 0 {
			return nil, fmt.Errorf("%w: negative uncertainty fraction %g", ErrBadScenario, y.Fraction)
		}
		return &RelativeUniformUncertainty{Fraction: y.Fraction, Seed: y.Seed}, nil
	default:
		return nil, fmt.Errorf("%w: unknown uncertainty type %q", ErrBadScenario, y.Type)
	}
}

func (y *uncertaintyYAML) build() (*ModelUncertainty, error) {
	mu := &ModelUncertainty{}
	var err error
	if mu.PipeLength, err = y.PipeLength.build(); err != nil {
		return nil, err
	}
	if mu.PipeDiameter, err = y.PipeDiameter.build(); err != nil {
		return nil, err
	}
	if mu.PipeRoughness, err = y.PipeRoughness.build(); err != nil {
		return nil, err
	}
	if mu.BaseDemand, err = y.BaseDemand.build(); err != nil {
		return nil, err
	}
	if mu.DemandPattern, err = y.DemandPattern.build(); err != nil {
		return nil, err
	}
	if mu.Elevation, err = y.Elevation.build(); err != nil {
		return nil, err
	}
	return mu, nil
}
