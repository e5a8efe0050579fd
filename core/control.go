package core

import (
	"fmt"

	"github.com/hydrosignal/waternet-simulator/scada"
)

// ControlModule is a feedback controller invoked once per reported step.
// Init is called exactly once before stepping begins, granting the
// module the narrow actuator-command surface. Step receives the SCADA
// fragment for the just-reported step, after its raw readings were
// captured; commands issued there take effect from the next internal
// sub-step.
//
// Modules registered on the same scenario run in registration order
// within a reported step and all observe the same fragment snapshot: an
// earlier module's commands are only visible in subsequent steps.
type ControlModule interface {
	Init(actuators ActuatorSurface) error
	Step(fragment *scada.Data) error
}

// PressureSwitchControl is a hysteresis pump controller: it switches the
// pump on when the observed pressure at a node falls below LowPressure
// and off when it rises above HighPressure.
type PressureSwitchControl struct {
	PumpID       string
	SensorNode   string
	LowPressure  float64
	HighPressure float64

	actuators ActuatorSurface
}

func NewPressureSwitchControl(pumpID, sensorNode string, low, high float64) (*PressureSwitchControl, error) {
	if pumpID == "" || sensorNode == "" {
		return nil, fmt.Errorf("pressure switch control: pump and sensor node required")
	}
	if low >= high {
		return nil, fmt.Errorf("pressure switch control: low threshold %g >= high %g", low, high)
	}
	return &PressureSwitchControl{
		PumpID:       pumpID,
		SensorNode:   sensorNode,
		LowPressure:  low,
		HighPressure: high,
	}, nil
}

func (c *PressureSwitchControl) Init(actuators ActuatorSurface) error {
	if actuators == nil {
		return fmt.Errorf("pressure switch control: nil actuator surface")
	}
	c.actuators = actuators
	return nil
}

func (c *PressureSwitchControl) Step(fragment *scada.Data) error {
	readings, err := fragment.Pressures(c.SensorNode)
	if err != nil {
		return fmt.Errorf("pressure switch control: %w", err)
	}
	series := readings[c.SensorNode]
	if len(series) == 0 {
		return nil
	}

	p := series[len(series)-1]
	switch {
	case p < c.LowPressure:
		return c.actuators.SetPumpStatus(c.PumpID, true)
	case p > c.HighPressure:
		return c.actuators.SetPumpStatus(c.PumpID, false)
	default:
		return nil
	}
}
