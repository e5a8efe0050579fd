package core

import (
	"fmt"
	"math/rand/v2"
)

// Uncertainty perturbs a single network parameter value. Implementations
// are seeded so a scenario's ground truth is reproducible across runs.
type Uncertainty interface {
	Apply(value float64) float64
}

// GaussianUncertainty adds a zero-mean normal draw.
type GaussianUncertainty struct {
	StdDev float64 `yaml:"std_dev"`
	Seed   uint64  `yaml:"seed"`

	rng *rand.Rand
}

func (u *GaussianUncertainty) Apply(value float64) float64 {
	if u.rng == nil {
		u.rng = rand.New(rand.NewPCG(u.Seed, u.Seed))
	}
	return value + u.rng.NormFloat64()*u.StdDev
}

// UniformUncertainty adds a draw from [Low, High].
type UniformUncertainty struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
	Seed uint64  `yaml:"seed"`

	rng *rand.Rand
}

func (u *UniformUncertainty) Apply(value float64) float64 {
	if u.rng == nil {
		u.rng = rand.New(rand.NewPCG(u.Seed, u.Seed))
	}
	return value + u.Low + u.rng.Float64()*(u.High-u.Low)
}

// RelativeUniformUncertainty scales by a draw from [1-Fraction, 1+Fraction].
type RelativeUniformUncertainty struct {
	Fraction float64 `yaml:"fraction"`
	Seed     uint64  `yaml:"seed"`

	rng *rand.Rand
}

func (u *RelativeUniformUncertainty) Apply(value float64) float64 {
	if u.rng == nil {
		u.rng = rand.New(rand.NewPCG(u.Seed, u.Seed))
	}
	scale := 1 - u.Fraction + u.rng.Float64()*2*u.Fraction
	return value * scale
}

// ModelUncertainty aggregates per-parameter uncertainty specs. Each
// configured parameter class is perturbed independently, once per
// affected element, before the first step; nothing is re-rolled mid-run.
type ModelUncertainty struct {
	PipeLength    Uncertainty
	PipeDiameter  Uncertainty
	PipeRoughness Uncertainty
	BaseDemand    Uncertainty
	DemandPattern Uncertainty
	Elevation     Uncertainty
}

// Apply perturbs the solver's loaded network parameters in place. It is
// the engine's job to call this exactly once, between loading and the
// first step.
func (m *ModelUncertainty) Apply(s ParameterSurface) error {
	if m == nil {
		return nil
	}

	for _, id := range s.PipeIDs() {
		if err := perturb(s.PipeLength, s.SetPipeLength, m.PipeLength, id); err != nil {
			return fmt.Errorf("pipe length uncertainty: %w", err)
		}
		if err := perturb(s.PipeDiameter, s.SetPipeDiameter, m.PipeDiameter, id); err != nil {
			return fmt.Errorf("pipe diameter uncertainty: %w", err)
		}
		if err := perturb(s.PipeRoughness, s.SetPipeRoughness, m.PipeRoughness, id); err != nil {
			return fmt.Errorf("pipe roughness uncertainty: %w", err)
		}
	}

	for _, id := range s.JunctionIDs() {
		if err := perturb(s.BaseDemand, s.SetBaseDemand, m.BaseDemand, id); err != nil {
			return fmt.Errorf("base demand uncertainty: %w", err)
		}
		if err := perturb(s.Elevation, s.SetElevation, m.Elevation, id); err != nil {
			return fmt.Errorf("elevation uncertainty: %w", err)
		}
		if m.DemandPattern != nil {
			mults, err := s.DemandPattern(id)
			if err != nil {
				return fmt.Errorf("demand pattern uncertainty: %w", err)
			}
			if len(mults) == 0 {
				continue
			}
			for i, v := range mults {
				mults[i] = m.DemandPattern.Apply(v)
			}
			if err := s.SetDemandPattern(id, mults); err != nil {
				return fmt.Errorf("demand pattern uncertainty: %w", err)
			}
		}
	}

	return nil
}

func perturb(get func(string) (float64, error), set func(string, float64) error, u Uncertainty, id string) error {
	if u == nil {
		return nil
	}
	v, err := get(id)
	if err != nil {
		return err
	}
	return set(id, u.Apply(v))
}
