package core

import (
	"fmt"
	"math"
	"testing"
)

// fakeParams is an in-memory ParameterSurface.
type fakeParams struct {
	lengths    map[string]float64
	diameters  map[string]float64
	roughness  map[string]float64
	demands    map[string]float64
	elevations map[string]float64
	patterns   map[string][]float64

	setCalls map[string]int
}

func newFakeParams() *fakeParams {
	return &fakeParams{
		lengths:    map[string]float64{"P1": 500, "P2": 800},
		diameters:  map[string]float64{"P1": 0.3, "P2": 0.25},
		roughness:  map[string]float64{"P1": 110, "P2": 100},
		demands:    map[string]float64{"J1": 5, "J2": 3},
		elevations: map[string]float64{"J1": 10, "J2": 12},
		patterns:   map[string][]float64{"J1": {1, 1.2}, "J2": {}},
		setCalls:   make(map[string]int),
	}
}

func (f *fakeParams) PipeIDs() []string     { return []string{"P1", "P2"} }
func (f *fakeParams) JunctionIDs() []string { return []string{"J1", "J2"} }

func (f *fakeParams) get(m map[string]float64, id string) (float64, error) {
	v, ok := m[id]
	if !ok {
		return 0, fmt.Errorf("unknown element %q", id)
	}
	return v, nil
}

func (f *fakeParams) set(m map[string]float64, key, id string, v float64) error {
	if _, ok := m[id]; !ok {
		return fmt.Errorf("unknown element %q", id)
	}
	m[id] = v
	f.setCalls[key+"/"+id]++
	return nil
}

func (f *fakeParams) PipeLength(id string) (float64, error) { return f.get(f.lengths, id) }
func (f *fakeParams) SetPipeLength(id string, v float64) error {
	return f.set(f.lengths, "length", id, v)
}
func (f *fakeParams) PipeDiameter(id string) (float64, error) { return f.get(f.diameters, id) }
func (f *fakeParams) SetPipeDiameter(id string, v float64) error {
	return f.set(f.diameters, "diameter", id, v)
}
func (f *fakeParams) PipeRoughness(id string) (float64, error) { return f.get(f.roughness, id) }
func (f *fakeParams) SetPipeRoughness(id string, v float64) error {
	return f.set(f.roughness, "roughness", id, v)
}
func (f *fakeParams) BaseDemand(id string) (float64, error) { return f.get(f.demands, id) }
func (f *fakeParams) SetBaseDemand(id string, v float64) error {
	return f.set(f.demands, "demand", id, v)
}
func (f *fakeParams) Elevation(id string) (float64, error) { return f.get(f.elevations, id) }
func (f *fakeParams) SetElevation(id string, v float64) error {
	return f.set(f.elevations, "elevation", id, v)
}

func (f *fakeParams) DemandPattern(id string) ([]float64, error) {
	p, ok := f.patterns[id]
	if !ok {
		return nil, fmt.Errorf("unknown element %q", id)
	}
	return append([]float64(nil), p...), nil
}

func (f *fakeParams) SetDemandPattern(id string, m []float64) error {
	if _, ok := f.patterns[id]; !ok {
		return fmt.Errorf("unknown element %q", id)
	}
	f.patterns[id] = m
	f.setCalls["pattern/"+id]++
	return nil
}

func TestRelativeUniformStaysInBounds(t *testing.T) {
	u := &RelativeUniformUncertainty{Fraction: 0.1, Seed: 3}
	for i := 0; i < 100; i++ {
		v := u.Apply(100)
		if v < 90 || v > 110 {
			t.Fatalf("draw %d out of bounds: %g", i, v)
		}
	}
}

func TestUncertaintySeededReproducibility(t *testing.T) {
	a := &GaussianUncertainty{StdDev: 2, Seed: 5}
	b := &GaussianUncertainty{StdDev: 2, Seed: 5}
	for i := 0; i < 10; i++ {
		if av, bv := a.Apply(50), b.Apply(50); av != bv {
			t.Fatalf("draw %d diverged: %g vs %g", i, av, bv)
		}
	}
}

func TestModelUncertaintyPerturbsEachElementOnce(t *testing.T) {
	params := newFakeParams()
	mu := &ModelUncertainty{
		PipeRoughness: &RelativeUniformUncertainty{Fraction: 0.05, Seed: 1},
		BaseDemand:    &UniformUncertainty{Low: -0.5, High: 0.5, Seed: 2},
		DemandPattern: &GaussianUncertainty{StdDev: 0.01, Seed: 3},
	}

	if err := mu.Apply(params); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, key := range []string{"roughness/P1", "roughness/P2", "demand/J1", "demand/J2", "pattern/J1"} {
		if params.setCalls[key] != 1 {
			t.Errorf("set %s called %d times, want 1", key, params.setCalls[key])
		}
	}
	// Unconfigured parameter classes are untouched.
	for _, key := range []string{"length/P1", "diameter/P1", "elevation/J1"} {
		if params.setCalls[key] != 0 {
			t.Errorf("set %s called %d times, want 0", key, params.setCalls[key])
		}
	}
	// Empty demand patterns are skipped.
	if params.setCalls["pattern/J2"] != 0 {
		t.Errorf("empty pattern perturbed %d times", params.setCalls["pattern/J2"])
	}

	if params.roughness["P1"] == 110 && params.roughness["P2"] == 100 {
		t.Errorf("roughness apparently not perturbed: %v", params.roughness)
	}
	for i, v := range params.patterns["J1"] {
		if math.IsNaN(v) {
			t.Errorf("pattern multiplier %d is NaN", i)
		}
	}
}

func TestNilModelUncertaintyIsNoop(t *testing.T) {
	params := newFakeParams()
	var mu *ModelUncertainty
	if err := mu.Apply(params); err != nil {
		t.Fatalf("nil Apply: %v", err)
	}
	if len(params.setCalls) != 0 {
		t.Errorf("nil uncertainty mutated parameters: %v", params.setCalls)
	}
}
