package scada

import (
	"bytes"
	"errors"
	"testing"
)

func testSensors() SensorConfig {
	return SensorConfig{
		PressureNodes: []string{"N1", "N2"},
		FlowLinks:     []string{"L1"},
	}
}

func frameAt(t int64, p1, p2, f1 float64) Frame {
	return Frame{
		Time: t,
		Values: map[Kind]map[string]float64{
			KindPressure: {"N1": p1, "N2": p2},
			KindFlow:     {"L1": f1},
		},
	}
}

func fillFrames(t *testing.T, d *Data, frames ...Frame) {
	t.Helper()
	for _, f := range frames {
		if err := d.Append(f); err != nil {
			t.Fatalf("Append(t=%d): %v", f.Time, err)
		}
	}
}

func TestAppendValidation(t *testing.T) {
	d := NewData(testSensors(), nil, nil)
	fillFrames(t, d, frameAt(0, 30, 31, 5))

	if err := d.Append(frameAt(0, 30, 31, 5)); !errors.Is(err, ErrJoinOutOfOrder) {
		t.Errorf("same-time append: error = %v, want ErrJoinOutOfOrder", err)
	}

	incomplete := Frame{Time: 100, Values: map[Kind]map[string]float64{
		KindPressure: {"N1": 30},
	}}
	if err := d.Append(incomplete); err == nil {
		t.Errorf("expected error for frame missing configured sensors")
	}

	if d.Len() != 1 {
		t.Errorf("Len = %d after rejected appends, want 1", d.Len())
	}
}

func TestRawSeriesIsPristine(t *testing.T) {
	ev, err := NewConstantFault("N1", KindPressure, 0, 100, 5)
	if err != nil {
		t.Fatalf("NewConstantFault: %v", err)
	}
	d := NewData(testSensors(), []Event{ev}, &Noise{StdDev: 1, Seed: 3})
	fillFrames(t, d, frameAt(0, 30, 31, 5), frameAt(100, 32, 33, 6))

	if _, err := d.Pressures(); err != nil {
		t.Fatalf("Pressures: %v", err)
	}

	raw, err := d.RawSeries(KindPressure, "N1")
	if err != nil {
		t.Fatalf("RawSeries: %v", err)
	}
	if raw[0] != 30 || raw[1] != 32 {
		t.Errorf("raw series mutated by observation: %v", raw)
	}
}

func TestObservedAppliesEventsOnlyInWindow(t *testing.T) {
	ev, err := NewConstantFault("N1", KindPressure, 100, 200, 5)
	if err != nil {
		t.Fatalf("NewConstantFault: %v", err)
	}
	d := NewData(testSensors(), []Event{ev}, nil)
	fillFrames(t, d,
		frameAt(0, 30, 40, 5),
		frameAt(100, 31, 41, 5),
		frameAt(200, 32, 42, 5),
		frameAt(300, 33, 43, 5),
	)

	obs, err := d.Pressures("N1")
	if err != nil {
		t.Fatalf("Pressures: %v", err)
	}
	want := []float64{30, 36, 37, 33}
	for i, v := range obs["N1"] {
		if v != want[i] {
			t.Errorf("observed[%d] = %g, want %g", i, v, want[i])
		}
	}

	// The untargeted sensor is untouched.
	obs2, err := d.Pressures("N2")
	if err != nil {
		t.Fatalf("Pressures(N2): %v", err)
	}
	for i, v := range obs2["N2"] {
		if v != 40+float64(i) {
			t.Errorf("N2 observed[%d] = %g, want %g", i, v, 40+float64(i))
		}
	}
}

func TestOverlappingEventsOverwriteFromRaw(t *testing.T) {
	shift, err := NewConstantFault("N1", KindPressure, 0, 300, 5)
	if err != nil {
		t.Fatalf("NewConstantFault: %v", err)
	}
	scale, err := NewPercentageFault("N1", KindPressure, 100, 200, 2)
	if err != nil {
		t.Fatalf("NewPercentageFault: %v", err)
	}
	d := NewData(testSensors(), []Event{shift, scale}, nil)
	fillFrames(t, d,
		frameAt(0, 10, 0, 0),
		frameAt(100, 11, 0, 0),
		frameAt(200, 12, 0, 0),
		frameAt(300, 13, 0, 0),
	)

	obs, err := d.Pressures("N1")
	if err != nil {
		t.Fatalf("Pressures: %v", err)
	}
	// The later event overwrites the earlier one inside its window,
	// computed from the pristine raw series, not from the shifted values.
	want := []float64{15, 22, 24, 18}
	for i, v := range obs["N1"] {
		if v != want[i] {
			t.Errorf("observed[%d] = %g, want %g", i, v, want[i])
		}
	}
}

func TestSeededNoiseIsRepeatableAndPerSensor(t *testing.T) {
	noise := &Noise{StdDev: 0.5, Seed: 9}
	d := NewData(testSensors(), nil, noise)
	fillFrames(t, d, frameAt(0, 30, 40, 5), frameAt(100, 30, 40, 5))

	first, err := d.Pressures()
	if err != nil {
		t.Fatalf("Pressures: %v", err)
	}
	second, err := d.Pressures()
	if err != nil {
		t.Fatalf("Pressures: %v", err)
	}
	for _, n := range []string{"N1", "N2"} {
		for i := range first[n] {
			if first[n][i] != second[n][i] {
				t.Errorf("%s noise not repeatable at idx %d", n, i)
			}
		}
	}

	// A subset query draws the same stream as the full query.
	only, err := d.Pressures("N2")
	if err != nil {
		t.Fatalf("Pressures(N2): %v", err)
	}
	for i := range only["N2"] {
		if only["N2"][i] != first["N2"][i] {
			t.Errorf("subset query diverged at idx %d", i)
		}
	}

	// Readings are perturbed, not passed through.
	if first["N1"][0] == 30 && first["N1"][1] == 30 {
		t.Errorf("noise apparently not applied")
	}
}

func TestObservedRejectsUnknownSensor(t *testing.T) {
	d := NewData(testSensors(), nil, nil)
	if _, err := d.Pressures("bogus"); !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("error = %v, want ErrUnknownSensor", err)
	}
	if _, err := d.Observed(KindTankLevel, "N1"); !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("wrong-kind query: error = %v, want ErrUnknownSensor", err)
	}
}

func TestJoinLaws(t *testing.T) {
	ev, err := NewConstantFault("N1", KindPressure, 0, 1000, 1)
	if err != nil {
		t.Fatalf("NewConstantFault: %v", err)
	}
	noise := &Noise{StdDev: 0.1, Seed: 4}

	a := NewData(testSensors(), []Event{ev}, noise)
	b := NewData(testSensors(), []Event{ev}, noise)
	fillFrames(t, a, frameAt(0, 30, 40, 5), frameAt(100, 31, 41, 5))
	fillFrames(t, b, frameAt(200, 32, 42, 5), frameAt(300, 33, 43, 5))

	if err := a.Join(b); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if a.Len() != 4 {
		t.Errorf("joined Len = %d, want 4", a.Len())
	}
	raw, err := a.RawSeries(KindPressure, "N1")
	if err != nil {
		t.Fatalf("RawSeries: %v", err)
	}
	for i, want := range []float64{30, 31, 32, 33} {
		if raw[i] != want {
			t.Errorf("joined raw[%d] = %g, want %g", i, raw[i], want)
		}
	}

	// Joining backwards violates time ordering.
	c := NewData(testSensors(), []Event{ev}, noise)
	fillFrames(t, c, frameAt(50, 0, 0, 0))
	if err := a.Join(c); !errors.Is(err, ErrJoinOutOfOrder) {
		t.Errorf("error = %v, want ErrJoinOutOfOrder", err)
	}

	// Different sensors are incompatible.
	other := NewData(SensorConfig{PressureNodes: []string{"N1"}}, []Event{ev}, noise)
	if err := a.Join(other); !errors.Is(err, ErrJoinMismatch) {
		t.Errorf("error = %v, want ErrJoinMismatch", err)
	}

	// Different event lists are incompatible.
	plain := NewData(testSensors(), nil, noise)
	if err := a.Join(plain); !errors.Is(err, ErrJoinMismatch) {
		t.Errorf("error = %v, want ErrJoinMismatch", err)
	}

	// Different noise specs are incompatible.
	quiet := NewData(testSensors(), []Event{ev}, nil)
	if err := a.Join(quiet); !errors.Is(err, ErrJoinMismatch) {
		t.Errorf("error = %v, want ErrJoinMismatch", err)
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	ev, err := NewReplayAttack("N1", KindPressure, 200, 300, 0, 100)
	if err != nil {
		t.Fatalf("NewReplayAttack: %v", err)
	}
	noise := &Noise{StdDev: 0.2, Seed: 21}

	d := NewData(testSensors(), []Event{ev}, noise)
	fillFrames(t, d,
		frameAt(0, 30, 40, 5),
		frameAt(100, 31, 41, 6),
		frameAt(200, 32, 42, 7),
		frameAt(300, 33, 43, 8),
	)

	var buf bytes.Buffer
	if err := Dump(&buf, d); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	restored, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !d.Equal(restored) {
		t.Fatalf("restored container differs from original")
	}

	want, err := d.Pressures("N1")
	if err != nil {
		t.Fatalf("Pressures: %v", err)
	}
	got, err := restored.Pressures("N1")
	if err != nil {
		t.Fatalf("restored Pressures: %v", err)
	}
	for i := range want["N1"] {
		if want["N1"][i] != got["N1"][i] {
			t.Errorf("observed[%d] differs after round-trip: %g vs %g", i, want["N1"][i], got["N1"][i])
		}
	}
}
