package scada

import (
	"errors"
	"testing"
)

func TestWindowValidation(t *testing.T) {
	if _, err := NewConstantFault("", KindPressure, 0, 10, 1); !errors.Is(err, ErrEventTarget) {
		t.Errorf("empty sensor id: error = %v, want ErrEventTarget", err)
	}
	if _, err := NewConstantFault("N1", KindPressure, 10, 10, 1); !errors.Is(err, ErrEventWindow) {
		t.Errorf("start == end: error = %v, want ErrEventWindow", err)
	}
	if _, err := NewConstantFault("N1", KindPressure, 20, 10, 1); !errors.Is(err, ErrEventWindow) {
		t.Errorf("start > end: error = %v, want ErrEventWindow", err)
	}
}

func TestConstantFaultTransform(t *testing.T) {
	ev, err := NewConstantFault("N1", KindPressure, 10, 30, 2.5)
	if err != nil {
		t.Fatalf("NewConstantFault: %v", err)
	}
	raw := []float64{10, 11, 12}
	times := []int64{0, 10, 20}
	if got := ev.Transform(raw, times, 1); got != 13.5 {
		t.Errorf("Transform = %g, want 13.5", got)
	}
}

func TestDriftFaultGrowsWithElapsedTime(t *testing.T) {
	ev, err := NewDriftFault("N1", KindPressure, 100, 300, 0.01)
	if err != nil {
		t.Fatalf("NewDriftFault: %v", err)
	}
	raw := []float64{10, 10, 10}
	times := []int64{100, 200, 300}

	if got := ev.Transform(raw, times, 0); got != 10 {
		t.Errorf("at fault start: %g, want 10", got)
	}
	if got := ev.Transform(raw, times, 1); got != 10*(1+0.01*100) {
		t.Errorf("100s in: %g, want %g", got, 10*(1+0.01*100))
	}
	if got := ev.Transform(raw, times, 2); got != 10*(1+0.01*200) {
		t.Errorf("200s in: %g, want %g", got, 10*(1+0.01*200))
	}
}

func TestPercentageAndStuckZero(t *testing.T) {
	raw := []float64{40}
	times := []int64{0}

	pct, err := NewPercentageFault("N1", KindPressure, 0, 10, 0.5)
	if err != nil {
		t.Fatalf("NewPercentageFault: %v", err)
	}
	if got := pct.Transform(raw, times, 0); got != 20 {
		t.Errorf("percentage Transform = %g, want 20", got)
	}

	stuck, err := NewStuckZeroFault("N1", KindPressure, 0, 10)
	if err != nil {
		t.Fatalf("NewStuckZeroFault: %v", err)
	}
	if got := stuck.Transform(raw, times, 0); got != 0 {
		t.Errorf("stuck-zero Transform = %g, want 0", got)
	}
}

func TestGaussianFaultSeededReproducibility(t *testing.T) {
	ev, err := NewGaussianFault("N1", KindPressure, 0, 100, 1.0)
	if err != nil {
		t.Fatalf("NewGaussianFault: %v", err)
	}
	ev.Seed = 7

	raw := []float64{10, 10, 10}
	times := []int64{0, 50, 100}

	a := ev.Transform(raw, times, 1)
	b := ev.Transform(raw, times, 1)
	if a != b {
		t.Errorf("seeded draws differ between reads: %g vs %g", a, b)
	}
	if ev.Transform(raw, times, 0) == ev.Transform(raw, times, 1) {
		t.Errorf("expected independent draws per index")
	}
}

func TestReplayAttackValidation(t *testing.T) {
	if _, err := NewReplayAttack("N1", KindPressure, 100, 200, 50, 40); !errors.Is(err, ErrEventWindow) {
		t.Errorf("inverted source: error = %v, want ErrEventWindow", err)
	}
	if _, err := NewReplayAttack("N1", KindPressure, 100, 200, 50, 150); !errors.Is(err, ErrEventWindow) {
		t.Errorf("source overlapping attack: error = %v, want ErrEventWindow", err)
	}
}

func TestReplayAttackRepeatsRecording(t *testing.T) {
	// Source window covers indices 0-1, attack window indices 3-6.
	ev, err := NewReplayAttack("N1", KindPressure, 30, 60, 0, 10)
	if err != nil {
		t.Fatalf("NewReplayAttack: %v", err)
	}
	raw := []float64{1, 2, 3, 4, 5, 6, 7}
	times := []int64{0, 10, 20, 30, 40, 50, 60}

	want := []float64{1, 2, 1, 2} // cyclic repeat of the recording
	for i := 0; i < 4; i++ {
		if got := ev.Transform(raw, times, 3+i); got != want[i] {
			t.Errorf("replay at idx %d = %g, want %g", 3+i, got, want[i])
		}
	}
}

func TestOverrideAttackHoldsLastValue(t *testing.T) {
	ev, err := NewOverrideAttack("N1", KindPressure, 20, 50, []float64{100, 200})
	if err != nil {
		t.Fatalf("NewOverrideAttack: %v", err)
	}
	raw := []float64{1, 2, 3, 4, 5, 6}
	times := []int64{0, 10, 20, 30, 40, 50}

	want := []float64{100, 200, 200, 200}
	for i := 0; i < 4; i++ {
		if got := ev.Transform(raw, times, 2+i); got != want[i] {
			t.Errorf("override at idx %d = %g, want %g", 2+i, got, want[i])
		}
	}
}

func TestDecodeEventRejectsUnknownType(t *testing.T) {
	_, err := decodeEvent(eventWire{Type: "fault_mystery", windowJSON: windowJSON{
		SensorID: "N1", Kind: KindPressure, Start: 0, End: 10,
	}})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("error = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeEventRevalidatesWindow(t *testing.T) {
	_, err := decodeEvent(eventWire{Type: "fault_constant", windowJSON: windowJSON{
		SensorID: "N1", Kind: KindPressure, Start: 50, End: 10,
	}})
	if !errors.Is(err, ErrEventWindow) {
		t.Errorf("error = %v, want ErrEventWindow", err)
	}
}
