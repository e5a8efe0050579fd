package scada

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	ErrEventWindow  = errors.New("invalid event window")
	ErrEventTarget  = errors.New("invalid event target")
	ErrUnknownEvent = errors.New("unknown sensor event type")
)

// Event corrupts the observed reading of a single sensor inside a time
// window. It is a pure function of the raw series: it never touches the
// solver, and it is evaluated lazily when observed readings are
// requested.
//
// Transform receives the pristine raw series for the sensor, the elapsed
// time axis, and the index being observed; it returns the corrupted
// value. The observation layer only calls Transform for indices whose
// time falls inside [start, end].
type Event interface {
	SensorID() string
	Kind() Kind
	Window() (start, end int64)
	Transform(raw []float64, times []int64, idx int) float64

	// spec returns the serializable description of the event. Keeping it
	// unexported closes the variant set, so serialized artifacts can
	// always be decoded back.
	spec() eventJSON
}

// window carries the fields common to every sensor event.
type window struct {
	sensorID string
	kind     Kind
	start    int64
	end      int64
}

func newWindow(sensorID string, kind Kind, start, end int64) (window, error) {
	if sensorID == "" {
		return window{}, fmt.Errorf("%w: empty sensor id", ErrEventTarget)
	}
	if start >= end {
		return window{}, fmt.Errorf("%w: start %d >= end %d", ErrEventWindow, start, end)
	}
	return window{sensorID: sensorID, kind: kind, start: start, end: end}, nil
}

func (w window) SensorID() string            { return w.sensorID }
func (w window) Kind() Kind                  { return w.kind }
func (w window) Window() (int64, int64)      { return w.start, w.end }
func (w window) covers(t int64) bool         { return t >= w.start && t <= w.end }
func (w window) firstCovered(ts []int64) int {
	for i, t := range ts {
		if w.covers(t) {
			return i
		}
	}
	return -1
}

//
// ---------- Sensor faults ----------
//

// ConstantFault adds a fixed shift to every in-window reading.
type ConstantFault struct {
	window
	Shift float64
}

func NewConstantFault(sensorID string, kind Kind, start, end int64, shift float64) (*ConstantFault, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	return &ConstantFault{window: w, Shift: shift}, nil
}

func (e *ConstantFault) Transform(raw []float64, times []int64, idx int) float64 {
	return raw[idx] + e.Shift
}

func (e *ConstantFault) spec() eventJSON {
	return eventJSON{Type: "fault_constant", window: e.window, Shift: e.Shift}
}

// DriftFault multiplies the reading by a factor that grows linearly with
// the time elapsed since the fault began.
type DriftFault struct {
	window
	Coefficient float64 // growth per second
}

func NewDriftFault(sensorID string, kind Kind, start, end int64, coefficient float64) (*DriftFault, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	return &DriftFault{window: w, Coefficient: coefficient}, nil
}

func (e *DriftFault) Transform(raw []float64, times []int64, idx int) float64 {
	elapsed := float64(times[idx] - e.start)
	return raw[idx] * (1 + e.Coefficient*elapsed)
}

func (e *DriftFault) spec() eventJSON {
	return eventJSON{Type: "fault_drift", window: e.window, Coefficient: e.Coefficient}
}

// GaussianFault adds a zero-mean normal draw to every in-window reading.
// Draws are independent per time index; with Fresh unset they are seeded
// and reproduce on repeated reads.
type GaussianFault struct {
	window
	StdDev float64
	Seed   uint64
	Fresh  bool
}

func NewGaussianFault(sensorID string, kind Kind, start, end int64, stdDev float64) (*GaussianFault, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	if stdDev < 0 {
		return nil, fmt.Errorf("gaussian fault: negative std dev %g", stdDev)
	}
	return &GaussianFault{window: w, StdDev: stdDev}, nil
}

func (e *GaussianFault) Transform(raw []float64, times []int64, idx int) float64 {
	seed := e.Seed
	if e.Fresh {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, uint64(idx)+1))
	return raw[idx] + rng.NormFloat64()*e.StdDev
}

func (e *GaussianFault) spec() eventJSON {
	return eventJSON{Type: "fault_gaussian", window: e.window, StdDev: e.StdDev, Seed: e.Seed, Fresh: e.Fresh}
}

// PercentageFault scales every in-window reading by a fixed factor.
type PercentageFault struct {
	window
	Scale float64
}

func NewPercentageFault(sensorID string, kind Kind, start, end int64, scale float64) (*PercentageFault, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	return &PercentageFault{window: w, Scale: scale}, nil
}

func (e *PercentageFault) Transform(raw []float64, times []int64, idx int) float64 {
	return raw[idx] * e.Scale
}

func (e *PercentageFault) spec() eventJSON {
	return eventJSON{Type: "fault_percentage", window: e.window, Scale: e.Scale}
}

// StuckZeroFault reports zero regardless of the raw value.
type StuckZeroFault struct {
	window
}

func NewStuckZeroFault(sensorID string, kind Kind, start, end int64) (*StuckZeroFault, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	return &StuckZeroFault{window: w}, nil
}

func (e *StuckZeroFault) Transform(raw []float64, times []int64, idx int) float64 {
	return 0
}

func (e *StuckZeroFault) spec() eventJSON {
	return eventJSON{Type: "fault_stuck_zero", window: e.window}
}

//
// ---------- Sensor attacks ----------
//

// ReplayAttack substitutes values copied from an earlier window of the
// same raw series. When the attack window is longer than the source
// window the recording repeats cyclically.
type ReplayAttack struct {
	window
	ReplayStart int64
	ReplayEnd   int64
}

func NewReplayAttack(sensorID string, kind Kind, start, end, replayStart, replayEnd int64) (*ReplayAttack, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	if replayStart >= replayEnd {
		return nil, fmt.Errorf("%w: replay source start %d >= end %d", ErrEventWindow, replayStart, replayEnd)
	}
	if replayEnd > start {
		return nil, fmt.Errorf("%w: replay source [%d,%d] must precede attack window starting at %d",
			ErrEventWindow, replayStart, replayEnd, start)
	}
	return &ReplayAttack{window: w, ReplayStart: replayStart, ReplayEnd: replayEnd}, nil
}

func (e *ReplayAttack) Transform(raw []float64, times []int64, idx int) float64 {
	var src []int
	for i, t := range times {
		if t >= e.ReplayStart && t <= e.ReplayEnd {
			src = append(src, i)
		}
	}
	if len(src) == 0 {
		return raw[idx]
	}
	first := e.firstCovered(times)
	if first < 0 || idx < first {
		return raw[idx]
	}
	return raw[src[(idx-first)%len(src)]]
}

func (e *ReplayAttack) spec() eventJSON {
	return eventJSON{Type: "attack_replay", window: e.window, ReplayStart: e.ReplayStart, ReplayEnd: e.ReplayEnd}
}

// OverrideAttack substitutes caller-supplied literal values, one per
// reported index in the attack window. If the window outlives the
// supplied array the last value holds.
type OverrideAttack struct {
	window
	Values []float64
}

func NewOverrideAttack(sensorID string, kind Kind, start, end int64, values []float64) (*OverrideAttack, error) {
	w, err := newWindow(sensorID, kind, start, end)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("override attack: no values supplied")
	}
	return &OverrideAttack{window: w, Values: values}, nil
}

func (e *OverrideAttack) Transform(raw []float64, times []int64, idx int) float64 {
	first := e.firstCovered(times)
	if first < 0 || idx < first {
		return raw[idx]
	}
	i := idx - first
	if i >= len(e.Values) {
		i = len(e.Values) - 1
	}
	return e.Values[i]
}

func (e *OverrideAttack) spec() eventJSON {
	return eventJSON{Type: "attack_override", window: e.window, Values: e.Values}
}

//
// ---------- Serialization ----------
//

// eventJSON is the tagged wire form shared by every event variant.
type eventJSON struct {
	Type string `json:"type"`
	window

	Shift       float64   `json:"shift,omitempty"`
	Coefficient float64   `json:"coefficient,omitempty"`
	StdDev      float64   `json:"std_dev,omitempty"`
	Seed        uint64    `json:"seed,omitempty"`
	Fresh       bool      `json:"fresh,omitempty"`
	Scale       float64   `json:"scale,omitempty"`
	ReplayStart int64     `json:"replay_start,omitempty"`
	ReplayEnd   int64     `json:"replay_end,omitempty"`
	Values      []float64 `json:"values,omitempty"`
}

// windowJSON mirrors the embedded window fields for encoding/json, which
// cannot see unexported embedded fields.
type windowJSON struct {
	SensorID string `json:"sensor_id"`
	Kind     Kind   `json:"sensor_type"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

func (e eventJSON) toWire() eventWire {
	return eventWire{
		Type: e.Type,
		windowJSON: windowJSON{
			SensorID: e.sensorID,
			Kind:     e.kind,
			Start:    e.start,
			End:      e.end,
		},
		Shift:       e.Shift,
		Coefficient: e.Coefficient,
		StdDev:      e.StdDev,
		Seed:        e.Seed,
		Fresh:       e.Fresh,
		Scale:       e.Scale,
		ReplayStart: e.ReplayStart,
		ReplayEnd:   e.ReplayEnd,
		Values:      e.Values,
	}
}

type eventWire struct {
	Type string `json:"type"`
	windowJSON

	Shift       float64   `json:"shift,omitempty"`
	Coefficient float64   `json:"coefficient,omitempty"`
	StdDev      float64   `json:"std_dev,omitempty"`
	Seed        uint64    `json:"seed,omitempty"`
	Fresh       bool      `json:"fresh,omitempty"`
	Scale       float64   `json:"scale,omitempty"`
	ReplayStart int64     `json:"replay_start,omitempty"`
	ReplayEnd   int64     `json:"replay_end,omitempty"`
	Values      []float64 `json:"values,omitempty"`
}

// decodeEvent reconstructs an Event from its wire form, re-running the
// construction-time validation so a hand-edited artifact cannot smuggle
// in a malformed window.
func decodeEvent(w eventWire) (Event, error) {
	id, kind, start, end := w.SensorID, w.Kind, w.Start, w.End
	switch w.Type {
	case "fault_constant":
		return NewConstantFault(id, kind, start, end, w.Shift)
	case "fault_drift":
		return NewDriftFault(id, kind, start, end, w.Coefficient)
	case "fault_gaussian":
		ev, err := NewGaussianFault(id, kind, start, end, w.StdDev)
		if err != nil {
			return nil, err
		}
		ev.Seed = w.Seed
		ev.Fresh = w.Fresh
		return ev, nil
	case "fault_percentage":
		return NewPercentageFault(id, kind, start, end, w.Scale)
	case "fault_stuck_zero":
		return NewStuckZeroFault(id, kind, start, end)
	case "attack_replay":
		return NewReplayAttack(id, kind, start, end, w.ReplayStart, w.ReplayEnd)
	case "attack_override":
		return NewOverrideAttack(id, kind, start, end, w.Values)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, w.Type)
	}
}

// eventsEqual compares two event lists via their wire forms, ignoring
// in-memory details like RNG state.
func eventsEqual(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !wireEqual(a[i].spec().toWire(), b[i].spec().toWire()) {
			return false
		}
	}
	return true
}

func wireEqual(a, b eventWire) bool {
	if a.Type != b.Type || a.windowJSON != b.windowJSON {
		return false
	}
	if a.Shift != b.Shift || a.Coefficient != b.Coefficient || a.StdDev != b.StdDev ||
		a.Seed != b.Seed || a.Fresh != b.Fresh || a.Scale != b.Scale ||
		a.ReplayStart != b.ReplayStart || a.ReplayEnd != b.ReplayEnd {
		return false
	}
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}
