package scada

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

var (
	ErrJoinMismatch   = errors.New("scada data fragments are not compatible")
	ErrJoinOutOfOrder = errors.New("scada data fragments out of time order")
	ErrUnknownSensor  = errors.New("location is not an instrumented sensor")
	ErrNoSuchSeries   = errors.New("no raw series recorded")
)

// Frame is one sub-step's raw signal snapshot, keyed by kind and element
// ID. The execution engine assembles one Frame per solver sub-step.
type Frame struct {
	Time   int64
	Values map[Kind]map[string]float64
}

// Data holds the raw per-step signal arrays for a run (or a fragment of
// one), the sensor configuration, the sensor-reading events, and the
// noise spec. Observed readings are derived lazily on request; raw
// storage is never rewritten by faults or noise, so fragments can be
// joined and re-observed consistently.
type Data struct {
	sensors SensorConfig
	times   []int64
	raw     map[Kind]map[string][]float64
	events  []Event
	noise   *Noise
}

// NewData creates an empty container for the given sensor configuration,
// applicable sensor-reading events, and optional noise spec. The event
// list and noise spec are fixed for the container's lifetime; fragments
// produced for the same run share them, which is what makes Join legal.
func NewData(sensors SensorConfig, events []Event, noise *Noise) *Data {
	d := &Data{
		sensors: sensors,
		raw:     make(map[Kind]map[string][]float64),
		events:  slices.Clone(events),
		noise:   noise,
	}
	for _, kind := range Kinds {
		series := make(map[string][]float64)
		for _, loc := range sensors.Locations(kind) {
			series[loc] = nil
		}
		d.raw[kind] = series
	}
	return d
}

// Sensors returns the sensor configuration.
func (d *Data) Sensors() SensorConfig { return d.sensors }

// Times returns the elapsed-time axis, one entry per reported index.
func (d *Data) Times() []int64 { return slices.Clone(d.times) }

// Len returns the number of reported indices stored.
func (d *Data) Len() int { return len(d.times) }

// Events returns the applicable sensor-reading events.
func (d *Data) Events() []Event { return slices.Clone(d.events) }

// NoiseSpec returns the noise spec, or nil.
func (d *Data) NoiseSpec() *Noise { return d.noise }

// Append records one frame at the end of the time axis. The frame must
// carry a value for every configured sensor and must be strictly later
// than the last recorded index.
func (d *Data) Append(f Frame) error {
	if n := len(d.times); n > 0 && f.Time <= d.times[n-1] {
		return fmt.Errorf("%w: frame at t=%d after t=%d", ErrJoinOutOfOrder, f.Time, d.times[len(d.times)-1])
	}
	for _, kind := range Kinds {
		for _, loc := range d.sensors.Locations(kind) {
			v, ok := f.Values[kind][loc]
			if !ok {
				return fmt.Errorf("frame at t=%d missing %s value for %q", f.Time, kind, loc)
			}
			d.raw[kind][loc] = append(d.raw[kind][loc], v)
		}
	}
	d.times = append(d.times, f.Time)
	return nil
}

// Join appends other's readings after d's, in place. Both fragments must
// share the same sensor configuration, event list, and noise spec, and
// other must start strictly after d ends.
func (d *Data) Join(other *Data) error {
	if other == nil {
		return fmt.Errorf("%w: nil fragment", ErrJoinMismatch)
	}
	if !d.sensors.Equal(other.sensors) {
		return fmt.Errorf("%w: sensor configurations differ", ErrJoinMismatch)
	}
	if !eventsEqual(d.events, other.events) {
		return fmt.Errorf("%w: event lists differ", ErrJoinMismatch)
	}
	if !d.noise.Equal(other.noise) {
		return fmt.Errorf("%w: noise specs differ", ErrJoinMismatch)
	}
	if len(other.times) == 0 {
		return nil
	}
	if len(d.times) > 0 && other.times[0] <= d.times[len(d.times)-1] {
		return fmt.Errorf("%w: fragment starts at t=%d, have data through t=%d",
			ErrJoinOutOfOrder, other.times[0], d.times[len(d.times)-1])
	}

	d.times = append(d.times, other.times...)
	for _, kind := range Kinds {
		for _, loc := range d.sensors.Locations(kind) {
			d.raw[kind][loc] = append(d.raw[kind][loc], other.raw[kind][loc]...)
		}
	}
	return nil
}

// RawSeries returns a copy of the stored (noise- and fault-free) series
// for one sensor.
func (d *Data) RawSeries(kind Kind, location string) ([]float64, error) {
	series, ok := d.raw[kind][location]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNoSuchSeries, kind, location)
	}
	return slices.Clone(series), nil
}

//
// ---------- Lazy observation ----------
//

// Observed derives the observed series for the requested sensor subset
// (default: every configured sensor of the kind). Per location the
// computation is: copy the raw series, overwrite each matching event's
// window with the event's transform of the raw series (registration
// order, later windows overwrite earlier ones), then layer noise on top.
// Raw storage is never modified.
func (d *Data) Observed(kind Kind, locations ...string) (map[string][]float64, error) {
	if len(locations) == 0 {
		locations = d.sensors.Locations(kind)
	}
	out := make(map[string][]float64, len(locations))
	for _, loc := range locations {
		if !d.sensors.Has(kind, loc) {
			return nil, fmt.Errorf("%w: %s %q", ErrUnknownSensor, kind, loc)
		}
		raw := d.raw[kind][loc]
		series := slices.Clone(raw)
		for _, ev := range d.events {
			if ev.Kind() != kind || ev.SensorID() != loc {
				continue
			}
			start, end := ev.Window()
			for i, t := range d.times {
				if t >= start && t <= end {
					series[i] = ev.Transform(raw, d.times, i)
				}
			}
		}
		d.noise.perturb(kind, loc, series)
		out[loc] = series
	}
	return out, nil
}

// Typed observation getters, one per signal kind.

func (d *Data) Pressures(nodes ...string) (map[string][]float64, error) {
	return d.Observed(KindPressure, nodes...)
}

func (d *Data) Flows(links ...string) (map[string][]float64, error) {
	return d.Observed(KindFlow, links...)
}

func (d *Data) Demands(nodes ...string) (map[string][]float64, error) {
	return d.Observed(KindDemand, nodes...)
}

func (d *Data) NodeQualities(nodes ...string) (map[string][]float64, error) {
	return d.Observed(KindNodeQuality, nodes...)
}

func (d *Data) LinkQualities(links ...string) (map[string][]float64, error) {
	return d.Observed(KindLinkQuality, links...)
}

func (d *Data) PumpStates(pumps ...string) (map[string][]float64, error) {
	return d.Observed(KindPumpState, pumps...)
}

func (d *Data) ValveStates(valves ...string) (map[string][]float64, error) {
	return d.Observed(KindValveState, valves...)
}

func (d *Data) TankLevels(tanks ...string) (map[string][]float64, error) {
	return d.Observed(KindTankLevel, tanks...)
}

func (d *Data) BulkSpecies(nodes ...string) (map[string][]float64, error) {
	return d.Observed(KindBulkSpecies, nodes...)
}

func (d *Data) SurfaceSpecies(links ...string) (map[string][]float64, error) {
	return d.Observed(KindSurfaceSpecies, links...)
}

//
// ---------- Equality & serialization ----------
//

// Equal compares the full internal state: sensor configuration, time
// axis, raw arrays, event list, and noise spec. Derived (observed)
// readings are not consulted.
func (d *Data) Equal(o *Data) bool {
	if d == nil || o == nil {
		return d == o
	}
	if !d.sensors.Equal(o.sensors) || !slices.Equal(d.times, o.times) {
		return false
	}
	if !eventsEqual(d.events, o.events) || !d.noise.Equal(o.noise) {
		return false
	}
	for _, kind := range Kinds {
		for _, loc := range d.sensors.Locations(kind) {
			if !slices.Equal(d.raw[kind][loc], o.raw[kind][loc]) {
				return false
			}
		}
	}
	return true
}

type dataWire struct {
	Sensors SensorConfig                  `json:"sensors"`
	Times   []int64                       `json:"times"`
	Raw     map[Kind]map[string][]float64 `json:"raw"`
	Events  []eventWire                   `json:"events,omitempty"`
	Noise   *Noise                        `json:"noise,omitempty"`
}

// MarshalJSON persists the full internal state, sufficient to
// reconstruct identical observed output after a round-trip.
func (d *Data) MarshalJSON() ([]byte, error) {
	wire := dataWire{
		Sensors: d.sensors,
		Times:   d.times,
		Raw:     d.raw,
		Noise:   d.noise,
	}
	for _, ev := range d.events {
		wire.Events = append(wire.Events, ev.spec().toWire())
	}
	return json.Marshal(wire)
}

func (d *Data) UnmarshalJSON(b []byte) error {
	var wire dataWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	restored := NewData(wire.Sensors, nil, wire.Noise)
	restored.times = wire.Times
	for _, kind := range Kinds {
		for _, loc := range wire.Sensors.Locations(kind) {
			restored.raw[kind][loc] = wire.Raw[kind][loc]
		}
	}
	for _, w := range wire.Events {
		ev, err := decodeEvent(w)
		if err != nil {
			return fmt.Errorf("scada data: %w", err)
		}
		restored.events = append(restored.events, ev)
	}

	*d = *restored
	return nil
}

// Dump writes the container to w as JSON.
func Dump(w io.Writer, d *Data) error {
	enc := json.NewEncoder(w)
	return enc.Encode(d)
}

// Load reads a container previously written by Dump.
func Load(r io.Reader) (*Data, error) {
	var d Data
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("scada data: decode failed: %w", err)
	}
	return &d, nil
}
