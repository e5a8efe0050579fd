package core

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEventWindow = errors.New("invalid event window")
	ErrEventTarget = errors.New("invalid event target")
)

// SystemEvent is a scripted perturbation of the simulated network's
// physical ground truth. The engine calls Apply at every aligned
// reporting boundary; the event itself enforces its window, so calls
// before start_time never perturb state, and the first call past
// end_time restores whatever the event perturbed (where restoration is
// meaningful) after which further calls are no-ops.
type SystemEvent interface {
	// Init binds the event to the solver's mutation surface. Called
	// exactly once, before stepping begins.
	Init(s EventSurface) error

	// Apply is invoked with the current aligned simulation time.
	Apply(now int64) error

	Window() (start, end int64)
}

// eventWindow carries the validated time window shared by system events.
type eventWindow struct {
	start int64
	end   int64
}

func newEventWindow(start, end int64) (eventWindow, error) {
	if start >= end {
		return eventWindow{}, fmt.Errorf("%w: start %d >= end %d", ErrEventWindow, start, end)
	}
	return eventWindow{start: start, end: end}, nil
}

func (w eventWindow) Window() (int64, int64) { return w.start, w.end }

// Leak discharge model: the emitter coefficient for a circular hole of
// the given diameter, with a fixed discharge coefficient.
const (
	leakDischargeCoeff = 0.75
	gravity            = 9.81
)

func leakCoefficient(diameter float64) float64 {
	area := math.Pi * (diameter / 2) * (diameter / 2)
	return leakDischargeCoeff * area * math.Sqrt(2*gravity)
}

//
// ---------- Leakages ----------
//

// leakBase holds the shared leak mechanics: where the hole is, how big
// it is, and the bound solver surface.
type leakBase struct {
	eventWindow
	ElementID string
	Diameter  float64

	surface EventSurface
	active  bool
}

func (l *leakBase) Init(s EventSurface) error {
	if s == nil {
		return fmt.Errorf("leak on %q: nil solver surface", l.ElementID)
	}
	l.surface = s
	return nil
}

// applyCoefficient drives the emitter according to the window rule:
// scale is the fraction of the full leak coefficient currently open.
func (l *leakBase) applyCoefficient(now int64, scale float64) error {
	switch {
	case now < l.start:
		return nil
	case now > l.end:
		if !l.active {
			return nil
		}
		l.active = false
		return l.surface.SetEmitterCoefficient(l.ElementID, 0)
	default:
		l.active = true
		return l.surface.SetEmitterCoefficient(l.ElementID, leakCoefficient(l.Diameter)*scale)
	}
}

// AbruptLeakage opens a hole to its full size at start_time and seals it
// at end_time: a step function.
type AbruptLeakage struct {
	leakBase
}

func NewAbruptLeakage(elementID string, diameter float64, start, end int64) (*AbruptLeakage, error) {
	w, err := newEventWindow(start, end)
	if err != nil {
		return nil, err
	}
	if elementID == "" {
		return nil, fmt.Errorf("%w: empty element id", ErrEventTarget)
	}
	if diameter <= 0 {
		return nil, fmt.Errorf("%w: leak diameter must be positive, got %g", ErrEventTarget, diameter)
	}
	return &AbruptLeakage{leakBase{eventWindow: w, ElementID: elementID, Diameter: diameter}}, nil
}

func (l *AbruptLeakage) Apply(now int64) error {
	return l.applyCoefficient(now, 1)
}

// IncipientLeakage grows linearly from nothing at start_time to its full
// size at peak_time, then holds until end_time.
type IncipientLeakage struct {
	leakBase
	PeakTime int64
}

func NewIncipientLeakage(elementID string, diameter float64, start, peak, end int64) (*IncipientLeakage, error) {
	w, err := newEventWindow(start, end)
	if err != nil {
		return nil, err
	}
	if elementID == "" {
		return nil, fmt.Errorf("%w: empty element id", ErrEventTarget)
	}
	if diameter <= 0 {
		return nil, fmt.Errorf("%w: leak diameter must be positive, got %g", ErrEventTarget, diameter)
	}
	if peak < start || peak > end {
		return nil, fmt.Errorf("%w: peak %d outside [%d, %d]", ErrEventWindow, peak, start, end)
	}
	return &IncipientLeakage{
		leakBase: leakBase{eventWindow: w, ElementID: elementID, Diameter: diameter},
		PeakTime: peak,
	}, nil
}

func (l *IncipientLeakage) Apply(now int64) error {
	scale := 1.0
	if now >= l.start && now < l.PeakTime {
		scale = float64(now-l.start) / float64(l.PeakTime-l.start)
	}
	return l.applyCoefficient(now, scale)
}

// ProfileLeakage follows a caller-supplied opening profile: each entry
// is a fraction of the full coefficient, spread evenly across the
// window.
type ProfileLeakage struct {
	leakBase
	Profile []float64
}

func NewProfileLeakage(elementID string, diameter float64, start, end int64, profile []float64) (*ProfileLeakage, error) {
	w, err := newEventWindow(start, end)
	if err != nil {
		return nil, err
	}
	if elementID == "" {
		return nil, fmt.Errorf("%w: empty element id", ErrEventTarget)
	}
	if diameter <= 0 {
		return nil, fmt.Errorf("%w: leak diameter must be positive, got %g", ErrEventTarget, diameter)
	}
	if len(profile) == 0 {
		return nil, fmt.Errorf("%w: empty leak profile", ErrEventTarget)
	}
	return &ProfileLeakage{
		leakBase: leakBase{eventWindow: w, ElementID: elementID, Diameter: diameter},
		Profile:  profile,
	}, nil
}

func (l *ProfileLeakage) Apply(now int64) error {
	scale := 1.0
	if now >= l.start && now <= l.end {
		frac := float64(now-l.start) / float64(l.end-l.start)
		i := int(frac * float64(len(l.Profile)-1))
		scale = l.Profile[i]
	}
	return l.applyCoefficient(now, scale)
}

//
// ---------- Actuator state events ----------
//

// ActuatorKind selects which actuator class an ActuatorStateEvent
// targets.
type ActuatorKind string

const (
	ActuatorPump  ActuatorKind = "pump"
	ActuatorValve ActuatorKind = "valve"
)

// ActuatorStateEvent forces a pump or valve into a state for the
// duration of its window. Actuators latch: the state is not restored at
// end_time, matching how a scripted operator intervention behaves.
type ActuatorStateEvent struct {
	eventWindow
	TargetID string
	Kind     ActuatorKind
	Open     bool
	Speed    float64 // pumps only; 0 leaves the speed untouched

	surface EventSurface
}

func NewActuatorStateEvent(targetID string, kind ActuatorKind, open bool, speed float64, start, end int64) (*ActuatorStateEvent, error) {
	w, err := newEventWindow(start, end)
	if err != nil {
		return nil, err
	}
	if targetID == "" {
		return nil, fmt.Errorf("%w: empty actuator id", ErrEventTarget)
	}
	if kind != ActuatorPump && kind != ActuatorValve {
		return nil, fmt.Errorf("%w: unknown actuator kind %q", ErrEventTarget, kind)
	}
	if speed < 0 {
		return nil, fmt.Errorf("%w: negative pump speed %g", ErrEventTarget, speed)
	}
	return &ActuatorStateEvent{
		eventWindow: w,
		TargetID:    targetID,
		Kind:        kind,
		Open:        open,
		Speed:       speed,
	}, nil
}

func (e *ActuatorStateEvent) Init(s EventSurface) error {
	if s == nil {
		return fmt.Errorf("actuator event on %q: nil solver surface", e.TargetID)
	}
	e.surface = s
	return nil
}

func (e *ActuatorStateEvent) Apply(now int64) error {
	if now < e.start || now > e.end {
		return nil
	}
	switch e.Kind {
	case ActuatorPump:
		if err := e.surface.SetPumpStatus(e.TargetID, e.Open); err != nil {
			return err
		}
		if e.Speed > 0 {
			return e.surface.SetPumpSpeed(e.TargetID, e.Speed)
		}
		return nil
	case ActuatorValve:
		return e.surface.SetValveStatus(e.TargetID, e.Open)
	default:
		return fmt.Errorf("%w: unknown actuator kind %q", ErrEventTarget, e.Kind)
	}
}

//
// ---------- Species injection ----------
//

// SpeciesInjectionEvent drives a quality-species source at a node for
// the duration of its window, removing the source afterwards.
type SpeciesInjectionEvent struct {
	eventWindow
	NodeID   string
	Species  string
	Strength float64

	surface EventSurface
	active  bool
}

func NewSpeciesInjectionEvent(nodeID, species string, strength float64, start, end int64) (*SpeciesInjectionEvent, error) {
	w, err := newEventWindow(start, end)
	if err != nil {
		return nil, err
	}
	if nodeID == "" || species == "" {
		return nil, fmt.Errorf("%w: species injection needs a node and a species", ErrEventTarget)
	}
	if strength < 0 {
		return nil, fmt.Errorf("%w: negative injection strength %g", ErrEventTarget, strength)
	}
	return &SpeciesInjectionEvent{
		eventWindow: w,
		NodeID:      nodeID,
		Species:     species,
		Strength:    strength,
	}, nil
}

func (e *SpeciesInjectionEvent) Init(s EventSurface) error {
	if s == nil {
		return fmt.Errorf("species injection at %q: nil solver surface", e.NodeID)
	}
	e.surface = s
	return nil
}

func (e *SpeciesInjectionEvent) Apply(now int64) error {
	switch {
	case now < e.start:
		return nil
	case now > e.end:
		if !e.active {
			return nil
		}
		e.active = false
		return e.surface.SetSpeciesInjection(e.NodeID, e.Species, 0)
	default:
		e.active = true
		return e.surface.SetSpeciesInjection(e.NodeID, e.Species, e.Strength)
	}
}
