// Package solver provides hydraulic solver backends for the scenario
// engine. Synthetic is a closed-form deterministic solver used for
// development, testing, and dataset pipelines that do not need a full
// hydraulic analysis; a cgo-backed EPANET adapter can implement the same
// interface.
package solver

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/hydrosignal/waternet-simulator/core"
	"github.com/hydrosignal/waternet-simulator/model"
	"github.com/hydrosignal/waternet-simulator/network"
	"github.com/hydrosignal/waternet-simulator/scada"
)

var (
	ErrClosed         = errors.New("solver is closed")
	ErrNotLoaded      = errors.New("no network loaded")
	ErrNotConfigured  = errors.New("solver not configured")
	ErrUnknownElement = errors.New("unknown network element")
	ErrBulkAfterStep  = errors.New("bulk solve after stepwise advance")
)

// patternStep is the fixed multiplier interval for demand patterns.
const patternStep int64 = 3600

// Synthetic computes network signals from a closed-form model: pressures
// follow a reference head minus elevation and demand loading, leaks
// depress heads proportionally to their emitter coefficients, and pumps
// add a speed-scaled boost. Every signal is a pure function of the
// elapsed time and the current mutable state, so a bulk solve and a
// stepwise run over an unperturbed network produce identical frames.
type Synthetic struct {
	// ReferenceHead is the hydraulic grade of the supply, in meters.
	ReferenceHead float64

	store      *network.Store
	params     core.GeneralParams
	configured bool
	closed     bool

	elapsed    int64
	stepsTaken int
	totalSteps int

	// mutable ground truth
	nodes      map[string]*nodeState
	links      map[string]*linkState
	emitters   map[string]float64
	injections map[string]map[string]float64 // node -> species -> strength
}

type nodeState struct {
	model.Node
	demandPattern []float64
	qualitySource float64
	hasQualitySrc bool
}

type linkState struct {
	model.Link
	open  bool
	speed float64
}

// NewSynthetic returns an unloaded solver with a 60 m reference head.
func NewSynthetic() *Synthetic {
	return &Synthetic{ReferenceHead: 60}
}

// ---------- Lifecycle ----------

func (s *Synthetic) Load(store *network.Store) error {
	if s.closed {
		return ErrClosed
	}
	if store == nil {
		return fmt.Errorf("%w: nil store", ErrNotLoaded)
	}

	s.store = store
	s.nodes = make(map[string]*nodeState)
	s.links = make(map[string]*linkState)
	s.emitters = make(map[string]float64)
	s.injections = make(map[string]map[string]float64)

	for _, id := range store.NodeIDs() {
		n := store.GetNode(id)
		ns := &nodeState{Node: *n}
		if n.PatternID != "" {
			if p := store.GetPattern(n.PatternID); p != nil {
				ns.demandPattern = append([]float64(nil), p.Multipliers...)
			}
		}
		s.nodes[id] = ns
	}
	for _, id := range store.LinkIDs() {
		l := store.GetLink(id)
		s.links[id] = &linkState{Link: *l, open: l.InitOpen, speed: l.InitSpeed}
	}
	return nil
}

func (s *Synthetic) Configure(p core.GeneralParams) error {
	if s.closed {
		return ErrClosed
	}
	if s.store == nil {
		return ErrNotLoaded
	}
	if p.Duration <= 0 || p.HydraulicStep <= 0 {
		return fmt.Errorf("synthetic solver: bad duration %d or step %d", p.Duration, p.HydraulicStep)
	}
	s.params = p
	s.configured = true
	s.elapsed = 0
	s.stepsTaken = 0
	s.totalSteps = int(p.Duration/p.HydraulicStep) + 1 // includes t=0
	return nil
}

func (s *Synthetic) AdvanceOneStep() (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.configured {
		return 0, ErrNotConfigured
	}
	if s.stepsTaken >= s.totalSteps {
		return s.elapsed, fmt.Errorf("synthetic solver: advanced past duration %d", s.params.Duration)
	}
	s.elapsed = int64(s.stepsTaken) * s.params.HydraulicStep
	s.stepsTaken++
	return s.elapsed, nil
}

func (s *Synthetic) RemainingSteps() int {
	return s.totalSteps - s.stepsTaken
}

func (s *Synthetic) Solve(sensors scada.SensorConfig, reportStep int64) ([]scada.Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if s.stepsTaken > 0 {
		return nil, ErrBulkAfterStep
	}
	if reportStep <= 0 {
		return nil, fmt.Errorf("synthetic solver: bad report step %d", reportStep)
	}

	var frames []scada.Frame
	for t := int64(0); t <= s.params.Duration; t += reportStep {
		frames = append(frames, s.frameAt(sensors, t))
	}
	s.stepsTaken = s.totalSteps
	s.elapsed = s.params.Duration
	return frames, nil
}

func (s *Synthetic) Snapshot(sensors scada.SensorConfig) (scada.Frame, error) {
	if s.closed {
		return scada.Frame{}, ErrClosed
	}
	if !s.configured {
		return scada.Frame{}, ErrNotConfigured
	}
	return s.frameAt(sensors, s.elapsed), nil
}

func (s *Synthetic) ExportState(w io.Writer) error {
	if s.closed {
		return ErrClosed
	}
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if _, err := fmt.Fprintf(w, "t=%d", s.elapsed); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := fmt.Fprintf(w, " %s=%.4f", id, s.pressureAt(id, s.elapsed)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func (s *Synthetic) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.store = nil
	s.nodes = nil
	s.links = nil
	s.emitters = nil
	s.injections = nil
	return nil
}

// ---------- Event surface ----------

func (s *Synthetic) SetPumpStatus(pumpID string, open bool) error {
	l, err := s.linkOfType(pumpID, model.LinkPump)
	if err != nil {
		return err
	}
	l.open = open
	return nil
}

func (s *Synthetic) SetPumpSpeed(pumpID string, speed float64) error {
	l, err := s.linkOfType(pumpID, model.LinkPump)
	if err != nil {
		return err
	}
	if speed < 0 {
		return fmt.Errorf("synthetic solver: negative pump speed %g", speed)
	}
	l.speed = speed
	return nil
}

func (s *Synthetic) SetValveStatus(valveID string, open bool) error {
	l, err := s.linkOfType(valveID, model.LinkValve)
	if err != nil {
		return err
	}
	l.open = open
	return nil
}

func (s *Synthetic) SetQualitySource(nodeID string, value float64) error {
	n, err := s.node(nodeID)
	if err != nil {
		return err
	}
	n.qualitySource = value
	n.hasQualitySrc = true
	return nil
}

func (s *Synthetic) SetEmitterCoefficient(elementID string, coefficient float64) error {
	if s.closed {
		return ErrClosed
	}
	if s.store == nil {
		return ErrNotLoaded
	}
	if !s.store.HasNode(elementID) && !s.store.HasLink(elementID) {
		return fmt.Errorf("%w: %q", ErrUnknownElement, elementID)
	}
	if coefficient < 0 {
		return fmt.Errorf("synthetic solver: negative emitter coefficient %g", coefficient)
	}
	if coefficient == 0 {
		delete(s.emitters, elementID)
		return nil
	}
	s.emitters[elementID] = coefficient
	return nil
}

func (s *Synthetic) SetSpeciesInjection(nodeID, species string, strength float64) error {
	if _, err := s.node(nodeID); err != nil {
		return err
	}
	if strength == 0 {
		if m := s.injections[nodeID]; m != nil {
			delete(m, species)
		}
		return nil
	}
	if s.injections[nodeID] == nil {
		s.injections[nodeID] = make(map[string]float64)
	}
	s.injections[nodeID][species] = strength
	return nil
}

// ---------- Parameter surface ----------

func (s *Synthetic) PipeIDs() []string {
	if s.store == nil {
		return nil
	}
	return s.store.LinkIDsOfType(model.LinkPipe)
}

func (s *Synthetic) JunctionIDs() []string {
	if s.store == nil {
		return nil
	}
	return s.store.NodeIDsOfType(model.NodeJunction)
}

func (s *Synthetic) PipeLength(pipeID string) (float64, error) {
	l, err := s.linkOfType(pipeID, model.LinkPipe)
	if err != nil {
		return 0, err
	}
	return l.Length, nil
}

func (s *Synthetic) SetPipeLength(pipeID string, v float64) error {
	l, err := s.linkOfType(pipeID, model.LinkPipe)
	if err != nil {
		return err
	}
	l.Length = v
	return nil
}

func (s *Synthetic) PipeDiameter(pipeID string) (float64, error) {
	l, err := s.linkOfType(pipeID, model.LinkPipe)
	if err != nil {
		return 0, err
	}
	return l.Diameter, nil
}

func (s *Synthetic) SetPipeDiameter(pipeID string, v float64) error {
	l, err := s.linkOfType(pipeID, model.LinkPipe)
	if err != nil {
		return err
	}
	l.Diameter = v
	return nil
}

func (s *Synthetic) PipeRoughness(pipeID string) (float64, error) {
	l, err := s.linkOfType(pipeID, model.LinkPipe)
	if err != nil {
		return 0, err
	}
	return l.Roughness, nil
}

func (s *Synthetic) SetPipeRoughness(pipeID string, v float64) error {
	l, err := s.linkOfType(pipeID, model.LinkPipe)
	if err != nil {
		return err
	}
	l.Roughness = v
	return nil
}

func (s *Synthetic) BaseDemand(nodeID string) (float64, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return 0, err
	}
	return n.Node.BaseDemand, nil
}

func (s *Synthetic) SetBaseDemand(nodeID string, v float64) error {
	n, err := s.node(nodeID)
	if err != nil {
		return err
	}
	n.Node.BaseDemand = v
	return nil
}

func (s *Synthetic) Elevation(nodeID string) (float64, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return 0, err
	}
	return n.Node.Elevation, nil
}

func (s *Synthetic) SetElevation(nodeID string, v float64) error {
	n, err := s.node(nodeID)
	if err != nil {
		return err
	}
	n.Node.Elevation = v
	return nil
}

func (s *Synthetic) DemandPattern(nodeID string) ([]float64, error) {
	n, err := s.node(nodeID)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), n.demandPattern...), nil
}

func (s *Synthetic) SetDemandPattern(nodeID string, multipliers []float64) error {
	n, err := s.node(nodeID)
	if err != nil {
		return err
	}
	n.demandPattern = append([]float64(nil), multipliers...)
	return nil
}

// ---------- Closed-form model ----------

func (s *Synthetic) node(id string) (*nodeState, error) {
	if s.closed {
		return nil, ErrClosed
	}
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %q", ErrUnknownElement, id)
	}
	return n, nil
}

func (s *Synthetic) linkOfType(id string, t model.LinkType) (*linkState, error) {
	if s.closed {
		return nil, ErrClosed
	}
	l, ok := s.links[id]
	if !ok {
		return nil, fmt.Errorf("%w: link %q", ErrUnknownElement, id)
	}
	if l.Type != t {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", ErrUnknownElement, id, l.Type, t)
	}
	return l, nil
}

func (s *Synthetic) patternMultiplier(n *nodeState, t int64) float64 {
	if len(n.demandPattern) == 0 {
		return 1
	}
	i := int(t/patternStep) % len(n.demandPattern)
	return n.demandPattern[i]
}

func (s *Synthetic) demandAt(id string, t int64) float64 {
	n := s.nodes[id]
	if n == nil || n.Type != model.NodeJunction {
		return 0
	}
	return n.Node.BaseDemand * s.patternMultiplier(n, t)
}

// leakDemandAt approximates an emitter's pressure-dependent discharge,
// evaluated at the reference pressure so the system stays closed-form.
func (s *Synthetic) leakDemandAt(coeff float64) float64 {
	return coeff * math.Sqrt(math.Max(s.ReferenceHead, 1))
}

func (s *Synthetic) totalLoadAt(t int64) float64 {
	var load float64
	for id := range s.nodes {
		load += s.demandAt(id, t)
	}
	for _, c := range s.emitters {
		load += s.leakDemandAt(c)
	}
	return load
}

func (s *Synthetic) pumpBoostAt() float64 {
	var boost float64
	for _, l := range s.links {
		if l.Type == model.LinkPump && l.open {
			boost += 5 * l.speed
		}
	}
	return boost
}

// pressureAt is the head at a node: reference grade plus pump boost,
// minus elevation and a loss proportional to the total system load.
func (s *Synthetic) pressureAt(id string, t int64) float64 {
	n := s.nodes[id]
	if n == nil {
		return 0
	}
	switch n.Type {
	case model.NodeReservoir:
		return 0 // free surface
	case model.NodeTank:
		return s.tankLevelAt(id, t)
	}
	p := s.ReferenceHead + s.pumpBoostAt() - n.Node.Elevation - 0.05*s.totalLoadAt(t)
	if c, ok := s.emitters[id]; ok {
		p -= 0.5 * s.leakDemandAt(c)
	}
	return p
}

// tankLevelAt drains the tank linearly with the integrated load, bounded
// to [0, MaxLevel].
func (s *Synthetic) tankLevelAt(id string, t int64) float64 {
	n := s.nodes[id]
	area := n.TankArea
	if area <= 0 {
		area = 100
	}
	drained := s.totalLoadAt(t) * float64(t) / (area * 3600)
	level := n.InitLevel - drained
	if level < 0 {
		level = 0
	}
	if n.MaxLevel > 0 && level > n.MaxLevel {
		level = n.MaxLevel
	}
	return level
}

// flowAt routes the downstream node's demand through the link; closed
// links carry nothing and pumps scale with speed.
func (s *Synthetic) flowAt(id string, t int64) float64 {
	l := s.links[id]
	if l == nil || !l.open {
		return 0
	}
	flow := s.demandAt(l.To, t)
	if c, ok := s.emitters[id]; ok {
		flow += s.leakDemandAt(c)
	}
	if c, ok := s.emitters[l.To]; ok {
		flow += s.leakDemandAt(c)
	}
	if l.Type == model.LinkPump {
		flow = (flow + 1) * l.speed
	}
	return flow
}

func (s *Synthetic) nodeQualityAt(id string) float64 {
	n := s.nodes[id]
	if n == nil {
		return 0
	}
	if n.hasQualitySrc {
		return n.qualitySource
	}
	return 0.2
}

func (s *Synthetic) bulkSpeciesAt(id string) float64 {
	var total float64
	for _, strength := range s.injections[id] {
		total += strength
	}
	return total
}

func (s *Synthetic) frameAt(sensors scada.SensorConfig, t int64) scada.Frame {
	f := scada.Frame{Time: t, Values: make(map[scada.Kind]map[string]float64)}
	put := func(kind scada.Kind, id string, v float64) {
		if f.Values[kind] == nil {
			f.Values[kind] = make(map[string]float64)
		}
		f.Values[kind][id] = v
	}

	for _, id := range sensors.PressureNodes {
		put(scada.KindPressure, id, s.pressureAt(id, t))
	}
	for _, id := range sensors.FlowLinks {
		put(scada.KindFlow, id, s.flowAt(id, t))
	}
	for _, id := range sensors.DemandNodes {
		put(scada.KindDemand, id, s.demandAt(id, t))
	}
	for _, id := range sensors.QualityNodes {
		put(scada.KindNodeQuality, id, s.nodeQualityAt(id))
	}
	for _, id := range sensors.QualityLinks {
		l := s.links[id]
		q := 0.0
		if l != nil && l.open {
			q = (s.nodeQualityAt(l.From) + s.nodeQualityAt(l.To)) / 2
		}
		put(scada.KindLinkQuality, id, q)
	}
	for _, id := range sensors.Pumps {
		v := 0.0
		if l := s.links[id]; l != nil && l.open {
			v = 1
		}
		put(scada.KindPumpState, id, v)
	}
	for _, id := range sensors.Valves {
		v := 0.0
		if l := s.links[id]; l != nil && l.open {
			v = 1
		}
		put(scada.KindValveState, id, v)
	}
	for _, id := range sensors.Tanks {
		put(scada.KindTankLevel, id, s.tankLevelAt(id, t))
	}
	for _, id := range sensors.BulkSpeciesNodes {
		put(scada.KindBulkSpecies, id, s.bulkSpeciesAt(id))
	}
	for _, id := range sensors.SurfaceSpeciesLinks {
		l := s.links[id]
		v := 0.0
		if l != nil && l.open {
			v = (s.bulkSpeciesAt(l.From) + s.bulkSpeciesAt(l.To)) / 2
		}
		put(scada.KindSurfaceSpecies, id, v)
	}
	return f
}
