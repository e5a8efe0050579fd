package scada

import (
	"fmt"
	"slices"

	"github.com/hydrosignal/waternet-simulator/model"
	"github.com/hydrosignal/waternet-simulator/network"
)

// Kind identifies the physical quantity a sensor measures.
type Kind string

const (
	KindPressure       Kind = "pressure"
	KindFlow           Kind = "flow"
	KindDemand         Kind = "demand"
	KindNodeQuality    Kind = "node_quality"
	KindLinkQuality    Kind = "link_quality"
	KindPumpState      Kind = "pump_state"
	KindValveState     Kind = "valve_state"
	KindTankLevel      Kind = "tank_level"
	KindBulkSpecies    Kind = "bulk_species"
	KindSurfaceSpecies Kind = "surface_species"
)

// Kinds lists every sensor kind in the fixed order used for frame
// assembly and serialization.
var Kinds = []Kind{
	KindPressure, KindFlow, KindDemand,
	KindNodeQuality, KindLinkQuality,
	KindPumpState, KindValveState, KindTankLevel,
	KindBulkSpecies, KindSurfaceSpecies,
}

// SensorConfig enumerates which elements are instrumented, per signal
// kind. It is constructed once and may be replaced wholesale on the
// engine, but never patched incrementally mid-run.
type SensorConfig struct {
	PressureNodes       []string `json:"pressure_nodes,omitempty" yaml:"pressure_nodes"`
	FlowLinks           []string `json:"flow_links,omitempty" yaml:"flow_links"`
	DemandNodes         []string `json:"demand_nodes,omitempty" yaml:"demand_nodes"`
	QualityNodes        []string `json:"quality_nodes,omitempty" yaml:"quality_nodes"`
	QualityLinks        []string `json:"quality_links,omitempty" yaml:"quality_links"`
	Pumps               []string `json:"pumps,omitempty" yaml:"pumps"`
	Valves              []string `json:"valves,omitempty" yaml:"valves"`
	Tanks               []string `json:"tanks,omitempty" yaml:"tanks"`
	BulkSpeciesNodes    []string `json:"bulk_species_nodes,omitempty" yaml:"bulk_species_nodes"`
	SurfaceSpeciesLinks []string `json:"surface_species_links,omitempty" yaml:"surface_species_links"`
}

// DefaultSensorConfig instruments every element of the network: all nodes
// get pressure/demand/quality sensors, all links flow/quality sensors,
// and every pump, valve, and tank a state sensor.
func DefaultSensorConfig(store *network.Store) SensorConfig {
	nodes := store.NodeIDs()
	links := store.LinkIDs()
	return SensorConfig{
		PressureNodes: slices.Clone(nodes),
		FlowLinks:     slices.Clone(links),
		DemandNodes:   slices.Clone(nodes),
		QualityNodes:  slices.Clone(nodes),
		QualityLinks:  slices.Clone(links),
		Pumps:         store.LinkIDsOfType(model.LinkPump),
		Valves:        store.LinkIDsOfType(model.LinkValve),
		Tanks:         store.NodeIDsOfType(model.NodeTank),
	}
}

// Locations returns the configured sensor locations for a kind.
func (c SensorConfig) Locations(kind Kind) []string {
	switch kind {
	case KindPressure:
		return c.PressureNodes
	case KindFlow:
		return c.FlowLinks
	case KindDemand:
		return c.DemandNodes
	case KindNodeQuality:
		return c.QualityNodes
	case KindLinkQuality:
		return c.QualityLinks
	case KindPumpState:
		return c.Pumps
	case KindValveState:
		return c.Valves
	case KindTankLevel:
		return c.Tanks
	case KindBulkSpecies:
		return c.BulkSpeciesNodes
	case KindSurfaceSpecies:
		return c.SurfaceSpeciesLinks
	default:
		return nil
	}
}

// Has reports whether the given location carries a sensor of the kind.
func (c SensorConfig) Has(kind Kind, location string) bool {
	return slices.Contains(c.Locations(kind), location)
}

// Equal reports whether two configurations instrument exactly the same
// locations, in the same order.
func (c SensorConfig) Equal(o SensorConfig) bool {
	for _, kind := range Kinds {
		if !slices.Equal(c.Locations(kind), o.Locations(kind)) {
			return false
		}
	}
	return true
}

// Validate checks every configured identifier against the network
// topology. Unknown identifiers, or identifiers of the wrong element
// class (a pump sensor on a pipe, a tank-level sensor on a junction),
// are configuration errors.
func (c SensorConfig) Validate(store *network.Store) error {
	if store == nil {
		return fmt.Errorf("sensor config: nil network store")
	}

	for _, id := range nodeLocations(c) {
		if !store.HasNode(id) {
			return fmt.Errorf("sensor config: unknown node %q", id)
		}
	}
	for _, id := range linkLocations(c) {
		if !store.HasLink(id) {
			return fmt.Errorf("sensor config: unknown link %q", id)
		}
	}
	for _, id := range c.Pumps {
		if l := store.GetLink(id); l == nil || l.Type != model.LinkPump {
			return fmt.Errorf("sensor config: %q is not a pump", id)
		}
	}
	for _, id := range c.Valves {
		if l := store.GetLink(id); l == nil || l.Type != model.LinkValve {
			return fmt.Errorf("sensor config: %q is not a valve", id)
		}
	}
	for _, id := range c.Tanks {
		if n := store.GetNode(id); n == nil || n.Type != model.NodeTank {
			return fmt.Errorf("sensor config: %q is not a tank", id)
		}
	}
	return nil
}

func nodeLocations(c SensorConfig) []string {
	var out []string
	out = append(out, c.PressureNodes...)
	out = append(out, c.DemandNodes...)
	out = append(out, c.QualityNodes...)
	out = append(out, c.Tanks...)
	out = append(out, c.BulkSpeciesNodes...)
	return out
}

func linkLocations(c SensorConfig) []string {
	var out []string
	out = append(out, c.FlowLinks...)
	out = append(out, c.QualityLinks...)
	out = append(out, c.Pumps...)
	out = append(out, c.Valves...)
	out = append(out, c.SurfaceSpeciesLinks...)
	return out
}
