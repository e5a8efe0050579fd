// network/loader.go
package network

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hydrosignal/waternet-simulator/model"
)

// Description is a small summary of what was loaded from JSON. It's mainly
// useful for logging or debugging from main().
type Description struct {
	NodeIDs    []string
	LinkIDs    []string
	PatternIDs []string
}

// internal JSON shapes – keep them unexported so we're free to evolve them.
type networkJSON struct {
	Nodes    []nodeJSON    `json:"nodes"`
	Links    []linkJSON    `json:"links"`
	Patterns []patternJSON `json:"patterns"`
}

type nodeJSON struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"` // "junction" | "reservoir" | "tank"
	Elevation  float64 `json:"elevation"`
	BaseDemand float64 `json:"base_demand"`
	PatternID  string  `json:"pattern_id"`
	InitLevel  float64 `json:"init_level"`
	MaxLevel   float64 `json:"max_level"`
	TankArea   float64 `json:"tank_area"`
}

type linkJSON struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"` // "pipe" | "pump" | "valve"
	From      string  `json:"from"`
	To        string  `json:"to"`
	Length    float64 `json:"length"`
	Diameter  float64 `json:"diameter"`
	Roughness float64 `json:"roughness"`
	InitOpen  *bool   `json:"init_open"`  // optional; defaults to true
	InitSpeed float64 `json:"init_speed"` // optional; defaults to 1.0 for pumps
}

type patternJSON struct {
	ID          string    `json:"id"`
	Multipliers []float64 `json:"multipliers"`
}

// Load reads a JSON network description from r, populates the Store with
// patterns, nodes and links, and returns a summary of what was loaded.
//
// Patterns are loaded first, then nodes, then links, so that referential
// checks inside the Store (pattern references, link endpoints) see their
// targets already present.
func Load(s *Store, r io.Reader) (*Description, error) {
	if s == nil {
		return nil, fmt.Errorf("network.Load: store is nil")
	}

	var payload networkJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("network.Load: decode failed: %w", err)
	}

	result := &Description{
		NodeIDs:    make([]string, 0, len(payload.Nodes)),
		LinkIDs:    make([]string, 0, len(payload.Links)),
		PatternIDs: make([]string, 0, len(payload.Patterns)),
	}

	// 1) Patterns
	for _, jsP := range payload.Patterns {
		if jsP.ID == "" {
			return nil, fmt.Errorf("network.Load: pattern with empty id")
		}
		if err := s.AddPattern(&model.Pattern{
			ID:          jsP.ID,
			Multipliers: jsP.Multipliers,
		}); err != nil {
			return nil, fmt.Errorf("network.Load: %w", err)
		}
		result.PatternIDs = append(result.PatternIDs, jsP.ID)
	}

	// 2) Nodes
	for _, jsN := range payload.Nodes {
		if jsN.ID == "" {
			return nil, fmt.Errorf("network.Load: node with empty id")
		}
		node := &model.Node{
			ID:         jsN.ID,
			Name:       jsN.Name,
			Type:       nodeTypeFromString(jsN.Type),
			Elevation:  jsN.Elevation,
			BaseDemand: jsN.BaseDemand,
			PatternID:  jsN.PatternID,
			InitLevel:  jsN.InitLevel,
			MaxLevel:   jsN.MaxLevel,
			TankArea:   jsN.TankArea,
		}
		if err := s.AddNode(node); err != nil {
			return nil, fmt.Errorf("network.Load: %w", err)
		}
		result.NodeIDs = append(result.NodeIDs, jsN.ID)
	}

	// 3) Links
	for _, jsL := range payload.Links {
		if jsL.ID == "" {
			return nil, fmt.Errorf("network.Load: link with empty id")
		}
		open := true
		if jsL.InitOpen != nil {
			open = *jsL.InitOpen
		}
		speed := jsL.InitSpeed
		typ := linkTypeFromString(jsL.Type)
		if typ == model.LinkPump && speed == 0 {
			speed = 1.0
		}
		link := &model.Link{
			ID:        jsL.ID,
			Name:      jsL.Name,
			Type:      typ,
			From:      jsL.From,
			To:        jsL.To,
			Length:    jsL.Length,
			Diameter:  jsL.Diameter,
			Roughness: jsL.Roughness,
			InitOpen:  open,
			InitSpeed: speed,
		}
		if err := s.AddLink(link); err != nil {
			return nil, fmt.Errorf("network.Load: %w", err)
		}
		result.LinkIDs = append(result.LinkIDs, jsL.ID)
	}

	return result, nil
}

// nodeTypeFromString maps the JSON "type" string to our NodeType constants.
// Unknown / empty values default to a junction, because that's what the
// bulk of nodes in a distribution network are.
func nodeTypeFromString(v string) model.NodeType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "reservoir", "source":
		return model.NodeReservoir
	case "tank", "storage":
		return model.NodeTank
	default:
		return model.NodeJunction
	}
}

// linkTypeFromString maps the JSON "type" string to our LinkType constants.
func linkTypeFromString(v string) model.LinkType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pump":
		return model.LinkPump
	case "valve", "prv", "psv", "fcv", "tcv":
		return model.LinkValve
	default:
		return model.LinkPipe
	}
}
