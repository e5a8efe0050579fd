package model

// NodeType categorises a network node.
type NodeType int

const (
	NodeJunction NodeType = iota
	NodeReservoir
	NodeTank
)

func (t NodeType) String() string {
	switch t {
	case NodeJunction:
		return "junction"
	case NodeReservoir:
		return "reservoir"
	case NodeTank:
		return "tank"
	default:
		return "unknown"
	}
}

// LinkType categorises a network link.
type LinkType int

const (
	LinkPipe LinkType = iota
	LinkPump
	LinkValve
)

func (t LinkType) String() string {
	switch t {
	case LinkPipe:
		return "pipe"
	case LinkPump:
		return "pump"
	case LinkValve:
		return "valve"
	default:
		return "unknown"
	}
}

// Node represents a junction, reservoir, or tank in the distribution
// network. Demand and elevation are the parameters the uncertainty layer
// may perturb before a run starts.
type Node struct {
	ID   string
	Name string
	Type NodeType

	Elevation  float64 // metres
	BaseDemand float64 // m^3/h; junctions only
	PatternID  string  // demand pattern reference; optional

	// Tank-only fields.
	InitLevel float64 // metres above tank bottom
	MaxLevel  float64
	TankArea  float64 // m^2 cross-section
}

// Link connects two nodes. Pipes carry the hydraulic parameters the
// uncertainty layer may perturb; pumps and valves carry actuator state.
type Link struct {
	ID   string
	Name string
	Type LinkType

	From string // upstream node ID
	To   string // downstream node ID

	// Pipe-only fields.
	Length    float64 // metres
	Diameter  float64 // metres
	Roughness float64 // Hazen-Williams coefficient

	// Actuator fields (pumps and valves).
	InitOpen  bool
	InitSpeed float64 // pumps; relative speed, 1.0 nominal
}

// Pattern is a repeating multiplier sequence applied to base demands (or
// quality source strengths) over the run, one multiplier per pattern step.
type Pattern struct {
	ID          string
	Multipliers []float64
}
