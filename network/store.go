package network

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hydrosignal/waternet-simulator/model"
)

var (
	ErrNodeExists     = errors.New("node already exists")
	ErrNodeNotFound   = errors.New("node not found")
	ErrNodeBadInput   = errors.New("invalid node")
	ErrLinkExists     = errors.New("link already exists")
	ErrLinkNotFound   = errors.New("link not found")
	ErrLinkBadInput   = errors.New("invalid link")
	ErrEmptyLinkID    = errors.New("empty link ID")
	ErrPatternExists  = errors.New("pattern already exists")
	ErrPatternMissing = errors.New("pattern not found")
)

// Store is the in-memory topology store for a water-distribution network:
// nodes (junctions, reservoirs, tanks), links (pipes, pumps, valves) and
// demand patterns.
//
// NOTE: Store is concurrency-safe via an internal RWMutex so it can be
// shared between the execution engine and read-only observers, as long as
// all access goes through these methods.
type Store struct {
	mu sync.RWMutex

	nodes       map[string]*model.Node
	links       map[string]*model.Link
	linksByNode map[string]map[string]*model.Link
	patterns    map[string]*model.Pattern
}

// NewStore creates an empty network store.
func NewStore() *Store {
	return &Store{
		nodes:       make(map[string]*model.Node),
		links:       make(map[string]*model.Link),
		linksByNode: make(map[string]map[string]*model.Link),
		patterns:    make(map[string]*model.Pattern),
	}
}

//
// ---------- Patterns ----------
//

func (s *Store) AddPattern(p *model.Pattern) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("nil or empty pattern")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.patterns[p.ID]; exists {
		return fmt.Errorf("%w: %q", ErrPatternExists, p.ID)
	}
	s.patterns[p.ID] = p
	return nil
}

func (s *Store) GetPattern(id string) *model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patterns[id]
}

//
// ---------- Nodes ----------
//

func (s *Store) AddNode(n *model.Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("%w", ErrNodeBadInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %q", ErrNodeExists, n.ID)
	}
	if n.PatternID != "" {
		if _, ok := s.patterns[n.PatternID]; !ok {
			return fmt.Errorf("%w: node %q references pattern %q", ErrPatternMissing, n.ID, n.PatternID)
		}
	}
	s.nodes[n.ID] = n
	return nil
}

// GetNode returns a node by ID, or nil if not found.
func (s *Store) GetNode(id string) *model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// HasNode reports whether a node with the given ID exists.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// NodeIDs returns all node IDs in a stable (sorted) order.
func (s *Store) NodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NodeIDsOfType returns the IDs of all nodes of the given type, sorted.
func (s *Store) NodeIDsOfType(t model.NodeType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, n := range s.nodes {
		if n.Type == t {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

//
// ---------- Links ----------
//

// AddLink inserts a new link and updates node adjacency. Both endpoints
// must already exist in the store.
func (s *Store) AddLink(l *model.Link) error {
	if l == nil {
		return fmt.Errorf("%w", ErrLinkBadInput)
	}
	if l.ID == "" {
		return fmt.Errorf("%w", ErrEmptyLinkID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[l.ID]; exists {
		return fmt.Errorf("%w: %q", ErrLinkExists, l.ID)
	}
	if _, ok := s.nodes[l.From]; !ok {
		return fmt.Errorf("%w: link %q references unknown node %q", ErrNodeNotFound, l.ID, l.From)
	}
	if _, ok := s.nodes[l.To]; !ok {
		return fmt.Errorf("%w: link %q references unknown node %q", ErrNodeNotFound, l.ID, l.To)
	}

	s.links[l.ID] = l
	s.attachLinkToNode(l.ID, l.From)
	s.attachLinkToNode(l.ID, l.To)
	return nil
}

// GetLink returns a single link by ID, or nil if missing.
func (s *Store) GetLink(id string) *model.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.links[id]
}

// HasLink reports whether a link with the given ID exists.
func (s *Store) HasLink(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[id]
	return ok
}

// LinkIDs returns all link IDs in a stable (sorted) order.
func (s *Store) LinkIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.links))
	for id := range s.links {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LinkIDsOfType returns the IDs of all links of the given type, sorted.
func (s *Store) LinkIDsOfType(t model.LinkType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, l := range s.links {
		if l.Type == t {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// LinksForNode returns all links attached to a given node.
func (s *Store) LinksForNode(nodeID string) []*model.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.linksByNode[nodeID]
	if !ok {
		return nil
	}
	out := make([]*model.Link, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Neighbours returns neighbour node IDs reachable from nodeID via any link.
func (s *Store) Neighbours(nodeID string) []string {
	if nodeID == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	neigh := make(map[string]struct{})
	for _, l := range s.linksByNode[nodeID] {
		if l.From == nodeID && l.To != "" && l.To != nodeID {
			neigh[l.To] = struct{}{}
		}
		if l.To == nodeID && l.From != "" && l.From != nodeID {
			neigh[l.From] = struct{}{}
		}
	}

	out := make([]string, 0, len(neigh))
	for id := range neigh {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear removes nodes, links, and adjacency maps, leaving patterns
// untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*model.Node)
	s.links = make(map[string]*model.Link)
	s.linksByNode = make(map[string]map[string]*model.Link)
}

// attachLinkToNode updates linksByNode to include linkID.
//
// NOTE: caller must hold s.mu (write lock).
func (s *Store) attachLinkToNode(linkID, nodeID string) {
	if nodeID == "" {
		return
	}
	m, ok := s.linksByNode[nodeID]
	if !ok {
		m = make(map[string]*model.Link)
		s.linksByNode[nodeID] = m
	}
	m[linkID] = s.links[linkID]
}
