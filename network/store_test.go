package network

import (
	"errors"
	"testing"

	"github.com/hydrosignal/waternet-simulator/model"
)

func junction(id string) *model.Node {
	return &model.Node{ID: id, Type: model.NodeJunction, Elevation: 10}
}

func pipe(id, from, to string) *model.Link {
	return &model.Link{ID: id, Type: model.LinkPipe, From: from, To: to, Length: 100, Diameter: 0.3}
}

func TestAddAndGetNode(t *testing.T) {
	s := NewStore()

	if err := s.AddNode(junction("J1")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if !s.HasNode("J1") {
		t.Errorf("expected HasNode(J1) to be true")
	}
	if n := s.GetNode("J1"); n == nil || n.ID != "J1" {
		t.Errorf("GetNode(J1) = %v", n)
	}
	if s.GetNode("missing") != nil {
		t.Errorf("expected nil for unknown node")
	}

	err := s.AddNode(junction("J1"))
	if !errors.Is(err, ErrNodeExists) {
		t.Errorf("duplicate AddNode error = %v, want ErrNodeExists", err)
	}
	if !errors.Is(s.AddNode(nil), ErrNodeBadInput) {
		t.Errorf("expected ErrNodeBadInput for nil node")
	}
}

func TestAddNodeUnknownPattern(t *testing.T) {
	s := NewStore()

	n := junction("J1")
	n.PatternID = "nope"
	if err := s.AddNode(n); !errors.Is(err, ErrPatternMissing) {
		t.Errorf("error = %v, want ErrPatternMissing", err)
	}

	if err := s.AddPattern(&model.Pattern{ID: "p1", Multipliers: []float64{1, 1.2}}); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	n.PatternID = "p1"
	if err := s.AddNode(n); err != nil {
		t.Fatalf("AddNode with known pattern: %v", err)
	}

	if err := s.AddPattern(&model.Pattern{ID: "p1"}); !errors.Is(err, ErrPatternExists) {
		t.Errorf("duplicate AddPattern error = %v, want ErrPatternExists", err)
	}
}

func TestAddLinkRequiresEndpoints(t *testing.T) {
	s := NewStore()
	if err := s.AddNode(junction("J1")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if err := s.AddLink(pipe("P1", "J1", "J2")); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("error = %v, want ErrNodeNotFound", err)
	}
	if err := s.AddLink(&model.Link{From: "J1", To: "J1"}); !errors.Is(err, ErrEmptyLinkID) {
		t.Errorf("error = %v, want ErrEmptyLinkID", err)
	}

	if err := s.AddNode(junction("J2")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := s.AddLink(pipe("P1", "J1", "J2")); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if err := s.AddLink(pipe("P1", "J1", "J2")); !errors.Is(err, ErrLinkExists) {
		t.Errorf("duplicate AddLink error = %v, want ErrLinkExists", err)
	}
}

func TestTopologyQueries(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"J1", "J2", "J3"} {
		if err := s.AddNode(junction(id)); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}
	if err := s.AddNode(&model.Node{ID: "T1", Type: model.NodeTank, InitLevel: 2}); err != nil {
		t.Fatalf("AddNode(T1): %v", err)
	}
	if err := s.AddLink(pipe("P1", "J1", "J2")); err != nil {
		t.Fatalf("AddLink(P1): %v", err)
	}
	if err := s.AddLink(pipe("P2", "J2", "J3")); err != nil {
		t.Fatalf("AddLink(P2): %v", err)
	}
	if err := s.AddLink(&model.Link{ID: "PU1", Type: model.LinkPump, From: "J3", To: "T1", InitOpen: true, InitSpeed: 1}); err != nil {
		t.Fatalf("AddLink(PU1): %v", err)
	}

	wantNodes := []string{"J1", "J2", "J3", "T1"}
	if got := s.NodeIDs(); len(got) != len(wantNodes) {
		t.Fatalf("NodeIDs = %v, want %v", got, wantNodes)
	} else {
		for i := range got {
			if got[i] != wantNodes[i] {
				t.Errorf("NodeIDs[%d] = %s, want %s", i, got[i], wantNodes[i])
			}
		}
	}

	if got := s.NodeIDsOfType(model.NodeTank); len(got) != 1 || got[0] != "T1" {
		t.Errorf("NodeIDsOfType(tank) = %v, want [T1]", got)
	}
	if got := s.LinkIDsOfType(model.LinkPump); len(got) != 1 || got[0] != "PU1" {
		t.Errorf("LinkIDsOfType(pump) = %v, want [PU1]", got)
	}

	if got := s.Neighbours("J2"); len(got) != 2 || got[0] != "J1" || got[1] != "J3" {
		t.Errorf("Neighbours(J2) = %v, want [J1 J3]", got)
	}
	if got := s.LinksForNode("J2"); len(got) != 2 {
		t.Errorf("LinksForNode(J2) returned %d links, want 2", len(got))
	}

	s.Clear()
	if len(s.NodeIDs()) != 0 || len(s.LinkIDs()) != 0 {
		t.Errorf("Clear left nodes or links behind")
	}
	if s.GetPattern("p1") != nil {
		t.Errorf("unexpected pattern after Clear")
	}
}
