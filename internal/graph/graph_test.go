package graph

import (
	"testing"
	"time"

	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/store"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	g, err := New(s, nil)
	if err != nil {
		t.Fatalf("constructing graph: %v", err)
	}
	return g
}

func TestAddNodeMergesOnRepeatedName(t *testing.T) {
	g := newTestGraph(t)
	n1, err := g.AddNode("Nami", model.NodeEntity, nil, []string{"Cat Burglar"})
	if err != nil {
		t.Fatalf("add node: %v", err)
	}
	n2, err := g.AddNode("nami", model.NodeEntity, nil, []string{"Navigator"})
	if err != nil {
		t.Fatalf("add node: %v", err)
	}
	if n1.ID != n2.ID {
		t.Fatalf("expected case-insensitive name merge, got distinct ids %s vs %s", n1.ID, n2.ID)
	}
	if n2.VerificationCount != 2 {
		t.Fatalf("expected verification count bumped to 2, got %d", n2.VerificationCount)
	}
	if len(n2.Aliases) != 2 {
		t.Fatalf("expected merged aliases, got %v", n2.Aliases)
	}
}

func TestAddEdgeRejectsSelfLoop(t *testing.T) {
	g := newTestGraph(t)
	_, _, err := g.AddEdge("Luffy", "KNOWS", "Luffy", "Luffy knows himself", nil, nil, "", 0.9, false)
	if err == nil {
		t.Fatal("expected self-loop edge to be rejected")
	}
}

func TestAddEdgeAndQueryAtTime(t *testing.T) {
	g := newTestGraph(t)
	from := time.Now().Add(-time.Hour)
	fact, _, err := g.AddEdge("Luffy", "ALLIED_WITH", "Zoro", "crewmates", &from, nil, "source", 0.8, false)
	if err != nil {
		t.Fatalf("add edge: %v", err)
	}

	facts, err := g.QueryAtTime(fact.Subject, time.Now(), "")
	if err != nil {
		t.Fatalf("query at time: %v", err)
	}
	if len(facts) != 1 || facts[0].ID != fact.ID {
		t.Fatalf("expected fact present at current time, got %+v", facts)
	}

	before := from.Add(-time.Minute)
	facts, err = g.QueryAtTime(fact.Subject, before, "")
	if err != nil {
		t.Fatalf("query at time before: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("expected no facts before valid_from, got %+v", facts)
	}
}

func TestBFSAndFindPath(t *testing.T) {
	g := newTestGraph(t)
	f1, _, err := g.AddEdge("A", "KNOWS", "B", "", nil, nil, "", 0.5, false)
	if err != nil {
		t.Fatalf("add edge a-b: %v", err)
	}
	_, _, err = g.AddEdge("B", "KNOWS", "C", "", nil, nil, "", 0.5, false)
	if err != nil {
		t.Fatalf("add edge b-c: %v", err)
	}

	result := g.BFS(f1.Subject, 2, "", nil, DirOut)
	if len(result.Order) != 3 {
		t.Fatalf("expected 3 reachable nodes within depth 2, got %d: %+v", len(result.Order), result.Order)
	}

	cID, err := g.resolveNodeRef("C")
	if err != nil {
		t.Fatalf("resolve C: %v", err)
	}
	path := g.FindPath(f1.Subject, cID, 3, nil)
	if len(path) != 3 {
		t.Fatalf("expected 3-node path A->B->C, got %v", path)
	}
}

func TestRemoveNodeCascadesToEdges(t *testing.T) {
	g := newTestGraph(t)
	fact, _, err := g.AddEdge("A", "KNOWS", "B", "", nil, nil, "", 0.5, false)
	if err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if err := g.RemoveNode(fact.Subject); err != nil {
		t.Fatalf("remove node: %v", err)
	}
	facts, err := g.ListFactsForSubject(fact.Subject)
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("expected incident fact expired after node removal, got %+v", facts)
	}
}

func TestDetectCommunitiesGroupsConnectedNodes(t *testing.T) {
	g := newTestGraph(t)
	if _, _, err := g.AddEdge("A", "KNOWS", "B", "", nil, nil, "", 0.5, false); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if _, _, err := g.AddEdge("X", "KNOWS", "Y", "", nil, nil, "", 0.5, false); err != nil {
		t.Fatalf("add edge: %v", err)
	}

	communities, err := g.DetectCommunities()
	if err != nil {
		t.Fatalf("detect communities: %v", err)
	}
	if len(communities) != 2 {
		t.Fatalf("expected 2 disjoint communities, got %d", len(communities))
	}
}
