package graph

import (
	"testing"

	"github.com/sparklehq/sparkle/internal/types"
)

func fixedLookup(items map[string]types.Aggregate) Lookup {
	return func(id string) (types.Aggregate, bool) {
		a, ok := items[id]
		return a, ok
	}
}

func TestIsPending(t *testing.T) {
	items := map[string]types.Aggregate{
		"A": {ItemID: "A", Status: types.StatusIncomplete},
		"B": {ItemID: "B", Status: types.StatusIncomplete, Dependencies: []string{"A"}},
		"C": {ItemID: "C", Status: types.StatusIncomplete, Dependencies: []string{"A"}},
	}
	get := fixedLookup(items)

	if !IsPending(items["A"], get) {
		t.Fatal("A has no deps, should be pending")
	}
	if IsPending(items["B"], get) {
		t.Fatal("B depends on incomplete A, should not be pending")
	}

	completedA := items["A"]
	completedA.Status = types.StatusCompleted
	items["A"] = completedA
	if !IsPending(items["C"], get) {
		t.Fatal("C depends on now-completed A, should be pending")
	}
}

func TestWouldCreateCycle(t *testing.T) {
	items := map[string]types.Aggregate{
		"A": {ItemID: "A", Dependencies: []string{"B"}},
		"B": {ItemID: "B", Dependencies: []string{"C"}},
		"C": {ItemID: "C"},
	}
	get := fixedLookup(items)

	if !WouldCreateCycle("C", "A", get) {
		t.Fatal("C depending on A would close the A->B->C loop")
	}
	if WouldCreateCycle("C", "D", get) {
		t.Fatal("C depending on unrelated D should not cycle")
	}
	if !WouldCreateCycle("A", "A", get) {
		t.Fatal("self-dependency is always a cycle")
	}
}

func TestDAG_ReferenceFirstAtDepthZero(t *testing.T) {
	items := map[string]types.Aggregate{
		"A": {ItemID: "A", Dependencies: []string{"B"}},
		"B": {ItemID: "B", Dependents: []string{"A"}},
	}
	get := fixedLookup(items)

	nodes := DAG("A", get)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].ItemID != "A" || nodes[0].Depth != 0 || nodes[0].NeededBy != nil {
		t.Fatalf("reference node malformed: %+v", nodes[0])
	}
	if nodes[1].ItemID != "B" || nodes[1].Depth != 1 || nodes[1].NeededBy == nil || *nodes[1].NeededBy != "A" {
		t.Fatalf("dependency node malformed: %+v", nodes[1])
	}
}

// TestDAG_DiamondReencounterEmitsMinimalRecord builds A -> {B, C} -> D, so D
// is reachable through both B and C. It must appear twice in the emission:
// once in full the first time it's dequeued, and once more with only
// {item, depth, neededBy} set for the second edge, per §4.4 — never dropped,
// and never re-expanded.
func TestDAG_DiamondReencounterEmitsMinimalRecord(t *testing.T) {
	items := map[string]types.Aggregate{
		"A": {ItemID: "A", Dependencies: []string{"B", "C"}},
		"B": {ItemID: "B", Dependents: []string{"A"}, Dependencies: []string{"D"}},
		"C": {ItemID: "C", Dependents: []string{"A"}, Dependencies: []string{"D"}},
		"D": {ItemID: "D", Dependents: []string{"B", "C"}},
	}
	get := fixedLookup(items)

	nodes := DAG("A", get)
	if len(nodes) != 5 {
		t.Fatalf("expected 5 emissions (A, B, C, D twice), got %d: %+v", len(nodes), nodes)
	}

	var dNodes []Node
	for _, n := range nodes {
		if n.ItemID == "D" {
			dNodes = append(dNodes, n)
		}
	}
	if len(dNodes) != 2 {
		t.Fatalf("expected D to be emitted twice, got %d", len(dNodes))
	}

	full, minimal := dNodes[0], dNodes[1]
	if full.Needs == nil && full.NeededBys == nil {
		// Whichever copy was dequeued first carries the full neighbour
		// lists; figure out which one that was.
		full, minimal = dNodes[1], dNodes[0]
	}
	if full.Needs == nil && full.NeededBys == nil {
		t.Fatalf("expected exactly one full D record, got neither: %+v", dNodes)
	}
	if minimal.Needs != nil || minimal.NeededBys != nil {
		t.Fatalf("re-encountered D should carry no neighbour lists, got %+v", minimal)
	}
	if minimal.NeededBy == nil {
		t.Fatalf("re-encountered D should still report its edge, got %+v", minimal)
	}
}
