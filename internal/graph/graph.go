// Package graph implements the dependency-DAG operations of §4.4:
// pending-work filtering, root discovery, cycle prevention, and the
// neighbourhood-limited DAG emission used by the dag API endpoint.
// Aggregates are read by id through the Lookup callback rather than held
// by this package, so it never needs its own copy of the item set.
package graph

import "github.com/sparklehq/sparkle/internal/types"

// Lookup returns the current aggregate for id, or ok=false if id does not
// exist. Callers typically bind this to aggregates.Manager.Get.
type Lookup func(id string) (types.Aggregate, bool)

// IsPending reports whether an item is actionable work: not completed and
// not blocked by an incomplete dependency (§4.4).
func IsPending(agg types.Aggregate, get Lookup) bool {
	if agg.Status == types.StatusCompleted || agg.Ignored {
		return false
	}
	for _, dep := range agg.Dependencies {
		if depAgg, ok := get(dep); ok && depAgg.Status != types.StatusCompleted {
			return false
		}
	}
	return true
}

// Roots returns every id in ids whose Dependencies list is empty.
func Roots(ids []string, get Lookup) []string {
	var out []string
	for _, id := range ids {
		agg, ok := get(id)
		if !ok {
			continue
		}
		if len(agg.Dependencies) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// WouldCreateCycle reports whether adding a "from depends on to" edge
// would create a cycle: true iff to can already reach from by following
// existing Dependencies edges.
func WouldCreateCycle(from, to string, get Lookup) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{to: true}
	queue := []string{to}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == from {
			return true
		}
		agg, ok := get(cur)
		if !ok {
			continue
		}
		for _, next := range agg.Dependencies {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Node is one entry in a DAG emission (§4.4 dag()).
type Node struct {
	ItemID   string   `json:"itemId"`
	Tagline  string   `json:"tagline"`
	Status   string   `json:"status"`
	Depth    int      `json:"depth"`
	NeededBy *string  `json:"neededBy"`
	Needs    []string `json:"needs,omitempty"`
	NeededBys []string `json:"neededBys,omitempty"`
}

// DAG performs a bidirectional breadth-first walk from referenceID,
// emitting the reference node first at depth 0 with a nil NeededBy. Every
// other reachable node is enqueued once per edge it is discovered through;
// the first time it is dequeued it is emitted in full, with its own
// Needs/NeededBys and its neighbours enqueued in turn. Later re-encounters
// of an already-emitted node (diamonds in the dependency graph) are still
// emitted, but as the minimal {item, depth, neededBy} record §4.4
// describes, with no Needs/NeededBys and no re-expansion — this keeps
// every discovered edge visible to callers without walking the graph more
// than once per node.
func DAG(referenceID string, get Lookup) []Node {
	refAgg, ok := get(referenceID)
	if !ok {
		return nil
	}

	type queued struct {
		id       string
		depth    int
		neededBy *string
	}

	emitted := map[string]bool{referenceID: true}
	out := []Node{{
		ItemID:    referenceID,
		Tagline:   refAgg.Tagline,
		Status:    refAgg.Status,
		Depth:     0,
		NeededBy:  nil,
		Needs:     append([]string{}, refAgg.Dependencies...),
		NeededBys: append([]string{}, refAgg.Dependents...),
	}}

	queue := []queued{}
	for _, dep := range refAgg.Dependencies {
		queue = append(queue, queued{id: dep, depth: 1, neededBy: strPtr(referenceID)})
	}
	for _, dep := range refAgg.Dependents {
		queue = append(queue, queued{id: dep, depth: 1, neededBy: strPtr(referenceID)})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		agg, ok := get(cur.id)
		if !ok {
			continue
		}

		if emitted[cur.id] {
			out = append(out, Node{
				ItemID:   cur.id,
				Tagline:  agg.Tagline,
				Status:   agg.Status,
				Depth:    cur.depth,
				NeededBy: cur.neededBy,
			})
			continue
		}
		emitted[cur.id] = true

		out = append(out, Node{
			ItemID:    cur.id,
			Tagline:   agg.Tagline,
			Status:    agg.Status,
			Depth:     cur.depth,
			NeededBy:  cur.neededBy,
			Needs:     append([]string{}, agg.Dependencies...),
			NeededBys: append([]string{}, agg.Dependents...),
		})

		for _, dep := range agg.Dependencies {
			if !emitted[dep] {
				queue = append(queue, queued{id: dep, depth: cur.depth + 1, neededBy: strPtr(cur.id)})
			}
		}
		for _, dep := range agg.Dependents {
			if !emitted[dep] {
				queue = append(queue, queued{id: dep, depth: cur.depth + 1, neededBy: strPtr(cur.id)})
			}
		}
	}

	return out
}

func strPtr(s string) *string { return &s }

// PotentialDependencies returns every id in ids that candidateID could
// validly depend on (excludes itself and anything that would cycle).
func PotentialDependencies(candidateID string, ids []string, get Lookup) []string {
	var out []string
	for _, id := range ids {
		if id == candidateID {
			continue
		}
		if !WouldCreateCycle(candidateID, id, get) {
			out = append(out, id)
		}
	}
	return out
}

// PotentialDependents returns every id in ids that could validly depend
// on candidateID.
func PotentialDependents(candidateID string, ids []string, get Lookup) []string {
	var out []string
	for _, id := range ids {
		if id == candidateID {
			continue
		}
		if !WouldCreateCycle(id, candidateID, get) {
			out = append(out, id)
		}
	}
	return out
}
