package layout

import (
	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

// SeedOrder computes the placement order: Kahn's algorithm over the
// directional subgraph of the constraint set (target before source), with
// residual cycle members appended in deterministic input order. Objects
// with no directional constraints keep their input position among the
// zero-indegree vertices.
func SeedOrder(objects []*types.Object, set *constraint.Set) []string {
	index := make(map[string]int, len(objects))
	ids := make([]string, len(objects))
	for i, o := range objects {
		index[o.ObjectID] = i
		ids[i] = o.ObjectID
	}

	indegree := make(map[string]int, len(objects))
	adj := make(map[string][]string, len(objects))
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, e := range set.DirectionalEdges() {
		target, source := e[0], e[1]
		// Edges referencing unknown objects are ignored; validation
		// upstream reports them.
		if _, ok := index[target]; !ok {
			continue
		}
		if _, ok := index[source]; !ok {
			continue
		}
		adj[target] = append(adj[target], source)
		indegree[source]++
	}

	// Ready queue ordered by input position for determinism.
	var queue []string
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(ids))
	placed := make(map[string]bool, len(ids))
	for len(queue) > 0 {
		// Pop the earliest-input ready vertex.
		best := 0
		for i := 1; i < len(queue); i++ {
			if index[queue[i]] < index[queue[best]] {
				best = i
			}
		}
		v := queue[best]
		queue = append(queue[:best], queue[best+1:]...)

		order = append(order, v)
		placed[v] = true
		for _, n := range adj[v] {
			indegree[n]--
			if indegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	// Residual cycle members (validation rejects these at construction,
	// but relaxed sets re-enter here) go last in input order.
	for _, id := range ids {
		if !placed[id] {
			order = append(order, id)
		}
	}
	return order
}
