package constraint

import (
	"fmt"
	"sort"
	"strings"

	"sceneforge/internal/types"
)

// Globals are the constraint-set wide defaults.
type Globals struct {
	GroundOnlyDefault  bool      `json:"ground_only_default"`
	CollisionClearance float64   `json:"collision_clearance_m"`
	MaxRoomSize        []float64 `json:"max_room_size,omitempty"`
	MinObjectSpacing   float64   `json:"min_object_spacing,omitempty"`
}

// DefaultGlobals returns the built-in global defaults.
func DefaultGlobals() Globals {
	return Globals{
		GroundOnlyDefault:  true,
		CollisionClearance: 0.02,
	}
}

// Set is a versioned constraint set: global defaults plus relations.
// Sets are copy-on-write; "modifying" one produces a new version.
type Set struct {
	Version   int                  `json:"version"`
	Globals   Globals              `json:"globals"`
	Relations []*SpatialConstraint `json:"relations"`
}

// NewSet validates the relations as a set (per-constraint validity,
// duplicate triples, directional acyclicity) and returns a version-1 set.
func NewSet(globals Globals, relations []*SpatialConstraint) (*Set, error) {
	s := &Set{Version: 1, Globals: globals, Relations: relations}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every constraint, rejects duplicate (source, target,
// relation) triples, and rejects cycles in the directional subgraph.
// Cycles under symmetric relations are fine.
func (s *Set) Validate() error {
	seen := make(map[string]bool, len(s.Relations))
	for _, c := range s.Relations {
		if err := c.Validate(); err != nil {
			return err
		}
		key := c.TripleKey()
		if seen[key] {
			return types.NewError(types.ErrInvalidInput, "constraint",
				fmt.Sprintf("duplicate constraint %s(%s, %s)", c.Relation, c.Source, c.Target))
		}
		seen[key] = true
	}
	if cycle := s.findDirectionalCycle(); cycle != nil {
		return types.NewError(types.ErrSolverConflict, "constraint",
			fmt.Sprintf("directional constraint cycle: %s", strings.Join(cycle, " -> "))).
			WithActions("remove or soften one constraint along the cycle")
	}
	return nil
}

// Add returns a new set containing c. The receiver is unchanged.
func (s *Set) Add(c *SpatialConstraint) (*Set, error) {
	return s.DeltaApply([]*SpatialConstraint{c}, nil)
}

// Remove returns a new set without the identified constraint.
func (s *Set) Remove(constraintID string) (*Set, error) {
	return s.DeltaApply(nil, []string{constraintID})
}

// DeltaApply produces a new set with adds appended and removes (by
// constraint id) dropped, revalidated, at version+1.
func (s *Set) DeltaApply(adds []*SpatialConstraint, removes []string) (*Set, error) {
	drop := make(map[string]bool, len(removes))
	for _, id := range removes {
		drop[id] = true
	}
	next := &Set{
		Version: s.Version + 1,
		Globals: s.Globals,
	}
	for _, c := range s.Relations {
		if !drop[c.ConstraintID] {
			next.Relations = append(next.Relations, c.Clone())
		}
	}
	for _, c := range adds {
		next.Relations = append(next.Relations, c.Clone())
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// Primary returns the primary-priority constraints in input order.
func (s *Set) Primary() []*SpatialConstraint {
	out := make([]*SpatialConstraint, 0, len(s.Relations))
	for _, c := range s.Relations {
		if c.Priority == PriorityPrimary {
			out = append(out, c)
		}
	}
	return out
}

// Secondary returns the secondary-priority constraints in input order.
func (s *Set) Secondary() []*SpatialConstraint {
	out := make([]*SpatialConstraint, 0, len(s.Relations))
	for _, c := range s.Relations {
		if c.Priority == PrioritySecondary {
			out = append(out, c)
		}
	}
	return out
}

// ForObject returns every constraint naming the object on either side.
func (s *Set) ForObject(objectID string) []*SpatialConstraint {
	var out []*SpatialConstraint
	for _, c := range s.Relations {
		if c.Names(objectID) {
			out = append(out, c)
		}
	}
	return out
}

// ByID returns the constraint with the given id, or nil.
func (s *Set) ByID(constraintID string) *SpatialConstraint {
	for _, c := range s.Relations {
		if c.ConstraintID == constraintID {
			return c
		}
	}
	return nil
}

// HasCycles reports whether the directional subgraph contains a cycle.
func (s *Set) HasCycles() bool { return s.findDirectionalCycle() != nil }

// Directional visitation states for cycle detection.
const (
	white = 0 // unvisited
	gray  = 1 // on the recursion stack
	black = 2 // completed
)

// findDirectionalCycle runs three-color DFS over the directional subgraph
// (target -> source edges) and returns one cycle as an object-id path, or
// nil. Vertices are visited in sorted order for deterministic output.
func (s *Set) findDirectionalCycle() []string {
	adj := s.directionalAdjacency()

	verts := make([]string, 0, len(adj))
	for v := range adj {
		verts = append(verts, v)
	}
	sort.Strings(verts)

	state := make(map[string]int, len(verts))
	var path []string
	var cycle []string

	var visit func(v string) bool
	visit = func(v string) bool {
		state[v] = gray
		path = append(path, v)
		for _, n := range adj[v] {
			switch state[n] {
			case gray:
				// Back edge: slice the current path from n onward.
				for i, p := range path {
					if p == n {
						cycle = append(append([]string{}, path[i:]...), n)
						return true
					}
				}
			case white:
				if visit(n) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		state[v] = black
		return false
	}

	for _, v := range verts {
		if state[v] == white && visit(v) {
			return cycle
		}
	}
	return nil
}

// directionalAdjacency builds target -> source edges over directional
// relations only; neighbor lists stay in input order for determinism.
func (s *Set) directionalAdjacency() map[string][]string {
	adj := make(map[string][]string)
	for _, c := range s.Relations {
		if !IsDirectional(c.Relation) {
			continue
		}
		adj[c.Target] = append(adj[c.Target], c.Source)
		if _, ok := adj[c.Source]; !ok {
			adj[c.Source] = nil
		}
	}
	return adj
}

// DirectionalEdges returns the (target, source) pairs of the directional
// subgraph in input order, for the solver's topological seeding.
func (s *Set) DirectionalEdges() [][2]string {
	var edges [][2]string
	for _, c := range s.Relations {
		if IsDirectional(c.Relation) {
			edges = append(edges, [2]string{c.Target, c.Source})
		}
	}
	return edges
}
