package types

import "fmt"

// =============================================================================
// LAYOUT SOLUTIONS
// =============================================================================

// Placement is one object's solved pose. Scale follows the downstream asset
// normalization convention (uniform by height) unless reconfigured.
type Placement struct {
	Position Vec3 `json:"pos"`
	Rotation Vec3 `json:"rot_euler"`
	Scale    Vec3 `json:"scale"`
}

// PlacementResult carries per-object solver diagnostics alongside the pose.
type PlacementResult struct {
	ObjectID        string    `json:"object_id"`
	Placement       Placement `json:"placement"`
	Successful      bool      `json:"successful"`
	ConstraintScore float64   `json:"constraint_satisfaction_score"`
	StabilityScore  float64   `json:"stability_score"`
	CollisionCount  int       `json:"collision_count"`
	Attempts        int       `json:"attempts"`
}

// CollisionRecord names one AABB overlap found in a partial solution.
type CollisionRecord struct {
	ObjectA string  `json:"object_a"`
	ObjectB string  `json:"object_b"`
	Depth   float64 `json:"penetration_depth_m"`
}

// SolutionMetrics summarizes a solve.
type SolutionMetrics struct {
	SolveTime              float64 `json:"solve_time"`
	ConstraintSatisfaction float64 `json:"constraint_satisfaction"`
	SpatialEfficiency      float64 `json:"spatial_efficiency"`
}

// LayoutSolution is the versioned output of the layout solver. Versions are
// monotonically increasing and an older version is never mutated.
type LayoutSolution struct {
	Success          bool                        `json:"success"`
	Version          string                      `json:"version"`
	ObjectPlacements map[string]*Placement       `json:"object_placements"`
	Results          map[string]*PlacementResult `json:"results,omitempty"`
	Metrics          SolutionMetrics             `json:"metrics"`
	Seed             int64                       `json:"seed,omitempty"`
	Collisions       []CollisionRecord           `json:"collisions,omitempty"`
	ErrorMessage     string                      `json:"error_message,omitempty"`
}

// VersionString formats a solution version number as "v{n}".
func VersionString(n int) string { return fmt.Sprintf("v%d", n) }

// =============================================================================
// DFS TRACES
// =============================================================================

// ConflictType classifies why the solver rejected every remaining candidate.
type ConflictType string

const (
	ConflictCollision  ConflictType = "collision"
	ConflictBoundary   ConflictType = "boundary"
	ConflictConstraint ConflictType = "constraint"
	ConflictUnstable   ConflictType = "unstable"
	ConflictTimeout    ConflictType = "timeout"
)

// DFSTrace is the structured record of a failed solver attempt. Traces are
// first-class input to constraint regeneration.
type DFSTrace struct {
	FailedObjectID     string       `json:"failed_object_id"`
	PlacedObjects      []string     `json:"placed_objects"`
	ConflictType       ConflictType `json:"conflict_type"`
	ActiveConstraints  []string     `json:"active_constraints"`
	CandidatesTried    int          `json:"candidates_tried"`
	SearchSpaceSize    int          `json:"search_space_size"`
	BestCandidateScore float64      `json:"best_candidate_score"`
	TracebackDepth     int          `json:"traceback_depth"`
	TimeAtFailure      float64      `json:"time_at_failure"`
	Summary            string       `json:"summary"`
	Suggestions        []string     `json:"suggestions,omitempty"`
}
