// Package pipeline implements the staged scene pipeline: the stage graph,
// dependency-driven resumption, per-stage persistence, review gates, and
// error classification. Stages execute sequentially on a single logical
// worker; concurrency exists only within a stage, bounded by the executor.
package pipeline

import (
	"context"

	"sceneforge/internal/constraint"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// StageData is the typed shared state threaded through stages. Each stage
// reads the fields its prerequisites populated and fills in its own.
type StageData struct {
	SessionID string
	Store     *store.Store
	State     *types.SessionState
	Request   *types.SceneRequest

	// scene_ref
	SceneRefPath string // session-relative

	// extract
	Objects *types.ObjectSet

	// cards; session-relative paths keyed by object id, absent on failure
	CardPaths map[string]string

	// constraints
	Constraints        *constraint.Set
	ConstraintsVersion int

	// layout
	Solution        *types.LayoutSolution
	SolutionVersion int

	// assets
	Manifest *types.AssetManifest

	// per-stage wall-clock seconds
	Timings map[types.StageName]float64
}

// Stage is one node of the pipeline graph with a fixed output artifact set.
type Stage interface {
	// Name identifies the stage in status, errors, and review gates.
	Name() types.StageName

	// Complete probes the stage's declared outputs; presence and
	// non-emptiness decide skip vs run. No status field is trusted.
	Complete(st *store.Store) bool

	// Hydrate loads the stage's persisted outputs into data. The runner
	// calls it instead of Run when the stage is skipped.
	Hydrate(data *StageData) error

	// Run executes the stage: mutate data and persist the declared
	// artifacts. A returned error stops the pipeline at this stage.
	Run(ctx context.Context, data *StageData) error
}

// allPresent is the common completion probe over fixed artifact paths.
func allPresent(st *store.Store, rels ...string) bool {
	for _, rel := range rels {
		if !st.ArtifactPresent(rel) {
			return false
		}
	}
	return true
}
