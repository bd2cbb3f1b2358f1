package pipeline

import (
	"context"
	"fmt"

	"sceneforge/internal/config"
	"sceneforge/internal/constraint"
	"sceneforge/internal/logging"
	"sceneforge/internal/perception"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// constraintsStage extracts spatial relations from the scene text and
// persists constraints_v1.json. Later versions are produced only by the
// layout stage's regeneration loop, never here: presence of any version
// means this stage is done.
type constraintsStage struct {
	vlm perception.VLMClient
	cfg *config.Config
}

func (s *constraintsStage) Name() types.StageName { return types.StageConstraints }

func (s *constraintsStage) Complete(st *store.Store) bool {
	return st.LatestVersion(store.PatternConstraints) > 0
}

func (s *constraintsStage) Hydrate(data *StageData) error {
	var set constraint.Set
	v, err := data.Store.ReadLatestVersioned(store.PatternConstraints, &set)
	if err != nil {
		return err
	}
	data.Constraints = &set
	data.ConstraintsVersion = v
	return nil
}

func (s *constraintsStage) Run(ctx context.Context, data *StageData) error {
	sceneRef := data.Store.Path(data.SceneRefPath)
	relations, err := s.vlm.ExtractConstraints(ctx, data.Request.Text, data.Objects, sceneRef)
	if err != nil {
		return types.AsPipelineError(err, string(types.StageConstraints))
	}

	globals := constraint.DefaultGlobals()
	globals.CollisionClearance = s.cfg.Solver.CollisionClearance
	if data.Request.Constraints != nil && len(data.Request.Constraints.RoomSizeHint) == 3 {
		globals.MaxRoomSize = data.Request.Constraints.RoomSizeHint
	}

	set, err := constraint.NewSet(globals, relations)
	if err != nil {
		// The extraction contract promises an acyclic directional
		// subgraph; a cycle here is an upstream defect, not user error.
		return types.WrapError(types.ErrLLM, string(types.StageConstraints),
			fmt.Errorf("extracted constraint set rejected: %w", err)).
			WithActions("re-run the constraints stage; extraction is non-deterministic")
	}

	v, err := data.Store.WriteVersioned(store.PatternConstraints, set)
	if err != nil {
		return err
	}
	data.Constraints = set
	data.ConstraintsVersion = v
	logging.Pipeline("Extracted %d constraints (%d hard) as constraints_v%d.json",
		len(set.Relations), len(set.Primary()), v)
	return nil
}
