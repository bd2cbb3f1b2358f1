package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"sceneforge/internal/config"
	"sceneforge/internal/constraint"
	"sceneforge/internal/layout"
	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// layoutStage runs the placement solver and, on failure, the constraint
// regeneration loop: each failed attempt persists a dfs_trace and derives
// a relaxed constraint version before retrying, up to the configured
// attempt cap. Only successful solutions get a layout_solution version;
// traces and constraint sets version independently of solutions.
type layoutStage struct {
	cfg *config.Config
}

func (s *layoutStage) Name() types.StageName { return types.StageLayout }

func (s *layoutStage) Complete(st *store.Store) bool {
	return st.LatestVersion(store.PatternLayout) > 0
}

func (s *layoutStage) Hydrate(data *StageData) error {
	var sol types.LayoutSolution
	v, err := data.Store.ReadLatestVersioned(store.PatternLayout, &sol)
	if err != nil {
		return err
	}
	data.Solution = &sol
	data.SolutionVersion = v
	if data.Constraints == nil {
		var set constraint.Set
		cv, err := data.Store.ReadLatestVersioned(store.PatternConstraints, &set)
		if err != nil {
			return err
		}
		data.Constraints = &set
		data.ConstraintsVersion = cv
	}
	return nil
}

func (s *layoutStage) Run(ctx context.Context, data *StageData) error {
	solver := layout.NewSolver(s.solverOptions(data))
	set := data.Constraints

	attempts := s.cfg.Pipeline.MaxLayoutAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastTrace *types.DFSTrace
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sol, trace := solver.Solve(ctx, data.Objects.Objects, set)
		if sol.Success {
			return s.persist(data, sol, set)
		}

		lastTrace = trace
		tv, err := data.Store.WriteVersioned(store.PatternTrace, trace)
		if err != nil {
			return err
		}
		logging.Solver("Attempt %d/%d failed at %s (%s); trace persisted as dfs_trace_v%d.json",
			attempt, attempts, trace.FailedObjectID, trace.ConflictType, tv)

		if trace.ConflictType == types.ConflictTimeout {
			// Regeneration cannot buy back time; fail fast.
			return types.NewError(types.ErrSolverTimeout, string(types.StageLayout), trace.Summary).
				WithActions("raise solver.timeout_s or reduce the object count").
				WithDetail("trace_version", tv)
		}
		if attempt == attempts {
			break
		}

		// First retry relaxes the failed object's hard constraints to
		// soft; subsequent retries remove them outright.
		strategy := constraint.StrategyRelax
		if attempt > 1 {
			strategy = constraint.StrategyRemove
		}
		next, err := constraint.Regenerate(set, trace, strategy)
		if err != nil {
			logging.Solver("Regeneration (%s) produced no change: %v", strategy, err)
			break
		}
		cv, err := data.Store.WriteVersioned(store.PatternConstraints, next)
		if err != nil {
			return err
		}
		logging.Solver("Regenerated constraints (%s) as constraints_v%d.json", strategy, cv)
		set = next
		data.Constraints = next
		data.ConstraintsVersion = cv
	}

	perr := types.NewError(types.ErrSolverNoSolution, string(types.StageLayout),
		fmt.Sprintf("no collision-free layout found after %d attempts", attempts)).
		WithActions(
			"inspect the latest dfs_trace for the failed object and its active constraints",
			"relax or remove conflicting constraints and resume from the layout stage",
			"enlarge the room via constraints.room_size_hint",
		)
	if lastTrace != nil {
		perr = perr.WithDetail("failed_object_id", lastTrace.FailedObjectID).
			WithDetail("conflict_type", string(lastTrace.ConflictType))
	}
	return perr
}

func (s *layoutStage) solverOptions(data *StageData) layout.Options {
	opts := layout.Options{
		SamplingResolution:     s.cfg.Solver.SamplingResolution,
		MaxCandidatesPerObject: s.cfg.Solver.MaxCandidatesPerObject,
		Timeout:                time.Duration(s.cfg.Solver.TimeoutS * float64(time.Second)),
		BufferDistance:         s.cfg.Solver.BufferDistance,
		RoomSize:               s.cfg.Solver.RoomSize,
		GravityEnabled:         s.cfg.Solver.GravityEnabled,
		Seed:                   time.Now().UnixNano(),
	}
	if data.Request.Constraints != nil && len(data.Request.Constraints.RoomSizeHint) == 3 {
		opts.RoomSize = data.Request.Constraints.RoomSizeHint
	}
	if !s.cfg.Solver.UniformScaleFromHeight {
		opts.ScaleFor = func(obj *types.Object) types.Vec3 { return types.Vec3{X: 1, Y: 1, Z: 1} }
	}
	return opts
}

func (s *layoutStage) persist(data *StageData, sol *types.LayoutSolution, set *constraint.Set) error {
	sol.Version = types.VersionString(data.Store.LatestVersion(store.PatternLayout) + 1)
	v, err := data.Store.WriteVersioned(store.PatternLayout, sol)
	if err != nil {
		return err
	}
	data.Solution = sol
	data.SolutionVersion = v

	var buf bytes.Buffer
	layout.FloorPlanSVG(&buf, data.Objects.Objects, sol, s.roomSize(data))
	if err := data.Store.WriteFileAtomic(fmt.Sprintf(store.PatternFloorPlan, v), buf.Bytes()); err != nil {
		return err
	}

	logging.Solver("Layout solved in %.2fs (satisfaction %.2f) as layout_solution_v%d.json",
		sol.Metrics.SolveTime, sol.Metrics.ConstraintSatisfaction, v)
	return nil
}

func (s *layoutStage) roomSize(data *StageData) []float64 {
	if data.Request.Constraints != nil && len(data.Request.Constraints.RoomSizeHint) == 3 {
		return data.Request.Constraints.RoomSizeHint
	}
	return s.cfg.Solver.RoomSize
}
