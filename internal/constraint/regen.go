package constraint

import (
	"fmt"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// Strategy selects how a failure trace reshapes the constraint set.
type Strategy string

const (
	// StrategyRelax downgrades constraints naming the failed object to
	// secondary priority and marks them soft.
	StrategyRelax Strategy = "relax"
	// StrategyRemove drops constraints naming the failed object entirely.
	StrategyRemove Strategy = "remove"
)

// Regenerate consumes a solver failure trace and produces a relaxed set at
// the next version. It fails when the trace names no object or when the
// strategy changes nothing (the set is already as loose as it can get).
func Regenerate(current *Set, trace *types.DFSTrace, strategy Strategy) (*Set, error) {
	if trace == nil || trace.FailedObjectID == "" {
		return nil, types.NewError(types.ErrInvalidInput, "constraint",
			"regeneration requires a trace with a failed object")
	}

	switch strategy {
	case StrategyRelax:
		return relax(current, trace)
	case StrategyRemove:
		return remove(current, trace)
	default:
		return nil, types.NewError(types.ErrInvalidInput, "constraint",
			fmt.Sprintf("unknown regeneration strategy %q", strategy))
	}
}

func relax(current *Set, trace *types.DFSTrace) (*Set, error) {
	next := &Set{Version: current.Version + 1, Globals: current.Globals}
	changed := 0
	for _, c := range current.Relations {
		cp := c.Clone()
		if cp.Names(trace.FailedObjectID) && (cp.Hard() || cp.Priority == PriorityPrimary) {
			cp.Priority = PrioritySecondary
			cp.IsSoft = true
			changed++
		}
		next.Relations = append(next.Relations, cp)
	}
	if changed == 0 {
		return nil, types.NewError(types.ErrSolverNoSolution, "constraint",
			fmt.Sprintf("no hard constraints left to relax for object %s", trace.FailedObjectID)).
			WithActions("retry with strategy=remove", "revise the scene description")
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	logging.Solver("Relaxed %d constraints naming %s (v%d -> v%d)",
		changed, trace.FailedObjectID, current.Version, next.Version)
	return next, nil
}

func remove(current *Set, trace *types.DFSTrace) (*Set, error) {
	next := &Set{Version: current.Version + 1, Globals: current.Globals}
	dropped := 0
	for _, c := range current.Relations {
		if c.Names(trace.FailedObjectID) {
			dropped++
			continue
		}
		next.Relations = append(next.Relations, c.Clone())
	}
	if dropped == 0 {
		return nil, types.NewError(types.ErrSolverNoSolution, "constraint",
			fmt.Sprintf("no constraints name object %s; nothing to remove", trace.FailedObjectID)).
			WithActions("revise the scene description")
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	logging.Solver("Removed %d constraints naming %s (v%d -> v%d)",
		dropped, trace.FailedObjectID, current.Version, next.Version)
	return next, nil
}
