package constraint

import (
	"testing"

	"sceneforge/internal/types"
)

func failureTrace(objectID string) *types.DFSTrace {
	return &types.DFSTrace{
		FailedObjectID: objectID,
		ConflictType:   types.ConflictCollision,
		Summary:        "no candidate cleared collisions",
	}
}

func TestRelaxDowngradesHardConstraints(t *testing.T) {
	hard := mustNew(t, On, "book", "desk")
	other := mustNew(t, Near, "plant", "window")
	set, err := NewSet(DefaultGlobals(), []*SpatialConstraint{hard, other})
	if err != nil {
		t.Fatal(err)
	}

	next, err := Regenerate(set, failureTrace("book"), StrategyRelax)
	if err != nil {
		t.Fatalf("relax failed: %v", err)
	}

	relaxed := next.ByID(hard.ConstraintID)
	if relaxed == nil {
		t.Fatal("relaxed constraint missing from new version")
	}
	if !relaxed.IsSoft || relaxed.Priority != PrioritySecondary {
		t.Errorf("expected soft secondary, got soft=%v priority=%s", relaxed.IsSoft, relaxed.Priority)
	}
	if set.ByID(hard.ConstraintID).IsSoft {
		t.Error("relax mutated the prior version")
	}
	untouched := next.ByID(other.ConstraintID)
	if untouched.IsSoft || untouched.Priority != PriorityPrimary {
		t.Error("constraint not naming the failed object was changed")
	}
}

func TestRelaxWithNothingToRelaxErrors(t *testing.T) {
	soft := mustNew(t, Near, "plant", "window")
	soft.Priority = PrioritySecondary
	soft.IsSoft = true
	set, err := NewSet(DefaultGlobals(), []*SpatialConstraint{soft})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Regenerate(set, failureTrace("plant"), StrategyRelax); err == nil {
		t.Error("expected error when no hard constraint names the failed object")
	}
}

func TestRemoveDropsConstraintsNamingFailedObject(t *testing.T) {
	a := mustNew(t, On, "book", "desk")
	b := mustNew(t, Near, "book", "lamp")
	c := mustNew(t, Near, "plant", "window")
	set, err := NewSet(DefaultGlobals(), []*SpatialConstraint{a, b, c})
	if err != nil {
		t.Fatal(err)
	}

	next, err := Regenerate(set, failureTrace("book"), StrategyRemove)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(next.Relations) != 1 {
		t.Fatalf("expected 1 surviving relation, got %d", len(next.Relations))
	}
	if next.ByID(c.ConstraintID) == nil {
		t.Error("unrelated constraint was removed")
	}
	if next.Version != set.Version+1 {
		t.Errorf("expected version bump to %d, got %d", set.Version+1, next.Version)
	}
}
