package layout

import (
	"context"
	"math"
	"testing"
	"time"

	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

func sized(id string, sx, sy, sz float64) *types.Object {
	return &types.Object{
		ObjectID: id, Name: id, Category: "misc",
		Size: types.Vec3{X: sx, Y: sy, Z: sz},
	}
}

func solve(t *testing.T, objects []*types.Object, set *constraint.Set) (*types.LayoutSolution, *types.DFSTrace) {
	t.Helper()
	s := NewSolver(Options{Timeout: 10 * time.Second, RoomSize: []float64{10, 10, 3}})
	return s.Solve(context.Background(), objects, set)
}

func TestSolveEmptySceneSucceeds(t *testing.T) {
	sol, trace := solve(t, nil, setOf(t))
	if !sol.Success {
		t.Fatal("empty scene must solve trivially")
	}
	if trace != nil {
		t.Error("successful solve must not produce a trace")
	}
	if sol.Metrics.ConstraintSatisfaction != 1 {
		t.Errorf("expected satisfaction 1, got %v", sol.Metrics.ConstraintSatisfaction)
	}
}

func TestSolveUnconstrainedObjectsRestOnGround(t *testing.T) {
	objects := []*types.Object{
		sized("sofa", 2, 0.9, 0.8),
		sized("table", 1.2, 0.6, 0.45),
	}
	sol, trace := solve(t, objects, setOf(t))
	if !sol.Success {
		t.Fatalf("unconstrained scene failed: %+v", trace)
	}

	for _, obj := range objects {
		p, ok := sol.ObjectPlacements[obj.ObjectID]
		if !ok {
			t.Fatalf("no placement for %s", obj.ObjectID)
		}
		wantZ := obj.Size.Z / 2
		if math.Abs(p.Position.Z-wantZ) > 1e-6 {
			t.Errorf("%s must rest on the floor at z=%v, got %v", obj.ObjectID, wantZ, p.Position.Z)
		}
		if p.Scale.X != obj.Size.Z || p.Scale.Y != obj.Size.Z || p.Scale.Z != obj.Size.Z {
			t.Errorf("%s scale must be uniform by height: got %+v", obj.ObjectID, p.Scale)
		}
	}
}

func TestSolveCollisionFree(t *testing.T) {
	objects := []*types.Object{
		sized("a", 1.5, 1.5, 1),
		sized("b", 1.5, 1.5, 1),
		sized("c", 1.5, 1.5, 1),
	}
	set := setOf(t,
		rel(t, constraint.Near, "a", "b"),
		rel(t, constraint.Near, "b", "c"),
	)
	sol, trace := solve(t, objects, set)
	if !sol.Success {
		t.Fatalf("solvable scene failed: %+v", trace)
	}

	states := make([]*ObjectState, 0, len(objects))
	for _, obj := range objects {
		p := sol.ObjectPlacements[obj.ObjectID]
		states = append(states, &ObjectState{ObjectID: obj.ObjectID, Position: p.Position, Size: obj.Size})
	}
	for i := range states {
		for j := i + 1; j < len(states); j++ {
			if CollideWithClearance(states[i].Box(), states[j].Box(), 0.02) {
				t.Errorf("%s and %s collide", states[i].ObjectID, states[j].ObjectID)
			}
		}
	}
	for _, obj := range objects {
		if res := sol.Results[obj.ObjectID]; res == nil || res.Attempts == 0 {
			t.Errorf("%s result must count candidate attempts", obj.ObjectID)
		}
	}
}

func TestSolveStacksOnSupport(t *testing.T) {
	objects := []*types.Object{
		sized("book", 0.2, 0.15, 0.05),
		sized("desk", 1.2, 0.6, 0.75),
	}
	set := setOf(t, rel(t, constraint.On, "book", "desk"))
	sol, trace := solve(t, objects, set)
	if !sol.Success {
		t.Fatalf("stacking scene failed: %+v", trace)
	}

	book := sol.ObjectPlacements["book"]
	desk := sol.ObjectPlacements["desk"]
	deskTop := desk.Position.Z + 0.75/2
	bookBottom := book.Position.Z - 0.05/2
	if math.Abs(bookBottom-deskTop) > constraint.OnContactTolerance {
		t.Errorf("book bottom %v must contact desk top %v", bookBottom, deskTop)
	}
	if math.Abs(book.Position.X-desk.Position.X) > 0.6 ||
		math.Abs(book.Position.Y-desk.Position.Y) > 0.3 {
		t.Error("book center must sit over the desk footprint")
	}
}

func TestSolveRelativeChain(t *testing.T) {
	objects := []*types.Object{
		sized("chair", 0.5, 0.5, 0.9),
		sized("desk", 1.2, 0.6, 0.75),
	}
	set := setOf(t, rel(t, constraint.LeftOf, "chair", "desk"))
	sol, trace := solve(t, objects, set)
	if !sol.Success {
		t.Fatalf("left_of scene failed: %+v", trace)
	}
	if sol.ObjectPlacements["chair"].Position.X >= sol.ObjectPlacements["desk"].Position.X {
		t.Error("chair must end up left of the desk")
	}
}

func TestSolveImpossibleSceneProducesTrace(t *testing.T) {
	// Two 6m cubes cannot both fit a 10m room together with the mutual
	// adjacency requirement and clearance.
	objects := []*types.Object{
		sized("wardrobe_a", 6, 6, 2),
		sized("wardrobe_b", 6, 6, 2),
	}
	set := setOf(t, rel(t, constraint.Adjacent, "wardrobe_a", "wardrobe_b"))
	sol, trace := solve(t, objects, set)
	if sol.Success {
		t.Fatal("oversized scene must not solve")
	}
	if trace == nil {
		t.Fatal("failed solve must produce a trace")
	}
	if trace.FailedObjectID == "" {
		t.Error("trace must name the failed object")
	}
	if trace.ConflictType == "" {
		t.Error("trace must classify the conflict")
	}
	if trace.CandidatesTried == 0 {
		t.Error("trace must count candidates tried")
	}
	if sol.ErrorMessage == "" {
		t.Error("partial solution must carry the failure summary")
	}
}

func TestSolvePartialSolutionKeepsPlaced(t *testing.T) {
	objects := []*types.Object{
		sized("rug", 2, 2, 0.02),
		sized("monolith", 20, 20, 2), // cannot fit the room at all
	}
	sol, trace := solve(t, objects, setOf(t))
	if sol.Success {
		t.Fatal("scene with an unplaceable object must fail")
	}
	if trace.FailedObjectID != "monolith" {
		t.Errorf("expected monolith to fail, got %s", trace.FailedObjectID)
	}
	if _, ok := sol.ObjectPlacements["rug"]; !ok {
		t.Error("partial solution must keep successfully placed objects")
	}
	if res := sol.Results["rug"]; res == nil {
		t.Error("partial solution must carry the per-object result")
	} else if res.Attempts == 0 {
		t.Error("per-object result must count candidate attempts")
	}
}

func TestSolveDeterministicForFixedInput(t *testing.T) {
	objects := []*types.Object{
		sized("a", 1, 1, 1),
		sized("b", 1, 1, 1),
	}
	set := setOf(t, rel(t, constraint.Near, "a", "b"))

	first, _ := solve(t, objects, set)
	for i := 0; i < 3; i++ {
		again, _ := solve(t, objects, set)
		for id, p := range first.ObjectPlacements {
			q := again.ObjectPlacements[id]
			if p.Position != q.Position || p.Rotation != q.Rotation {
				t.Fatalf("placement of %s varies across runs: %+v vs %+v", id, p, q)
			}
		}
	}
}

func TestSolveTimeoutClassified(t *testing.T) {
	objects := make([]*types.Object, 0, 30)
	for i := 0; i < 30; i++ {
		objects = append(objects, sized(string(rune('a'+i)), 1.8, 1.8, 1))
	}
	s := NewSolver(Options{Timeout: time.Nanosecond, RoomSize: []float64{10, 10, 3}})
	sol, trace := s.Solve(context.Background(), objects, setOf(t))
	if sol.Success {
		t.Fatal("nanosecond budget must not solve 30 objects")
	}
	if trace.ConflictType != types.ConflictTimeout {
		t.Errorf("expected timeout classification, got %s", trace.ConflictType)
	}
}

func TestSolveRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSolver(Options{Timeout: 10 * time.Second, RoomSize: []float64{10, 10, 3}})
	sol, _ := s.Solve(ctx, []*types.Object{sized("a", 1, 1, 1)}, setOf(t))
	if sol.Success {
		t.Error("cancelled context must abort the solve")
	}
}
