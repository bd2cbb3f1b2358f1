package layout

import (
	"testing"

	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

func TestFeasibleRegionLeftOf(t *testing.T) {
	room := RoomBox([]float64{10, 10, 3})
	target := state("desk", 0, 0, 0.5)
	size := types.Vec3{X: 0.6, Y: 0.6, Z: 1}

	r := FeasibleRegion(rel(t, constraint.LeftOf, "chair", "desk"), target, size, room, 0.1)
	if r.Empty() {
		t.Fatal("left_of region is empty")
	}
	if r.MaxX > -0.1 {
		t.Errorf("left_of region must end at least a buffer left of the target, MaxX=%v", r.MaxX)
	}
	for _, p := range r.SampleGrid(0.1, 200) {
		if p.X >= target.Position.X {
			t.Fatalf("sample %+v is not left of the target", p)
		}
	}
}

func TestFeasibleRegionOn(t *testing.T) {
	room := RoomBox([]float64{10, 10, 3})
	desk := &ObjectState{ObjectID: "desk", Position: types.Vec3{X: 1, Y: -1, Z: 0.375}, Size: types.Vec3{X: 1.2, Y: 0.6, Z: 0.75}}
	book := types.Vec3{X: 0.2, Y: 0.15, Z: 0.05}

	r := FeasibleRegion(rel(t, constraint.On, "book", "desk"), desk, book, room, 0.1)
	if r.Empty() {
		t.Fatal("on region is empty")
	}
	wantZ := 0.75 + 0.025
	if r.MinZ != wantZ || r.MaxZ != wantZ {
		t.Errorf("on region must pin z to the contact height %v, got [%v, %v]", wantZ, r.MinZ, r.MaxZ)
	}
	if r.MinX < desk.Position.X-0.6 || r.MaxX > desk.Position.X+0.6 {
		t.Errorf("on region exceeds the desk footprint: [%v, %v]", r.MinX, r.MaxX)
	}
}

func TestIntersectEmptyWhenDisjoint(t *testing.T) {
	a := Region{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1, MinZ: 0, MaxZ: 0}
	b := Region{MinX: 2, MaxX: 3, MinY: 0, MaxY: 1, MinZ: 0, MaxZ: 0}
	if got := a.Intersect(b); !got.Empty() {
		t.Errorf("disjoint regions must intersect to empty, got %+v", got)
	}
}

func TestSampleGridDeterministicAndCapped(t *testing.T) {
	r := Region{MinX: 0, MaxX: 5, MinY: 0, MaxY: 5, MinZ: 0.5, MaxZ: 0.5}

	first := r.SampleGrid(0.1, 100)
	if len(first) != 100 {
		t.Fatalf("expected the 100-candidate cap, got %d", len(first))
	}
	again := r.SampleGrid(0.1, 100)
	for i := range first {
		if first[i] != again[i] {
			t.Fatal("sampling is not deterministic")
		}
	}
	for _, p := range first {
		if p.Z != 0.5 {
			t.Fatalf("degenerate z axis must pin samples to 0.5, got %v", p.Z)
		}
	}
}

func TestSampleGridDegeneratePoint(t *testing.T) {
	r := Region{MinX: 1, MaxX: 1, MinY: 2, MaxY: 2, MinZ: 0.4, MaxZ: 0.4}
	pts := r.SampleGrid(0.1, 10)
	if len(pts) != 1 {
		t.Fatalf("expected a single sample for a point region, got %d", len(pts))
	}
	want := types.Vec3{X: 1, Y: 2, Z: 0.4}
	if pts[0] != want {
		t.Errorf("expected %+v, got %+v", want, pts[0])
	}
}
