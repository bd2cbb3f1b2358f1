package layout

import (
	"math"
	"testing"

	"sceneforge/internal/types"
)

func box(cx, cy, cz, sx, sy, sz float64) AABB {
	return AABBFromCenter(types.Vec3{X: cx, Y: cy, Z: cz}, types.Vec3{X: sx, Y: sy, Z: sz})
}

func TestIntersectsIsStrict(t *testing.T) {
	a := box(0, 0, 0.5, 1, 1, 1)
	touching := box(1, 0, 0.5, 1, 1, 1) // shares the x=0.5 face
	if a.Intersects(touching) {
		t.Error("face contact must not count as intersection")
	}

	overlapping := box(0.9, 0, 0.5, 1, 1, 1)
	if !a.Intersects(overlapping) {
		t.Error("expected overlap of 0.1m to intersect")
	}
	if d := a.PenetrationDepth(overlapping); math.Abs(d-0.1) > 1e-9 {
		t.Errorf("expected penetration depth 0.1, got %v", d)
	}
}

func TestPenetrationDepthZeroWhenApart(t *testing.T) {
	a := box(0, 0, 0.5, 1, 1, 1)
	b := box(3, 0, 0.5, 1, 1, 1)
	if d := a.PenetrationDepth(b); d != 0 {
		t.Errorf("expected 0 for separated boxes, got %v", d)
	}
	if d := a.DistanceTo(b); math.Abs(d-2) > 1e-9 {
		t.Errorf("expected gap 2, got %v", d)
	}
}

func TestCollideWithClearance(t *testing.T) {
	a := box(0, 0, 0.5, 1, 1, 1)
	b := box(1.01, 0, 0.5, 1, 1, 1) // 1cm apart

	if CollideWithClearance(a, b, 0) {
		t.Error("separated boxes must not collide with zero clearance")
	}
	// 2cm clearance inflates each box by 1cm per side; the 1cm gap closes.
	if !CollideWithClearance(a, b, 0.02) {
		t.Error("expected clearance of 2cm to close a 1cm gap")
	}
}

func TestRoomBox(t *testing.T) {
	room := RoomBox([]float64{10, 8, 3})
	if room.Min.Z != 0 || room.Max.Z != 3 {
		t.Errorf("floor must sit at z=0: got z [%v, %v]", room.Min.Z, room.Max.Z)
	}
	if room.Min.X != -5 || room.Max.X != 5 || room.Min.Y != -4 || room.Max.Y != 4 {
		t.Errorf("room must be centered on the origin: got %+v", room)
	}
	if !room.ContainsBox(box(0, 0, 1.5, 2, 2, 3)) {
		t.Error("interior box reported outside the room")
	}
	if room.ContainsBox(box(4.5, 0, 1.5, 2, 2, 3)) {
		t.Error("box crossing the +x wall reported inside")
	}
}
