// Package layout implements the constraint-satisfying layout solver:
// constraint checks and feasible regions, AABB collision tests, topological
// placement seeding, depth-first placement with backtracking, failure
// traces, and a top-down SVG floor plan of solved layouts.
package layout

import (
	"math"

	"sceneforge/internal/types"
)

// AABB is an axis-aligned bounding box, stored as min/max corners.
type AABB struct {
	Min types.Vec3
	Max types.Vec3
}

// AABBFromCenter builds the box around a center point with full extents.
func AABBFromCenter(center, size types.Vec3) AABB {
	half := size.Scale(0.5)
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

// Inflate grows the box by d on every side.
func (b AABB) Inflate(d float64) AABB {
	pad := types.Vec3{X: d, Y: d, Z: d}
	return AABB{Min: b.Min.Sub(pad), Max: b.Max.Add(pad)}
}

// Intersects is strict: touching faces do not intersect, penetration depth
// must be positive on every axis.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X < o.Max.X && o.Min.X < b.Max.X &&
		b.Min.Y < o.Max.Y && o.Min.Y < b.Max.Y &&
		b.Min.Z < o.Max.Z && o.Min.Z < b.Max.Z
}

// PenetrationDepth returns the smallest overlap across axes, or 0 when the
// boxes do not intersect.
func (b AABB) PenetrationDepth(o AABB) float64 {
	dx := math.Min(b.Max.X, o.Max.X) - math.Max(b.Min.X, o.Min.X)
	dy := math.Min(b.Max.Y, o.Max.Y) - math.Max(b.Min.Y, o.Min.Y)
	dz := math.Min(b.Max.Z, o.Max.Z) - math.Max(b.Min.Z, o.Min.Z)
	if dx <= 0 || dy <= 0 || dz <= 0 {
		return 0
	}
	return math.Min(dx, math.Min(dy, dz))
}

// DistanceTo computes the minimum separation between the boxes, 0 when they
// touch or overlap.
func (b AABB) DistanceTo(o AABB) float64 {
	dx := axisGap(b.Min.X, b.Max.X, o.Min.X, o.Max.X)
	dy := axisGap(b.Min.Y, b.Max.Y, o.Min.Y, o.Max.Y)
	dz := axisGap(b.Min.Z, b.Max.Z, o.Min.Z, o.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func axisGap(aMin, aMax, bMin, bMax float64) float64 {
	if aMax < bMin {
		return bMin - aMax
	}
	if bMax < aMin {
		return aMin - bMax
	}
	return 0
}

// Contains reports whether the point lies inside or on the box boundary.
func (b AABB) Contains(p types.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBox reports whether o lies entirely within b.
func (b AABB) ContainsBox(o AABB) bool {
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Center returns the box center.
func (b AABB) Center() types.Vec3 {
	return types.Vec3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// CollideWithClearance tests the boxes after inflating both by half the
// clearance each, so the required separation between surfaces is clearance.
func CollideWithClearance(a, b AABB, clearance float64) bool {
	return a.Inflate(clearance / 2).Intersects(b.Inflate(clearance / 2))
}

// RoomBox builds the room AABB centered at the origin from [L, W, H]
// extents; the floor plane sits at z = 0.
func RoomBox(size []float64) AABB {
	l, w, h := size[0], size[1], size[2]
	return AABB{
		Min: types.Vec3{X: -l / 2, Y: -w / 2, Z: 0},
		Max: types.Vec3{X: l / 2, Y: w / 2, Z: h},
	}
}
