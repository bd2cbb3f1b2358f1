package layout

import (
	"math"

	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

// Region is an axis-aligned sampling region over the floor plane plus a z
// band. It seeds candidate generation; candidates still pass through the
// full constraint check, so a region may safely over-approximate.
type Region struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64 // z band for the object center
}

// Empty reports whether the region contains no points.
func (r Region) Empty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY || r.MinZ > r.MaxZ
}

// Intersect returns the component-wise intersection.
func (r Region) Intersect(o Region) Region {
	return Region{
		MinX: math.Max(r.MinX, o.MinX), MaxX: math.Min(r.MaxX, o.MaxX),
		MinY: math.Max(r.MinY, o.MinY), MaxY: math.Min(r.MaxY, o.MaxY),
		MinZ: math.Max(r.MinZ, o.MinZ), MaxZ: math.Min(r.MaxZ, o.MaxZ),
	}
}

// regionFromRoom covers the whole room for a ground object of the given
// size: centers stay half an extent away from walls.
func regionFromRoom(room AABB, size types.Vec3) Region {
	return Region{
		MinX: room.Min.X + size.X/2, MaxX: room.Max.X - size.X/2,
		MinY: room.Min.Y + size.Y/2, MaxY: room.Max.Y - size.Y/2,
		MinZ: size.Z / 2, MaxZ: room.Max.Z - size.Z/2,
	}
}

// FeasibleRegion computes the sampling region compatible with one
// constraint given the target's already-known state. The source object has
// the given size. Constraints that do not bound position (rotation family,
// far) return the room-wide region; the acceptance check filters them.
func FeasibleRegion(c *constraint.SpatialConstraint, target *ObjectState, sourceSize types.Vec3, room AABB, buffer float64) Region {
	if buffer <= 0 {
		buffer = constraint.DefaultBuffer
	}
	whole := regionFromRoom(room, sourceSize)
	groundZ := sourceSize.Z / 2

	// Horizontal reach for side regions: near-range box around the target.
	reach := constraint.NearMaxThreshold

	switch c.Relation {
	case constraint.LeftOf:
		return whole.Intersect(Region{
			MinX: target.Position.X - reach, MaxX: target.Position.X - buffer,
			MinY: target.Position.Y - reach, MaxY: target.Position.Y + reach,
			MinZ: groundZ, MaxZ: groundZ,
		})
	case constraint.RightOf:
		return whole.Intersect(Region{
			MinX: target.Position.X + buffer, MaxX: target.Position.X + reach,
			MinY: target.Position.Y - reach, MaxY: target.Position.Y + reach,
			MinZ: groundZ, MaxZ: groundZ,
		})
	case constraint.InFrontOf:
		return whole.Intersect(Region{
			MinX: target.Position.X - reach, MaxX: target.Position.X + reach,
			MinY: target.Position.Y - reach, MaxY: target.Position.Y - buffer,
			MinZ: groundZ, MaxZ: groundZ,
		})
	case constraint.Behind:
		return whole.Intersect(Region{
			MinX: target.Position.X - reach, MaxX: target.Position.X + reach,
			MinY: target.Position.Y + buffer, MaxY: target.Position.Y + reach,
			MinZ: groundZ, MaxZ: groundZ,
		})
	case constraint.SideOf:
		// Either side on x; over-approximate with the near box, the check
		// rejects the center strip.
		return whole.Intersect(Region{
			MinX: target.Position.X - reach, MaxX: target.Position.X + reach,
			MinY: target.Position.Y - reach, MaxY: target.Position.Y + reach,
			MinZ: groundZ, MaxZ: groundZ,
		})
	case constraint.Near, constraint.Adjacent:
		thr := c.EffectiveThreshold()
		return whole.Intersect(Region{
			MinX: target.Position.X - thr, MaxX: target.Position.X + thr,
			MinY: target.Position.Y - thr, MaxY: target.Position.Y + thr,
			MinZ: groundZ, MaxZ: groundZ,
		})
	case constraint.On:
		top := target.Position.Z + target.Size.Z/2
		return Region{
			MinX: target.Position.X - target.Size.X/2, MaxX: target.Position.X + target.Size.X/2,
			MinY: target.Position.Y - target.Size.Y/2, MaxY: target.Position.Y + target.Size.Y/2,
			MinZ: top + sourceSize.Z/2, MaxZ: top + sourceSize.Z/2,
		}
	case constraint.Above:
		top := target.Position.Z + target.Size.Z/2
		z := top + c.EffectiveThreshold() + sourceSize.Z/2
		return Region{
			MinX: target.Position.X - target.Size.X/2, MaxX: target.Position.X + target.Size.X/2,
			MinY: target.Position.Y - target.Size.Y/2, MaxY: target.Position.Y + target.Size.Y/2,
			MinZ: z, MaxZ: math.Max(z, room.Max.Z-sourceSize.Z/2),
		}
	case constraint.Below:
		bottom := target.Position.Z - target.Size.Z/2
		zMax := bottom - c.EffectiveThreshold() - sourceSize.Z/2
		return Region{
			MinX: target.Position.X - target.Size.X/2, MaxX: target.Position.X + target.Size.X/2,
			MinY: target.Position.Y - target.Size.Y/2, MaxY: target.Position.Y + target.Size.Y/2,
			MinZ: groundZ, MaxZ: zMax,
		}
	}
	// far and the rotation family do not bound position.
	return whole
}

// SampleGrid walks the region at the given resolution and returns up to max
// candidate centers in deterministic row-major order. A degenerate axis
// (min == max) yields that single coordinate.
func (r Region) SampleGrid(resolution float64, max int) []types.Vec3 {
	if r.Empty() || resolution <= 0 || max <= 0 {
		return nil
	}
	xs := axisSamples(r.MinX, r.MaxX, resolution)
	ys := axisSamples(r.MinY, r.MaxY, resolution)
	zs := axisSamples(r.MinZ, r.MaxZ, resolution)

	out := make([]types.Vec3, 0, max)
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				out = append(out, types.Vec3{X: x, Y: y, Z: z})
				if len(out) >= max {
					return out
				}
			}
		}
	}
	return out
}

// Size returns the number of grid points the region would yield without a cap.
func (r Region) Size(resolution float64) int {
	if r.Empty() || resolution <= 0 {
		return 0
	}
	return len(axisSamples(r.MinX, r.MaxX, resolution)) *
		len(axisSamples(r.MinY, r.MaxY, resolution)) *
		len(axisSamples(r.MinZ, r.MaxZ, resolution))
}

func axisSamples(min, max, step float64) []float64 {
	if max < min {
		return nil
	}
	if max-min < step {
		return []float64{(min + max) / 2}
	}
	n := int(math.Floor((max-min)/step)) + 1
	out := make([]float64, 0, n)
	for v := min; v <= max+1e-9; v += step {
		out = append(out, v)
	}
	return out
}
