package layout

import (
	"math"

	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

// ObjectState is the geometric state of one object during solving: its
// candidate pose plus the immutable size.
type ObjectState struct {
	ObjectID string
	Position types.Vec3
	Rotation types.Vec3 // Euler degrees; yaw is Rotation.Z
	Size     types.Vec3
}

// Box returns the object's AABB at its current pose.
func (s *ObjectState) Box() AABB { return AABBFromCenter(s.Position, s.Size) }

// CheckResult reports how one constraint evaluates for a source/target pair.
type CheckResult struct {
	Satisfied         bool
	DistanceViolation float64 // meters, 0 when satisfied
	AngleViolation    float64 // degrees, rotation family only
}

// Check evaluates a single constraint as a pure function of the source and
// target states. Buffer is the relative-family axis buffer.
func Check(c *constraint.SpatialConstraint, source, target *ObjectState, buffer float64) CheckResult {
	if buffer <= 0 {
		buffer = constraint.DefaultBuffer
	}
	switch c.Type {
	case constraint.TypeRelative:
		return checkRelative(c, source, target, buffer)
	case constraint.TypeDistance:
		return checkDistance(c, source, target)
	case constraint.TypeVertical:
		return checkVertical(c, source, target)
	case constraint.TypeRotation:
		return checkRotation(c, source, target)
	}
	return CheckResult{Satisfied: true}
}

// checkRelative requires correct sign and magnitude >= buffer on the
// constrained axis. Axis convention: +x right, +y back.
func checkRelative(c *constraint.SpatialConstraint, source, target *ObjectState, buffer float64) CheckResult {
	dx := source.Position.X - target.Position.X
	dy := source.Position.Y - target.Position.Y

	var diff float64
	switch c.Relation {
	case constraint.LeftOf:
		diff = -dx // target.x - source.x must be >= buffer
	case constraint.RightOf:
		diff = dx
	case constraint.InFrontOf:
		diff = -dy
	case constraint.Behind:
		diff = dy
	case constraint.SideOf:
		diff = math.Abs(dx)
	default:
		return CheckResult{Satisfied: true}
	}
	if diff >= buffer {
		return CheckResult{Satisfied: true}
	}
	return CheckResult{DistanceViolation: buffer - diff}
}

func checkDistance(c *constraint.SpatialConstraint, source, target *ObjectState) CheckResult {
	d := source.Position.HorizontalDistance(target.Position)
	thr := c.EffectiveThreshold()
	switch c.Relation {
	case constraint.Near, constraint.Adjacent:
		if d <= thr {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{DistanceViolation: d - thr}
	case constraint.Far:
		if d >= thr {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{DistanceViolation: thr - d}
	}
	return CheckResult{Satisfied: true}
}

func checkVertical(c *constraint.SpatialConstraint, source, target *ObjectState) CheckResult {
	srcBottom := source.Position.Z - source.Size.Z/2
	srcTop := source.Position.Z + source.Size.Z/2
	tgtBottom := target.Position.Z - target.Size.Z/2
	tgtTop := target.Position.Z + target.Size.Z/2

	switch c.Relation {
	case constraint.On:
		// Bottom of source contacts top of target within the contact band,
		// and the source center must sit over the target footprint.
		gap := math.Abs(srcBottom - tgtTop)
		if gap > constraint.OnContactTolerance {
			return CheckResult{DistanceViolation: gap}
		}
		footprint := AABBFromCenter(target.Position, target.Size)
		if source.Position.X < footprint.Min.X || source.Position.X > footprint.Max.X ||
			source.Position.Y < footprint.Min.Y || source.Position.Y > footprint.Max.Y {
			return CheckResult{DistanceViolation: footprint.DistanceTo(source.Box())}
		}
		return CheckResult{Satisfied: true}
	case constraint.Above:
		gap := srcBottom - tgtTop
		thr := c.EffectiveThreshold()
		if gap >= thr {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{DistanceViolation: thr - gap}
	case constraint.Below:
		gap := tgtBottom - srcTop
		thr := c.EffectiveThreshold()
		if gap >= thr {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{DistanceViolation: thr - gap}
	}
	return CheckResult{Satisfied: true}
}

func checkRotation(c *constraint.SpatialConstraint, source, target *ObjectState) CheckResult {
	tol := c.EffectiveTolerance()
	switch c.Relation {
	case constraint.FaceTo:
		want := yawTowards(source.Position, target.Position)
		diff := angleDiff(source.Rotation.Z, want)
		if diff <= tol {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{AngleViolation: diff - tol}
	case constraint.Parallel:
		diff := axisAngleDiff(source.Rotation.Z, target.Rotation.Z)
		if diff <= tol {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{AngleViolation: diff - tol}
	case constraint.Perpendicular:
		diff := math.Abs(axisAngleDiff(source.Rotation.Z, target.Rotation.Z) - 90)
		if diff <= tol {
			return CheckResult{Satisfied: true}
		}
		return CheckResult{AngleViolation: diff}
	}
	return CheckResult{Satisfied: true}
}

// yawTowards returns the yaw (degrees, [0,360)) that points an object's
// forward axis from `from` at `to`. Forward at yaw 0 is +x, increasing yaw
// rotates counterclockwise toward +y.
func yawTowards(from, to types.Vec3) float64 {
	return types.NormalizeDegrees(math.Atan2(to.Y-from.Y, to.X-from.X) * 180 / math.Pi)
}

// angleDiff returns the absolute angular difference in degrees, in [0,180].
func angleDiff(a, b float64) float64 {
	d := math.Abs(types.NormalizeDegrees(a) - types.NormalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// axisAngleDiff treats orientations 180 degrees apart as equal, returning a
// difference in [0,90].
func axisAngleDiff(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 180)
	if d > 90 {
		d = 180 - d
	}
	return d
}
