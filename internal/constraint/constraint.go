package constraint

import (
	"fmt"

	"github.com/google/uuid"

	"sceneforge/internal/types"
)

// Priority marks a constraint as load-bearing or preferential.
type Priority string

const (
	PriorityPrimary   Priority = "primary"
	PrioritySecondary Priority = "secondary"
)

// SpatialConstraint is a directed relation between two distinct object ids.
type SpatialConstraint struct {
	ConstraintID string   `json:"constraint_id"`
	Type         Type     `json:"type"`
	Relation     Relation `json:"relation"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	Priority     Priority `json:"priority"`
	ThresholdM   float64  `json:"threshold_m,omitempty"`
	DegTolerance float64  `json:"deg_tolerance,omitempty"`
	Weight       float64  `json:"weight"`
	IsSoft       bool     `json:"is_soft"`
}

// New constructs and validates a spatial constraint. The family is derived
// from the relation; threshold and tolerance zero values mean "use default".
func New(relation Relation, source, target string) (*SpatialConstraint, error) {
	c := &SpatialConstraint{
		ConstraintID: fmt.Sprintf("c_%s", uuid.New().String()[:8]),
		Type:         TypeOf(relation),
		Relation:     relation,
		Source:       source,
		Target:       target,
		Priority:     PriorityPrimary,
		Weight:       5,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects malformed constraints: unknown relations, self-reference,
// out-of-range weights, and thresholds outside their category limits.
func (c *SpatialConstraint) Validate() error {
	if !KnownRelation(c.Relation) {
		return types.NewError(types.ErrInvalidInput, "constraint",
			fmt.Sprintf("unknown relation %q", c.Relation))
	}
	if c.Type == "" {
		c.Type = TypeOf(c.Relation)
	}
	if c.Type != TypeOf(c.Relation) {
		return types.NewError(types.ErrInvalidInput, "constraint",
			fmt.Sprintf("relation %s belongs to family %s, not %s", c.Relation, TypeOf(c.Relation), c.Type))
	}
	if c.Source == "" || c.Target == "" {
		return types.NewError(types.ErrInvalidInput, "constraint", "source and target are required")
	}
	if c.Source == c.Target {
		return types.NewError(types.ErrInvalidInput, "constraint",
			fmt.Sprintf("constraint %s references object %q on both sides", c.Relation, c.Source))
	}
	if c.Priority == "" {
		c.Priority = PriorityPrimary
	}
	if c.Priority != PriorityPrimary && c.Priority != PrioritySecondary {
		return types.NewError(types.ErrInvalidInput, "constraint",
			fmt.Sprintf("invalid priority %q", c.Priority))
	}
	if c.Weight < 0 || c.Weight > MaxWeight {
		return types.NewError(types.ErrInvalidInput, "constraint",
			fmt.Sprintf("weight %.2f outside [0, %.0f]", c.Weight, MaxWeight))
	}
	if c.ThresholdM != 0 {
		switch c.Relation {
		case Near:
			if c.ThresholdM > NearMaxThreshold {
				return types.NewError(types.ErrInvalidInput, "constraint",
					fmt.Sprintf("near threshold %.2fm exceeds cap %.1fm", c.ThresholdM, NearMaxThreshold))
			}
		case Far:
			if c.ThresholdM < FarMinThreshold {
				return types.NewError(types.ErrInvalidInput, "constraint",
					fmt.Sprintf("far threshold %.2fm below floor %.1fm", c.ThresholdM, FarMinThreshold))
			}
		case Adjacent:
			if c.ThresholdM > AdjacentMaxThreshold {
				return types.NewError(types.ErrInvalidInput, "constraint",
					fmt.Sprintf("adjacent threshold %.2fm exceeds cap %.2fm", c.ThresholdM, AdjacentMaxThreshold))
			}
		}
		if c.ThresholdM < 0 {
			return types.NewError(types.ErrInvalidInput, "constraint",
				fmt.Sprintf("threshold %.2fm is negative", c.ThresholdM))
		}
	}
	return nil
}

// EffectiveThreshold returns the distance threshold with category defaults
// applied.
func (c *SpatialConstraint) EffectiveThreshold() float64 {
	if c.ThresholdM != 0 {
		return c.ThresholdM
	}
	switch c.Relation {
	case Near:
		return NearMaxThreshold
	case Far:
		return FarMinThreshold
	case Adjacent:
		return AdjacentMaxThreshold
	case Above, Below:
		return DefaultAboveGap
	}
	return DefaultBuffer
}

// EffectiveTolerance returns the angular tolerance in degrees with the
// family default applied.
func (c *SpatialConstraint) EffectiveTolerance() float64 {
	if c.DegTolerance != 0 {
		return c.DegTolerance
	}
	return DefaultFaceTolerance
}

// Hard reports whether the constraint must be satisfied exactly.
func (c *SpatialConstraint) Hard() bool { return !c.IsSoft }

// TripleKey identifies the (source, target, relation) triple for duplicate
// detection.
func (c *SpatialConstraint) TripleKey() string {
	return c.Source + "\x00" + c.Target + "\x00" + string(c.Relation)
}

// Names reports whether the constraint references the given object id on
// either side.
func (c *SpatialConstraint) Names(objectID string) bool {
	return c.Source == objectID || c.Target == objectID
}

// Clone returns a copy with the same id.
func (c *SpatialConstraint) Clone() *SpatialConstraint {
	cp := *c
	return &cp
}
