// Package constraint implements the spatial constraint model: typed
// relations between scene objects, constraint sets with global defaults,
// cycle detection over the directional subgraph, inverse and symmetry laws,
// and constraint regeneration from solver failure traces.
package constraint

// Type groups relations into the four constraint families.
type Type string

const (
	TypeRelative Type = "relative"
	TypeDistance Type = "distance"
	TypeVertical Type = "vertical"
	TypeRotation Type = "rotation"
)

// Relation is one spatial relation between a source and target object.
type Relation string

const (
	// Relative family: source on the indicated side of target.
	LeftOf    Relation = "left_of"
	RightOf   Relation = "right_of"
	InFrontOf Relation = "in_front_of"
	Behind    Relation = "behind"
	SideOf    Relation = "side_of"

	// Distance family: horizontal distance bounds.
	Near     Relation = "near"
	Far      Relation = "far"
	Adjacent Relation = "adjacent"

	// Vertical family.
	On    Relation = "on"
	Above Relation = "above"
	Below Relation = "below"

	// Rotation family.
	FaceTo        Relation = "face_to"
	Parallel      Relation = "parallel"
	Perpendicular Relation = "perpendicular"
)

// Default thresholds and tolerances for spatial relations.
const (
	DefaultBuffer        = 0.1   // m, relative-family axis buffer
	NearMaxThreshold     = 2.0   // m, near horizontal distance cap
	FarMinThreshold      = 8.0   // m, far horizontal distance floor
	AdjacentMaxThreshold = 0.5   // m, adjacent cap
	OnContactTolerance   = 0.002 // m, bottom-to-top contact band for "on"
	DefaultAboveGap      = 2.0   // m, vertical gap for "above"
	DefaultFaceTolerance = 10.0  // deg, face_to angular tolerance
	MaxWeight            = 10.0
)

// relationTypes maps every relation to its family.
var relationTypes = map[Relation]Type{
	LeftOf: TypeRelative, RightOf: TypeRelative, InFrontOf: TypeRelative,
	Behind: TypeRelative, SideOf: TypeRelative,
	Near: TypeDistance, Far: TypeDistance, Adjacent: TypeDistance,
	On: TypeVertical, Above: TypeVertical, Below: TypeVertical,
	FaceTo: TypeRotation, Parallel: TypeRotation, Perpendicular: TypeRotation,
}

// TypeOf returns the family of a relation, or "" for unknown relations.
func TypeOf(r Relation) Type { return relationTypes[r] }

// KnownRelation reports whether r is one of the defined relations.
func KnownRelation(r Relation) bool {
	_, ok := relationTypes[r]
	return ok
}

// inverses defines the inverse relation law. Symmetric relations are their
// own inverse. On stays self-paired: its directional swap has no relation of
// its own in this vocabulary (above/below already claim each other), and the
// law Inverse(Inverse(r)) == r must hold for every relation.
var inverses = map[Relation]Relation{
	LeftOf: RightOf, RightOf: LeftOf,
	InFrontOf: Behind, Behind: InFrontOf,
	SideOf: SideOf,
	Near:   Near, Far: Far, Adjacent: Adjacent,
	On: On, Above: Below, Below: Above,
	FaceTo:        FaceTo,
	Parallel:      Parallel,
	Perpendicular: Perpendicular,
}

// Inverse returns the inverse relation. Inverse is an involution:
// Inverse(Inverse(r)) == r for every relation.
func Inverse(r Relation) Relation {
	if inv, ok := inverses[r]; ok {
		return inv
	}
	return r
}

// symmetric relations hold equally in both directions and are excluded from
// the directional subgraph used for topological seeding.
var symmetric = map[Relation]bool{
	Near: true, Far: true, Adjacent: true,
	SideOf: true, Parallel: true, Perpendicular: true,
}

// IsSymmetric reports whether the relation is direction-free.
func IsSymmetric(r Relation) bool { return symmetric[r] }

// IsDirectional reports whether the relation participates in the
// topological placement order: the target must be placed before the source.
func IsDirectional(r Relation) bool {
	if IsSymmetric(r) {
		return false
	}
	// face_to orients the source but does not order placement.
	return r != FaceTo
}
