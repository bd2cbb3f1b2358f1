package constraint

import (
	"testing"

	"pgregory.net/rapid"
)

var allRelations = []Relation{
	LeftOf, RightOf, InFrontOf, Behind, SideOf,
	Near, Far, Adjacent,
	On, Above, Below,
	FaceTo, Parallel, Perpendicular,
}

func TestEveryRelationHasAFamily(t *testing.T) {
	for _, r := range allRelations {
		if !KnownRelation(r) {
			t.Errorf("relation %s not registered", r)
		}
	}
	if KnownRelation("levitating_over") {
		t.Error("unknown relation accepted")
	}
}

func TestInverseInvolution(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := rapid.SampledFrom(allRelations).Draw(t, "relation")
		inv := Inverse(r)
		if !KnownRelation(inv) {
			t.Fatalf("Inverse(%s) = %s is not a known relation", r, inv)
		}
		if back := Inverse(inv); back != r {
			t.Fatalf("Inverse(Inverse(%s)) = %s, want %s", r, back, r)
		}
	})
}

func TestSymmetricRelationsAreSelfInverse(t *testing.T) {
	for _, r := range allRelations {
		if IsSymmetric(r) && Inverse(r) != r {
			t.Errorf("symmetric relation %s has inverse %s", r, Inverse(r))
		}
	}
}

func TestDirectionalExcludesSymmetricAndFacing(t *testing.T) {
	for _, r := range allRelations {
		if IsSymmetric(r) && IsDirectional(r) {
			t.Errorf("relation %s is both symmetric and directional", r)
		}
	}
	if IsDirectional(FaceTo) {
		t.Error("face_to must not constrain placement order")
	}
	if !IsDirectional(On) {
		t.Error("on must be directional: the supporting object places first")
	}
}

func TestDirectionalPairsInvert(t *testing.T) {
	pairs := map[Relation]Relation{
		LeftOf:    RightOf,
		InFrontOf: Behind,
		Above:     Below,
	}
	for r, want := range pairs {
		if Inverse(r) != want {
			t.Errorf("Inverse(%s) = %s, want %s", r, Inverse(r), want)
		}
	}
}
