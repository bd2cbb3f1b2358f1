package layout

import (
	"testing"

	"sceneforge/internal/constraint"
	"sceneforge/internal/types"
)

func obj(id string) *types.Object {
	return &types.Object{ObjectID: id, Name: id, Category: "misc", Size: types.Vec3{X: 1, Y: 1, Z: 1}}
}

func setOf(t *testing.T, cs ...*constraint.SpatialConstraint) *constraint.Set {
	t.Helper()
	set, err := constraint.NewSet(constraint.DefaultGlobals(), cs)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestSeedOrderPlacesTargetsFirst(t *testing.T) {
	// book on desk, lamp on desk: the desk must seed before both.
	objects := []*types.Object{obj("book"), obj("lamp"), obj("desk")}
	set := setOf(t,
		rel(t, constraint.On, "book", "desk"),
		rel(t, constraint.On, "lamp", "desk"),
	)

	order := SeedOrder(objects, set)
	if len(order) != 3 {
		t.Fatalf("expected 3 ids, got %v", order)
	}
	if indexOf(order, "desk") > indexOf(order, "book") ||
		indexOf(order, "desk") > indexOf(order, "lamp") {
		t.Errorf("desk must precede its dependents: %v", order)
	}
}

func TestSeedOrderChain(t *testing.T) {
	// a left_of b, b left_of c: c anchors, then b, then a.
	objects := []*types.Object{obj("a"), obj("b"), obj("c")}
	set := setOf(t,
		rel(t, constraint.LeftOf, "a", "b"),
		rel(t, constraint.LeftOf, "b", "c"),
	)
	order := SeedOrder(objects, set)
	if order[0] != "c" || order[1] != "b" || order[2] != "a" {
		t.Errorf("expected [c b a], got %v", order)
	}
}

func TestSeedOrderKeepsInputOrderForUnconstrained(t *testing.T) {
	objects := []*types.Object{obj("sofa"), obj("rug"), obj("plant")}
	set := setOf(t)
	order := SeedOrder(objects, set)
	want := []string{"sofa", "rug", "plant"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected input order %v, got %v", want, order)
		}
	}
}

func TestSeedOrderIgnoresSymmetricRelations(t *testing.T) {
	objects := []*types.Object{obj("a"), obj("b")}
	set := setOf(t, rel(t, constraint.Near, "a", "b"))
	order := SeedOrder(objects, set)
	if order[0] != "a" || order[1] != "b" {
		t.Errorf("symmetric relations must not reorder: %v", order)
	}
}

func TestSeedOrderDeterministic(t *testing.T) {
	objects := []*types.Object{obj("a"), obj("b"), obj("c"), obj("d")}
	set := setOf(t,
		rel(t, constraint.On, "a", "c"),
		rel(t, constraint.Behind, "b", "d"),
	)
	first := SeedOrder(objects, set)
	for i := 0; i < 10; i++ {
		again := SeedOrder(objects, set)
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("order not deterministic: %v vs %v", first, again)
			}
		}
	}
}
