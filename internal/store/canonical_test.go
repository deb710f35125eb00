package store

import "testing"

func TestCanonicalIngredients_OrderIndependent(t *testing.T) {
	a := CanonicalIngredients("Tomato, Onion")
	b := CanonicalIngredients("onion,tomato")
	if a != b {
		t.Fatalf("canonical forms differ: %q vs %q", a, b)
	}
	if a != "onion,tomato" {
		t.Fatalf("unexpected canonical form: %q", a)
	}
}

func TestCanonicalIngredients_SingleTerm(t *testing.T) {
	if got := CanonicalIngredients("  Basil "); got != "basil" {
		t.Fatalf("CanonicalIngredients: %q", got)
	}
}

func TestCanonicalIngredients_TrimsEachTerm(t *testing.T) {
	if got := CanonicalIngredients("Garlic ,  olive oil, Pasta"); got != "garlic,olive oil,pasta" {
		t.Fatalf("CanonicalIngredients: %q", got)
	}
}

func TestCanonicalCuisine(t *testing.T) {
	if got := CanonicalCuisine("  Italian "); got != "italian" {
		t.Fatalf("CanonicalCuisine: %q", got)
	}
}

func TestCanonicalRecipeID(t *testing.T) {
	if got := CanonicalRecipeID(" 12345 "); got != "12345" {
		t.Fatalf("CanonicalRecipeID: %q", got)
	}
	if got := CanonicalRecipeID("ABC-Recipe"); got != "abc-recipe" {
		t.Fatalf("CanonicalRecipeID: %q", got)
	}
}
