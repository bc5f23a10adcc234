package prime

import "testing"

func TestKeyIdentifiesByFormAndExpression(t *testing.T) {
	a := Prime{ID: 1, Form: "factorial", Expression: "100!+1"}
	b := Prime{ID: 2, Form: "factorial", Expression: "100!+1"}
	if a.Key() != b.Key() {
		t.Fatalf("expected two primes with the same (form, expression) to share a key")
	}

	c := Prime{ID: 3, Form: "factorial", Expression: "101!-1"}
	if a.Key() == c.Key() {
		t.Fatalf("expected a different expression to produce a different key")
	}
}

func TestIsProvableMatchesTheEnumeratedForms(t *testing.T) {
	for _, form := range []string{"factorial", "primorial", "proth", "riesel"} {
		if !IsProvable(form) {
			t.Fatalf("expected %q to be provable", form)
		}
	}
	if IsProvable("twin") {
		t.Fatalf("expected an unlisted form to be non-provable")
	}
}
