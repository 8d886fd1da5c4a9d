package ids

import "testing"

func TestNewProducesValidSortedIDs(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatalf("identifiers must be unique")
	}
	if !IsValid(a) || !IsValid(b) {
		t.Fatalf("generated id failed validation: %s %s", a, b)
	}
	if b < a {
		t.Fatalf("expected monotonic ordering: %s then %s", a, b)
	}
}

func TestIsValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "01ARZ3NDEKTSV4RRFFQ69G5FA!"} {
		if IsValid(s) {
			t.Fatalf("accepted invalid id %q", s)
		}
	}
}
