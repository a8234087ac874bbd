package category

import (
	"errors"
	"testing"
)

func TestSlugID(t *testing.T) {
	cases := map[string]string{
		"Pool Detected":   "pool_detected",
		"for-sale sign":   "for_sale_sign",
		"  Solar Panels ": "solar_panels",
		"GRAFFITI":        "graffiti",
	}
	for in, want := range cases {
		if got := SlugID(in); got != want {
			t.Errorf("SlugID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSchemaDefaults(t *testing.T) {
	s := NewSchema()
	cats := s.List()
	if len(cats) != 4 {
		t.Fatalf("default schema has %d categories, want 4", len(cats))
	}
	wantIDs := []string{"for_sale_sign", "solar_panels", "human_presence", "potential_damage"}
	for i, id := range wantIDs {
		if cats[i].ID != id {
			t.Errorf("cats[%d].ID = %q, want %q", i, cats[i].ID, id)
		}
		if cats[i].Description == "" {
			t.Errorf("cats[%d] has empty description", i)
		}
	}
}

func TestAddAppendsAndRejectsDuplicates(t *testing.T) {
	s := NewSchema()

	cat, err := s.Add("Pool Detected", "Is there a swimming pool visible?")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cat.ID != "pool_detected" {
		t.Errorf("id = %q, want pool_detected", cat.ID)
	}
	if got := len(s.List()); got != 5 {
		t.Fatalf("schema has %d categories after add, want 5", got)
	}

	// A distinct display name slugifying to the same id is rejected, not
	// silently overwritten.
	if _, err := s.Add("pool-detected", "different question"); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate add: err = %v, want ErrDuplicateID", err)
	}
	if got := len(s.List()); got != 5 {
		t.Errorf("schema has %d categories after rejected add, want 5", got)
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	s := NewSchema()
	if _, err := s.Add("Graffiti", "Is there graffiti visible?"); err != nil {
		t.Fatal(err)
	}
	s.Reset()

	cats := s.List()
	if len(cats) != 4 {
		t.Fatalf("schema has %d categories after reset, want 4", len(cats))
	}
	for _, c := range cats {
		if c.ID == "graffiti" {
			t.Error("custom category survived reset")
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	s := NewSchema()
	cats := s.List()
	cats[0].ID = "mutated"
	if s.List()[0].ID == "mutated" {
		t.Error("List exposed internal state")
	}
}

func TestAddEmptyNameFails(t *testing.T) {
	s := NewSchema()
	if _, err := s.Add("   ", "question"); err == nil {
		t.Fatal("expected error for blank name")
	}
}
