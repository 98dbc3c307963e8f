package session

import (
	"context"
	"testing"
)

func TestSelectTableResetsFilters(t *testing.T) {
	t.Parallel()

	s := &Session{}
	if !s.SelectTable("store") {
		t.Fatal("SelectTable(store) = false, want true")
	}
	s.AddFilter("supplier", "BRAKES", "LIGHTS", "BRAKES")

	if got := s.Filters["supplier"]; len(got) != 2 {
		t.Fatalf("filters = %v, want 2 distinct values", got)
	}

	if s.SelectTable("store") {
		t.Fatal("SelectTable(same) = true, want false")
	}
	if len(s.Filters) != 1 {
		t.Fatalf("filters after reselect = %v, want kept", s.Filters)
	}

	if !s.SelectTable("supplier_stock") {
		t.Fatal("SelectTable(other) = false, want true")
	}
	if s.Filters != nil {
		t.Fatalf("filters after switch = %v, want nil", s.Filters)
	}
}

func TestAddFilterIgnoresEmptyValues(t *testing.T) {
	t.Parallel()

	s := &Session{}
	s.AddFilter("supplier")
	if _, ok := s.Filters["supplier"]; ok {
		t.Fatal("AddFilter() with no values created an entry")
	}
}

func TestFiltersCopyIsIndependent(t *testing.T) {
	t.Parallel()

	s := &Session{}
	s.AddFilter("supplier", "BRAKES")

	cp := s.FiltersCopy()
	cp["supplier"][0] = "CHANGED"

	if s.Filters["supplier"][0] != "BRAKES" {
		t.Fatalf("session filter mutated through copy: %v", s.Filters)
	}

	s.ClearFilters()
	if s.FiltersCopy() != nil {
		t.Fatal("FiltersCopy() after clear != nil")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("FromContext(empty) ok = true")
	}

	s := &Session{ID: "abc", User: "admin"}
	got, ok := FromContext(WithSession(context.Background(), s))
	if !ok || got.ID != "abc" {
		t.Fatalf("FromContext() = %v, %v", got, ok)
	}
}
