package genes

import "testing"

func TestCuratedSet(t *testing.T) {
	s := Curated()
	if s.Len() != 28 {
		t.Fatalf("expected 28 curated genes, got %d", s.Len())
	}
	if got := len(s.ByCategory(Writing)); got != 11 {
		t.Fatalf("writers: %d", got)
	}
	if got := len(s.ByCategory(Erasing)); got != 3 {
		t.Fatalf("erasers: %d", got)
	}
	if got := len(s.ByCategory(Reading)); got != 14 {
		t.Fatalf("readers: %d", got)
	}
	if s.Symbols()[0] != "METTL3" {
		t.Fatalf("curated order not preserved: %v", s.Symbols())
	}
	if s.Aliases()["KIAA1429"] != "VIRMA" {
		t.Fatalf("alias missing")
	}
}

func TestSetMembershipIsExact(t *testing.T) {
	s := Curated()
	if !s.Contains("FTO") {
		t.Fatalf("FTO should be a member")
	}
	for _, sym := range []string{"fto", "FTO ", "KIAA1429"} {
		if s.Contains(sym) {
			t.Fatalf("%q must not match", sym)
		}
	}
	if v, ok := s.Lookup("FTO", FieldCategory); !ok || v != "erasing" {
		t.Fatalf("lookup: %q %v", v, ok)
	}
	if _, ok := s.Lookup("FTO", "description"); ok {
		t.Fatalf("unknown field should miss")
	}
}

func TestNewSetValidation(t *testing.T) {
	cases := []struct {
		name    string
		records []Record
		aliases map[string]string
	}{
		{"empty symbol", []Record{{"", Writing}}, nil},
		{"bad category", []Record{{"A", "painting"}}, nil},
		{"duplicate", []Record{{"A", Writing}, {"A", Reading}}, nil},
		{"dangling alias", []Record{{"A", Writing}}, map[string]string{"OLD": "B"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSet(tc.records, tc.aliases); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
