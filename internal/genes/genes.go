// Package genes holds the curated m6A regulator gene list and the gene set
// type used to filter omics tables by symbol.
package genes

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Category is the functional role of a regulator with respect to m6A.
type Category string

const (
	Writing Category = "writing"
	Erasing Category = "erasing"
	Reading Category = "reading"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Writing, Erasing, Reading:
		return true
	}
	return false
}

// Record is one curated gene.
type Record struct {
	Symbol   string   `json:"symbol" yaml:"symbol"`
	Category Category `json:"category" yaml:"category"`
}

// Set is an ordered, immutable collection of curated genes. Symbols are
// compared exactly and case-sensitively.
type Set struct {
	records []Record
	index   map[string]int
	aliases map[string]string
}

// NewSet builds a set from records, preserving their order. Duplicate
// symbols and unknown categories are rejected.
func NewSet(records []Record, aliases map[string]string) (*Set, error) {
	s := &Set{
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, rec := range records {
		sym := strings.TrimSpace(rec.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("gene symbol required")
		}
		if !rec.Category.Valid() {
			return nil, fmt.Errorf("gene %s: unknown category %q", sym, rec.Category)
		}
		if _, dup := s.index[sym]; dup {
			return nil, fmt.Errorf("gene %s listed twice", sym)
		}
		s.index[sym] = len(s.records)
		s.records = append(s.records, Record{Symbol: sym, Category: rec.Category})
	}
	for legacy, canonical := range aliases {
		if _, ok := s.index[canonical]; !ok {
			return nil, fmt.Errorf("alias %s points at %s which is not in the set", legacy, canonical)
		}
		s.aliases[legacy] = canonical
	}
	return s, nil
}

// Contains reports exact membership of a canonical symbol.
func (s *Set) Contains(symbol string) bool {
	_, ok := s.index[symbol]
	return ok
}

// Len returns the number of curated genes.
func (s *Set) Len() int { return len(s.records) }

// Symbols returns the canonical symbols in curated order.
func (s *Set) Symbols() []string {
	return lo.Map(s.records, func(r Record, _ int) string { return r.Symbol })
}

// Records returns a copy of the curated records.
func (s *Set) Records() []Record {
	return append([]Record(nil), s.records...)
}

// Category returns the category of a canonical symbol.
func (s *Set) Category(symbol string) (Category, bool) {
	i, ok := s.index[symbol]
	if !ok {
		return "", false
	}
	return s.records[i].Category, true
}

// Aliases returns a copy of the legacy → canonical symbol map.
func (s *Set) Aliases() map[string]string {
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}

// ByCategory returns the symbols of one category in curated order.
func (s *Set) ByCategory(c Category) []string {
	return lo.FilterMap(s.records, func(r Record, _ int) (string, bool) {
		return r.Symbol, r.Category == c
	})
}

// Lookup implements the annotation source contract; the only field is
// "category".
func (s *Set) Lookup(key, field string) (string, bool) {
	if field != FieldCategory {
		return "", false
	}
	c, ok := s.Category(key)
	return string(c), ok
}

// FieldCategory is the annotation field exposed by Set.
const FieldCategory = "category"
