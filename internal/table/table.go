// Package table implements the long-format observation table and the
// relational operations the report sections are built from: filtering,
// pivoting to a wide gene x sample matrix, joining two modalities, ranking
// genes and cross-tabulating categorical columns.
package table

import (
	"math"
	"strings"
)

// Kind distinguishes value tables, where each (gene, sample) pair occurs at
// most once, from event tables such as mutation calls where a pair may
// recur across distinct variants.
type Kind int

const (
	KindValues Kind = iota
	KindEvents
)

func (k Kind) String() string {
	if k == KindEvents {
		return "events"
	}
	return "values"
}

// Built-in column names usable wherever a field name is accepted.
const (
	ColGene   = "gene"
	ColSample = "sample"
	ColValue  = "value"
)

// Unknown is the category substituted for missing categorical values.
const Unknown = "unknown"

// Missing is the value stored for an observation whose value is absent.
var Missing = math.NaN()

// IsMissing reports whether v denotes a missing value.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Row is one observation.
type Row struct {
	Gene   string
	Sample string
	Value  float64
	Attrs  map[string]string
}

// Field returns a named column of the row as text. Missing values and
// absent attributes return "".
func (r Row) Field(name string) string {
	switch name {
	case ColGene:
		return r.Gene
	case ColSample:
		return r.Sample
	case ColValue:
		if IsMissing(r.Value) {
			return ""
		}
		return formatFloat(r.Value)
	}
	return r.Attrs[name]
}

// Table is a long-format ObservationTable. Operations never mutate their
// input; each returns a new table.
type Table struct {
	Name  string
	Kind  Kind
	attrs []string
	rows  []Row
}

// New creates an empty table with the given attribute columns.
func New(name string, kind Kind, attrs ...string) *Table {
	return &Table{Name: name, Kind: kind, attrs: append([]string(nil), attrs...)}
}

// FromRows builds a value table from rows; convenient in tests and for
// small derived tables.
func FromRows(name string, rows ...Row) *Table {
	t := New(name, KindValues)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Append adds a row. Unknown attribute names are registered as columns.
func (t *Table) Append(r Row) {
	for k := range r.Attrs {
		if !t.HasAttr(k) {
			t.attrs = append(t.attrs, k)
		}
	}
	t.rows = append(t.rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns row i.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Each calls fn for every row in order.
func (t *Table) Each(fn func(i int, r Row)) {
	if t == nil {
		return
	}
	for i, r := range t.rows {
		fn(i, r)
	}
}

// Attrs returns the attribute column names.
func (t *Table) Attrs() []string { return append([]string(nil), t.attrs...) }

// HasAttr reports whether name is an attribute column.
func (t *Table) HasAttr(name string) bool {
	for _, a := range t.attrs {
		if a == name {
			return true
		}
	}
	return false
}

// Genes returns distinct gene symbols in first-appearance order.
func (t *Table) Genes() []string { return t.distinct(ColGene) }

// Samples returns distinct sample ids in first-appearance order.
func (t *Table) Samples() []string { return t.distinct(ColSample) }

// Distinct returns the distinct values of a column in first-appearance
// order; empty values are reported as Unknown.
func (t *Table) Distinct(field string) []string {
	seen := make(map[string]struct{})
	var out []string
	t.Each(func(_ int, r Row) {
		v := r.Field(field)
		if strings.TrimSpace(v) == "" {
			v = Unknown
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	})
	return out
}

func (t *Table) distinct(field string) []string {
	seen := make(map[string]struct{})
	var out []string
	t.Each(func(_ int, r Row) {
		v := r.Field(field)
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	})
	return out
}

// Values returns the non-missing values in row order.
func (t *Table) Values() []float64 {
	var out []float64
	t.Each(func(_ int, r Row) {
		if !IsMissing(r.Value) {
			out = append(out, r.Value)
		}
	})
	return out
}

// ValuesByGene groups non-missing values per gene. Genes are returned in
// first-appearance order, including genes whose values are all missing.
func (t *Table) ValuesByGene() ([]string, map[string][]float64) {
	order := t.Genes()
	groups := make(map[string][]float64, len(order))
	t.Each(func(_ int, r Row) {
		if IsMissing(r.Value) {
			return
		}
		groups[r.Gene] = append(groups[r.Gene], r.Value)
	})
	return order, groups
}

// Release drops the table's rows so the memory can be reclaimed once the
// owning report section is done with it.
func (t *Table) Release() {
	if t == nil {
		return
	}
	t.rows = nil
}

// derive returns an empty table sharing t's schema.
func (t *Table) derive() *Table {
	return &Table{Name: t.Name, Kind: t.Kind, attrs: append([]string(nil), t.attrs...)}
}
