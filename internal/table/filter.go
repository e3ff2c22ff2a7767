package table

import "strings"

// GeneSet is the membership test used by Filter. *genes.Set satisfies it.
type GeneSet interface {
	Contains(symbol string) bool
}

// SamplePredicate selects samples of interest by id.
type SamplePredicate func(sampleID string) bool

// AllSamples keeps every sample with a non-empty id.
func AllSamples(string) bool { return true }

// Filter keeps rows whose gene is a member of genes and whose sample passes
// keep. Rows with an empty sample id are always dropped. A nil gene set or
// predicate does not restrict on that axis. Row order is preserved and no
// deduplication happens; an empty result is valid.
func Filter(t *Table, genes GeneSet, keep SamplePredicate) *Table {
	out := t.derive()
	t.Each(func(_ int, r Row) {
		if strings.TrimSpace(r.Sample) == "" {
			return
		}
		if genes != nil && !genes.Contains(r.Gene) {
			return
		}
		if keep != nil && !keep(r.Sample) {
			return
		}
		out.rows = append(out.rows, r)
	})
	return out
}

// ResolveAliases rewrites legacy gene symbols to their canonical form so the
// exact-match filter sees them. Symbols not in aliases pass through.
func ResolveAliases(t *Table, aliases map[string]string) *Table {
	out := t.derive()
	out.rows = make([]Row, 0, t.Len())
	t.Each(func(_ int, r Row) {
		if canonical, ok := aliases[r.Gene]; ok {
			r.Gene = canonical
		}
		out.rows = append(out.rows, r)
	})
	return out
}
