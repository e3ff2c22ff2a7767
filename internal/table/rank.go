package table

import (
	"math"
	"sort"
)

// GeneSummary is the mean of a gene's non-missing values.
type GeneSummary struct {
	Gene string
	Mean float64
	N    int
}

// RankByMean orders genes by descending mean value. Ties keep the order in
// which genes first appear in t; genes with no values sort last.
func RankByMean(t *Table) []GeneSummary {
	order, groups := t.ValuesByGene()
	out := make([]GeneSummary, len(order))
	for i, g := range order {
		vals := groups[g]
		s := GeneSummary{Gene: g, Mean: math.NaN(), N: len(vals)}
		if len(vals) > 0 {
			var sum float64
			for _, v := range vals {
				sum += v
			}
			s.Mean = sum / float64(len(vals))
		}
		out[i] = s
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Mean, out[j].Mean
		if math.IsNaN(a) || math.IsNaN(b) {
			return !math.IsNaN(a) && math.IsNaN(b)
		}
		return a > b
	})
	return out
}

// RankedGenes returns only the gene order of RankByMean.
func RankedGenes(t *Table) []string {
	ranked := RankByMean(t)
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.Gene
	}
	return out
}

// Mean is the mean over all non-missing values of t, NaN when there are
// none.
func Mean(t *Table) float64 {
	var sum float64
	var n int
	t.Each(func(_ int, r Row) {
		if IsMissing(r.Value) {
			return
		}
		sum += r.Value
		n++
	})
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
