package table

import "fmt"

// Pair is one (gene, sample) key with a value from each side of a join.
type Pair struct {
	Gene   string
	Sample string
	X      float64
	Y      float64
}

// InnerJoin matches x and y on (gene, sample). Pairs missing on either side,
// or whose value is missing on either side, are dropped. Output follows x's
// row order. Both inputs must be value tables with unique keys.
func InnerJoin(x, y *Table) ([]Pair, error) {
	if x.Kind == KindEvents || y.Kind == KindEvents {
		return nil, fmt.Errorf("join %s x %s: event table: %w", x.Name, y.Name, ErrAggregationRequired)
	}
	type key struct{ gene, sample string }
	right := make(map[key]float64, y.Len())
	for _, r := range y.rows {
		k := key{r.Gene, r.Sample}
		if _, dup := right[k]; dup {
			return nil, fmt.Errorf("join: %s has gene=%s sample=%s twice: %w", y.Name, r.Gene, r.Sample, ErrAggregationRequired)
		}
		right[k] = r.Value
	}
	seen := make(map[key]struct{}, x.Len())
	var out []Pair
	for _, r := range x.rows {
		k := key{r.Gene, r.Sample}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("join: %s has gene=%s sample=%s twice: %w", x.Name, r.Gene, r.Sample, ErrAggregationRequired)
		}
		seen[k] = struct{}{}
		yv, ok := right[k]
		if !ok || IsMissing(r.Value) || IsMissing(yv) {
			continue
		}
		out = append(out, Pair{Gene: r.Gene, Sample: r.Sample, X: r.Value, Y: yv})
	}
	return out, nil
}

// PairsByGene groups joined pairs per gene in first-appearance order.
func PairsByGene(pairs []Pair) ([]string, map[string][]Pair) {
	var order []string
	groups := make(map[string][]Pair)
	for _, p := range pairs {
		if _, ok := groups[p.Gene]; !ok {
			order = append(order, p.Gene)
		}
		groups[p.Gene] = append(groups[p.Gene], p)
	}
	return order, groups
}
