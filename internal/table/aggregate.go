package table

// CollapseMean merges rows sharing a (gene, sample) pair into one row
// holding the mean of their non-missing values. It is the explicit
// aggregation step for multi-locus value tables such as promoter
// methylation; attributes are dropped. Pair order is first appearance.
func CollapseMean(t *Table) *Table {
	type acc struct {
		sum float64
		n   int
	}
	type pair struct{ gene, sample string }
	var order []pair
	sums := make(map[pair]*acc)
	t.Each(func(_ int, r Row) {
		k := pair{r.Gene, r.Sample}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
			order = append(order, k)
		}
		if !IsMissing(r.Value) {
			a.sum += r.Value
			a.n++
		}
	})
	out := New(t.Name, KindValues)
	for _, k := range order {
		a := sums[k]
		v := Missing
		if a.n > 0 {
			v = a.sum / float64(a.n)
		}
		out.rows = append(out.rows, Row{Gene: k.gene, Sample: k.sample, Value: v})
	}
	return out
}
