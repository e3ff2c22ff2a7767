package table

import (
	"sort"
	"strings"
)

// CrosstabOptions fixes the category domains. A supplied domain is used
// verbatim and values outside it are not counted; otherwise the domain is
// the observed values in first-appearance order, or sorted when Sort is set.
type CrosstabOptions struct {
	RowDomain []string
	ColDomain []string
	Sort      bool
}

// Crosstab is a two-way contingency table. Counts always has
// len(Rows) x len(Cols) entries, zero cells included.
type Crosstab struct {
	RowField string
	ColField string
	Rows     []string
	Cols     []string
	Counts   [][]int
}

// CrossTabulate counts co-occurrences of two categorical columns of t. Empty
// categories count as Unknown.
func CrossTabulate(t *Table, rowField, colField string, opts CrosstabOptions) Crosstab {
	rows := opts.RowDomain
	if len(rows) == 0 {
		rows = t.Distinct(rowField)
		if opts.Sort {
			sort.Strings(rows)
		}
	}
	cols := opts.ColDomain
	if len(cols) == 0 {
		cols = t.Distinct(colField)
		if opts.Sort {
			sort.Strings(cols)
		}
	}
	ri := indexOf(rows)
	ci := indexOf(cols)
	counts := make([][]int, len(rows))
	for i := range counts {
		counts[i] = make([]int, len(cols))
	}
	t.Each(func(_ int, r Row) {
		i, ok := ri[category(r.Field(rowField))]
		if !ok {
			return
		}
		j, ok := ci[category(r.Field(colField))]
		if !ok {
			return
		}
		counts[i][j]++
	})
	return Crosstab{RowField: rowField, ColField: colField, Rows: rows, Cols: cols, Counts: counts}
}

// Cells returns the number of cells, m*n.
func (c Crosstab) Cells() int { return len(c.Rows) * len(c.Cols) }

// Total returns the sum of all counts.
func (c Crosstab) Total() int {
	var n int
	for _, row := range c.Counts {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Max returns the largest count.
func (c Crosstab) Max() int {
	var m int
	for _, row := range c.Counts {
		for _, v := range row {
			if v > m {
				m = v
			}
		}
	}
	return m
}

// Count returns the count for a category pair, 0 when either is unknown to
// the table.
func (c Crosstab) Count(row, col string) int {
	for i, r := range c.Rows {
		if r != row {
			continue
		}
		for j, k := range c.Cols {
			if k == col {
				return c.Counts[i][j]
			}
		}
	}
	return 0
}

func category(v string) string {
	if strings.TrimSpace(v) == "" {
		return Unknown
	}
	return v
}

func indexOf(keys []string) map[string]int {
	out := make(map[string]int, len(keys))
	for i, k := range keys {
		if _, ok := out[k]; !ok {
			out[k] = i
		}
	}
	return out
}
