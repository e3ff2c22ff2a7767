package table

import (
	"errors"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// ErrAggregationRequired is returned when a pivot meets a duplicate
// (row, column) key. Event tables hit it unconditionally: they are
// summarised with Crosstab rather than pivoted.
var ErrAggregationRequired = errors.New("table: duplicate key requires aggregation")

// Axis names one of the two keys of an observation.
type Axis int

const (
	AxisGene Axis = iota
	AxisSample
)

func (a Axis) String() string {
	if a == AxisSample {
		return ColSample
	}
	return ColGene
}

func (a Axis) key(r Row) string {
	if a == AxisSample {
		return r.Sample
	}
	return r.Gene
}

// PivotOptions fixes the axis universes. When RowKeys or ColKeys is set the
// matrix has exactly those keys in that order: keys without observations
// become all-missing rows/columns and observations outside the universe are
// left out.
type PivotOptions struct {
	RowKeys []string
	ColKeys []string
}

// WideMatrix is the pivoted view of a value table. Cells that were never
// observed, and cells observed with a missing value, read as missing.
type WideMatrix struct {
	RowAxis   Axis
	ColAxis   Axis
	ValueName string

	rowKeys  []string
	colKeys  []string
	data     *mat.Dense
	observed []bool
}

// Pivot reshapes t into a matrix with rows keyed by rowAxis and columns by
// colAxis. valueCol is ColValue or the name of a numeric attribute column.
func Pivot(t *Table, rowAxis, colAxis Axis, valueCol string, opts PivotOptions) (*WideMatrix, error) {
	if rowAxis == colAxis {
		return nil, fmt.Errorf("pivot: row and column axis are both %s", rowAxis)
	}
	if t.Kind == KindEvents {
		return nil, fmt.Errorf("pivot %s: event table: %w", t.Name, ErrAggregationRequired)
	}
	if valueCol == "" {
		valueCol = ColValue
	}
	if valueCol != ColValue && !t.HasAttr(valueCol) {
		return nil, fmt.Errorf("pivot %s: unknown value column %q", t.Name, valueCol)
	}

	rowKeys, rowIdx, rowFixed := axisUniverse(opts.RowKeys)
	colKeys, colIdx, colFixed := axisUniverse(opts.ColKeys)

	type cell struct {
		r, c int
		v    float64
	}
	cells := make([]cell, 0, t.Len())
	seen := make(map[[2]int]struct{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := t.rows[i]
		rk, ck := rowAxis.key(row), colAxis.key(row)
		r, rok := rowIdx[rk]
		c, cok := colIdx[ck]
		if (!rok && rowFixed) || (!cok && colFixed) {
			continue
		}
		if !rok {
			r = len(rowKeys)
			rowIdx[rk] = r
			rowKeys = append(rowKeys, rk)
		}
		if !cok {
			c = len(colKeys)
			colIdx[ck] = c
			colKeys = append(colKeys, ck)
		}
		if _, dup := seen[[2]int{r, c}]; dup {
			return nil, fmt.Errorf("pivot %s: %s=%s %s=%s: %w", t.Name, rowAxis, rk, colAxis, ck, ErrAggregationRequired)
		}
		seen[[2]int{r, c}] = struct{}{}
		v, err := cellValue(row, valueCol)
		if err != nil {
			return nil, fmt.Errorf("pivot %s: %w", t.Name, err)
		}
		cells = append(cells, cell{r, c, v})
	}

	m := newWide(rowAxis, colAxis, valueCol, rowKeys, colKeys)
	for _, c := range cells {
		m.set(c.r, c.c, c.v)
	}
	return m, nil
}

func axisUniverse(keys []string) ([]string, map[string]int, bool) {
	idx := make(map[string]int, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := idx[k]; dup {
			continue
		}
		idx[k] = len(out)
		out = append(out, k)
	}
	return out, idx, len(keys) > 0
}

func cellValue(r Row, valueCol string) (float64, error) {
	if valueCol == ColValue {
		return r.Value, nil
	}
	raw, ok := r.Attrs[valueCol]
	if !ok || raw == "" {
		return Missing, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %q is not numeric", valueCol, raw)
	}
	return v, nil
}

func newWide(rowAxis, colAxis Axis, name string, rowKeys, colKeys []string) *WideMatrix {
	m := &WideMatrix{
		RowAxis:   rowAxis,
		ColAxis:   colAxis,
		ValueName: name,
		rowKeys:   rowKeys,
		colKeys:   colKeys,
		observed:  make([]bool, len(rowKeys)*len(colKeys)),
	}
	if len(rowKeys) > 0 && len(colKeys) > 0 {
		data := make([]float64, len(rowKeys)*len(colKeys))
		for i := range data {
			data[i] = Missing
		}
		m.data = mat.NewDense(len(rowKeys), len(colKeys), data)
	}
	return m
}

func (m *WideMatrix) set(r, c int, v float64) {
	m.data.Set(r, c, v)
	m.observed[r*len(m.colKeys)+c] = true
}

// Dims returns the number of rows and columns.
func (m *WideMatrix) Dims() (int, int) { return len(m.rowKeys), len(m.colKeys) }

// Empty reports whether the matrix has no cells.
func (m *WideMatrix) Empty() bool { return m.data == nil }

// RowKeys returns the row keys in order.
func (m *WideMatrix) RowKeys() []string { return append([]string(nil), m.rowKeys...) }

// ColKeys returns the column keys in order.
func (m *WideMatrix) ColKeys() []string { return append([]string(nil), m.colKeys...) }

// At returns the cell value and whether it is present. Unobserved cells and
// observed missing values both report false.
func (m *WideMatrix) At(r, c int) (float64, bool) {
	if !m.observed[r*len(m.colKeys)+c] {
		return Missing, false
	}
	v := m.data.At(r, c)
	return v, !IsMissing(v)
}

// Observed reports whether the cell came from an input row, even one whose
// value is missing.
func (m *WideMatrix) Observed(r, c int) bool { return m.observed[r*len(m.colKeys)+c] }

// RowValues returns row r with missing cells as NaN.
func (m *WideMatrix) RowValues(r int) []float64 {
	out := make([]float64, len(m.colKeys))
	for c := range out {
		out[c], _ = m.At(r, c)
	}
	return out
}

// ColValues returns column c with missing cells as NaN.
func (m *WideMatrix) ColValues(c int) []float64 {
	out := make([]float64, len(m.rowKeys))
	for r := range out {
		out[r], _ = m.At(r, c)
	}
	return out
}

// Reorder returns a matrix whose rows and columns follow the given index
// permutations. A nil permutation keeps that axis as is.
func (m *WideMatrix) Reorder(rowOrder, colOrder []int) *WideMatrix {
	if rowOrder == nil {
		rowOrder = identity(len(m.rowKeys))
	}
	if colOrder == nil {
		colOrder = identity(len(m.colKeys))
	}
	rows := make([]string, len(rowOrder))
	for i, r := range rowOrder {
		rows[i] = m.rowKeys[r]
	}
	cols := make([]string, len(colOrder))
	for j, c := range colOrder {
		cols[j] = m.colKeys[c]
	}
	out := newWide(m.RowAxis, m.ColAxis, m.ValueName, rows, cols)
	for i, r := range rowOrder {
		for j, c := range colOrder {
			if m.Observed(r, c) {
				out.set(i, j, m.data.At(r, c))
			}
		}
	}
	return out
}

// Unpivot turns the matrix back into a long table with one row per observed
// cell, row-major. Unpivot(Pivot(t)) holds the same (gene, sample, value)
// triples as t.
func Unpivot(m *WideMatrix) *Table {
	out := New(m.ValueName, KindValues)
	for r, rk := range m.rowKeys {
		for c, ck := range m.colKeys {
			if !m.Observed(r, c) {
				continue
			}
			row := Row{Value: m.data.At(r, c)}
			if m.RowAxis == AxisGene {
				row.Gene, row.Sample = rk, ck
			} else {
				row.Gene, row.Sample = ck, rk
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
